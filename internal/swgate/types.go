package swgate

import (
	"net/http"
	"strings"
	"time"
)

// Request modes, mirroring the fetch mode the browser reports.
const (
	ModeNavigate = "navigate"
	ModeNoCORS   = "no-cors"
)

// Request is the worker's view of an intercepted fetch.
type Request struct {
	Method string
	URL    string // path plus query, or absolute URL
	Mode   string
	Header http.Header
	Body   []byte
}

// CacheKey is the identity a request is stored under. Only GET requests
// have one.
func (r *Request) CacheKey() string {
	return http.MethodGet + " " + r.URL
}

func (r *Request) isGet() bool {
	return r.Method == "" || strings.EqualFold(r.Method, http.MethodGet)
}

func (r *Request) isNavigation() bool {
	return r.isGet() && r.Mode == ModeNavigate
}

// Response is a point-in-time response snapshot. Cached entries are never
// mutated; Clone before handing one to a writer.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	URL      string
	StoredAt int64 // unix seconds

	// source records which tier produced the response. Unexported, so gob
	// never persists it.
	source string
}

// Response sources reported in the X-Swgate header.
const (
	SourcePreload      = "preload"
	SourceNetwork      = "network"
	SourceCache        = "cache"
	SourceOffline      = "offline"
	SourceSynthesized  = "synthesized"
	SourcePassthrough  = "passthrough"
	SourceBypass       = "bypass"
	SourceBypassCookie = "bypass-cookie"
)

func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = cloneHeader(r.Header)
	out.Body = append([]byte(nil), r.Body...)
	return &out
}

// Source reports which tier produced the response.
func (r *Response) Source() string { return r.source }

func (r *Response) withSource(src string) *Response {
	out := r.Clone()
	out.source = src
	return out
}

// synthesize builds a minimal response for when no real one is available.
func synthesize(status int, body string) *Response {
	h := http.Header{}
	if body != "" {
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return &Response{
		Status:   status,
		Header:   h,
		Body:     []byte(body),
		StoredAt: time.Now().Unix(),
		source:   SourceSynthesized,
	}
}

// NotificationData is the payload attached to a notification for the click
// handler.
type NotificationData struct {
	URL string `json:"url,omitempty"`
}

// Notification is a visible, OS-level style notification.
type Notification struct {
	Title    string           `json:"title"`
	Body     string           `json:"body"`
	Tag      string           `json:"tag"`
	Renotify bool             `json:"renotify"`
	Data     NotificationData `json:"data"`
	ShownAt  time.Time        `json:"shownAt"`
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}
