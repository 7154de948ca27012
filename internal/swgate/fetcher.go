package swgate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher performs live network fetches.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// OriginFetcher resolves requests against an origin base URL. Absolute request
// URLs are fetched as-is.
type OriginFetcher struct {
	Origin  string
	Client  *http.Client
	Timeout time.Duration
}

func NewOriginFetcher(origin string, timeout time.Duration) *OriginFetcher {
	return &OriginFetcher{
		Origin:  strings.TrimRight(origin, "/"),
		Client:  &http.Client{},
		Timeout: timeout,
	}
}

func (f *OriginFetcher) resolve(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return f.Origin + u
}

// Fetch performs the request. Any response the origin returns, whatever its
// status, is a successful fetch; only transport failures and timeouts are
// errors.
func (f *OriginFetcher) Fetch(ctx context.Context, r *Request) (*Response, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.resolve(r.URL), body)
	if err != nil {
		return nil, err
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", method, r.URL, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, r.URL, err)
	}

	out := &Response{
		Status:   resp.StatusCode,
		Header:   cloneHeader(resp.Header),
		Body:     b,
		URL:      r.URL,
		StoredAt: time.Now().Unix(),
	}
	out.Header.Del("Content-Length")
	return out, nil
}

func (f *OriginFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// hop-by-hop headers never forwarded to the origin.
var skipRequestHeaders = map[string]struct{}{
	"Host":              {},
	"Connection":        {},
	"Keep-Alive":        {},
	"Te":                {},
	"Trailer":           {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Content-Length":    {},
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if _, skip := skipRequestHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// bypassRequest returns a copy of r that asks intermediaries not to serve a
// cached copy.
func bypassRequest(r *Request) *Request {
	out := *r
	out.Header = cloneHeader(r.Header)
	out.Header.Set("Cache-Control", "no-cache")
	out.Header.Set("Pragma", "no-cache")
	return &out
}

// preloadRequest marks r as a navigation preload fetch.
func preloadRequest(r *Request) *Request {
	out := *r
	out.Header = cloneHeader(r.Header)
	out.Header.Set("Service-Worker-Navigation-Preload", "true")
	return &out
}
