package swgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MatchOptions filters Clients.MatchAll.
type MatchOptions struct {
	// IncludeUncontrolled also returns windows the worker does not control yet.
	IncludeUncontrolled bool
}

// WindowClient is an open application window.
type WindowClient interface {
	ID() string
	URL() string
	Navigate(ctx context.Context, url string) error
	Focus(ctx context.Context) error
}

// Clients is the worker's view of open windows.
type Clients interface {
	MatchAll(ctx context.Context, opts MatchOptions) ([]WindowClient, error)
	OpenWindow(ctx context.Context, url string) (WindowClient, error)
	// Claim makes the worker the controller of every open window.
	Claim(ctx context.Context) error
}

// ClientInfo is a snapshot of a registered window.
type ClientInfo struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Focused    bool      `json:"focused"`
	Controlled bool      `json:"controlled"`
	OpenedAt   time.Time `json:"openedAt"`
}

// ClientRegistry is an in-memory set of window clients. Windows are listed
// most recently focused first.
type ClientRegistry struct {
	mu      sync.Mutex
	windows []*ClientInfo
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{}
}

// Register adds a window at url. It starts uncontrolled until Claim runs.
func (r *ClientRegistry) Register(url string) ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	ci := &ClientInfo{ID: uuid.NewString(), URL: url, OpenedAt: time.Now()}
	r.windows = append(r.windows, ci)
	return *ci
}

// Remove closes a window.
func (r *ClientRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%s: %w", id, ErrClientNotFound)
	}
	r.windows = append(r.windows[:i], r.windows[i+1:]...)
	return nil
}

// List returns a snapshot of all windows.
func (r *ClientRegistry) List() []ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientInfo, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, *w)
	}
	return out
}

// Get returns one window.
func (r *ClientRegistry) Get(id string) (ClientInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return ClientInfo{}, fmt.Errorf("%s: %w", id, ErrClientNotFound)
	}
	return *r.windows[i], nil
}

func (r *ClientRegistry) MatchAll(ctx context.Context, opts MatchOptions) ([]WindowClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WindowClient, 0, len(r.windows))
	for _, w := range r.windows {
		if !w.Controlled && !opts.IncludeUncontrolled {
			continue
		}
		out = append(out, &registryClient{reg: r, id: w.ID})
	}
	return out, nil
}

func (r *ClientRegistry) OpenWindow(ctx context.Context, url string) (WindowClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		w.Focused = false
	}
	ci := &ClientInfo{ID: uuid.NewString(), URL: url, Focused: true, Controlled: true, OpenedAt: time.Now()}
	r.windows = append([]*ClientInfo{ci}, r.windows...)
	return &registryClient{reg: r, id: ci.ID}, nil
}

func (r *ClientRegistry) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		w.Controlled = true
	}
	return nil
}

func (r *ClientRegistry) indexLocked(id string) int {
	for i, w := range r.windows {
		if w.ID == id {
			return i
		}
	}
	return -1
}

type registryClient struct {
	reg *ClientRegistry
	id  string
}

func (c *registryClient) ID() string { return c.id }

func (c *registryClient) URL() string {
	ci, err := c.reg.Get(c.id)
	if err != nil {
		return ""
	}
	return ci.URL
}

func (c *registryClient) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	i := c.reg.indexLocked(c.id)
	if i < 0 {
		return fmt.Errorf("navigate %s: %w", c.id, ErrClientNotFound)
	}
	c.reg.windows[i].URL = url
	return nil
}

func (c *registryClient) Focus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	i := c.reg.indexLocked(c.id)
	if i < 0 {
		return fmt.Errorf("focus %s: %w", c.id, ErrClientNotFound)
	}
	w := c.reg.windows[i]
	for _, o := range c.reg.windows {
		o.Focused = false
	}
	w.Focused = true
	// move to front
	copy(c.reg.windows[1:i+1], c.reg.windows[:i])
	c.reg.windows[0] = w
	return nil
}
