package swgate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EventKind names an event the runtime delivers to the worker.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is delivered to a Handler.
type Event interface {
	Kind() EventKind
	extendable() *ExtendableEvent
}

// Handler reacts to one event. Work that must finish before the runtime may
// consider the event done is either done inline or registered with WaitUntil.
type Handler func(ctx context.Context, ev Event) error

// ExtendableEvent lets a handler extend the event's lifetime past its own
// return.
type ExtendableEvent struct {
	once sync.Once
	g    *errgroup.Group
	gctx context.Context
}

func (e *ExtendableEvent) init(ctx context.Context) {
	e.once.Do(func() {
		e.g, e.gctx = errgroup.WithContext(ctx)
	})
}

// WaitUntil keeps the event alive until fn returns. Dispatch reports the first
// error any extension returns.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	e.init(context.Background())
	e.g.Go(func() error { return fn(e.gctx) })
}

func (e *ExtendableEvent) wait() error {
	if e.g == nil {
		return nil
	}
	return e.g.Wait()
}

func (e *ExtendableEvent) extendable() *ExtendableEvent { return e }

// InstallEvent is dispatched once when a worker generation is installed.
type InstallEvent struct {
	ExtendableEvent
	skipWaiting bool
}

func (*InstallEvent) Kind() EventKind { return EventInstall }

// SkipWaiting asks the runtime to activate right after install.
func (e *InstallEvent) SkipWaiting() { e.skipWaiting = true }

// ActivateEvent is dispatched when the worker takes over.
type ActivateEvent struct {
	ExtendableEvent
}

func (*ActivateEvent) Kind() EventKind { return EventActivate }

// PreloadFunc waits for the navigation preload response. It returns nil, nil
// when no preload was started.
type PreloadFunc func(ctx context.Context) (*Response, error)

// FetchEvent wraps an intercepted request.
type FetchEvent struct {
	ExtendableEvent
	Request *Request
	Preload PreloadFunc

	mu       sync.Mutex
	response *Response
}

func (*FetchEvent) Kind() EventKind { return EventFetch }

// RespondWith claims the request. A fetch event nobody responds to goes to
// the network untouched.
func (e *FetchEvent) RespondWith(resp *Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.response == nil {
		e.response = resp
	}
}

// Response returns what the handler responded with, if anything.
func (e *FetchEvent) Response() (*Response, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response, e.response != nil
}

func (e *FetchEvent) preloadResponse(ctx context.Context) (*Response, error) {
	if e.Preload == nil {
		return nil, nil
	}
	return e.Preload(ctx)
}

// PushEvent carries a push delivery. Data is the raw payload.
type PushEvent struct {
	ExtendableEvent
	Data []byte
}

func (*PushEvent) Kind() EventKind { return EventPush }

// NotificationClickEvent is dispatched when the user clicks a notification.
type NotificationClickEvent struct {
	ExtendableEvent
	Notification Notification
}

func (*NotificationClickEvent) Kind() EventKind { return EventNotificationClick }

// dispatchTable maps event kinds to handlers. It is built once and only read
// afterwards.
type dispatchTable map[EventKind]Handler

// dispatch runs the handler for ev and blocks until the handler and every
// WaitUntil extension finished.
func (t dispatchTable) dispatch(ctx context.Context, ev Event) error {
	h, ok := t[ev.Kind()]
	if !ok {
		return fmt.Errorf("%s: %w", ev.Kind(), ErrNoHandler)
	}
	ext := ev.extendable()
	ext.init(ctx)

	herr := h(ctx, ev)
	werr := ext.wait()
	if herr != nil {
		return fmt.Errorf("%s handler: %w", ev.Kind(), herr)
	}
	if werr != nil {
		return fmt.Errorf("%s waitUntil: %w", ev.Kind(), werr)
	}
	return nil
}
