package swgate

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// onFetch routes GET requests to the navigation or resource strategy. Other
// methods get no response, which hands them to the network unmodified.
func (w *Worker) onFetch(ctx context.Context, ev Event) error {
	fe := ev.(*FetchEvent)
	req := fe.Request
	if !req.isGet() {
		return nil
	}
	if req.isNavigation() {
		fe.RespondWith(w.handleNavigation(ctx, fe))
		return nil
	}
	fe.RespondWith(w.handleResource(ctx, fe))
	return nil
}

// handleNavigation serves a page: preload, then network, then the cached
// copy of the page, then the offline fallback, then a synthesized 503.
func (w *Worker) handleNavigation(ctx context.Context, fe *FetchEvent) *Response {
	req := fe.Request

	resp, src, err := w.navigationFromNetwork(ctx, fe)
	if err == nil {
		w.keepCopy(fe, req, resp)
		return resp.withSource(src)
	}
	w.log.Debug("navigation fetch failed, falling back to cache", zap.String("url", req.URL), zap.Error(err))

	if cached, ok := w.matchCurrent(ctx, req); ok {
		return cached.withSource(SourceCache)
	}
	offline := &Request{Method: http.MethodGet, URL: w.cfg.OfflineURL}
	if cached, ok := w.matchCurrent(ctx, offline); ok {
		return cached.withSource(SourceOffline)
	}
	return synthesize(http.StatusServiceUnavailable, "Offline")
}

// navigationFromNetwork prefers a preload response and only fetches when no
// preload was in flight. A preload failure is not retried on the network.
func (w *Worker) navigationFromNetwork(ctx context.Context, fe *FetchEvent) (*Response, string, error) {
	preloaded, err := fe.preloadResponse(ctx)
	if err != nil {
		return nil, "", err
	}
	if preloaded != nil {
		return preloaded, SourcePreload, nil
	}
	resp, err := w.network.Fetch(ctx, fe.Request)
	if err != nil {
		return nil, "", err
	}
	return resp, SourceNetwork, nil
}

// keepCopy writes resp into the current generation as part of fe's
// extended lifetime.
func (w *Worker) keepCopy(fe *FetchEvent, req *Request, resp *Response) {
	snapshot := resp.Clone()
	fe.WaitUntil(func(ctx context.Context) error {
		w.storeCopy(context.WithoutCancel(ctx), req, snapshot)
		return nil
	})
}
