package swgate

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// handleResource is cache-first with no background revalidation. A miss goes
// to the network once; a failed fetch becomes an empty 504.
func (w *Worker) handleResource(ctx context.Context, fe *FetchEvent) *Response {
	req := fe.Request

	if cached, ok := w.matchCurrent(ctx, req); ok {
		return cached.withSource(SourceCache)
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		w.log.Debug("resource unavailable", zap.String("url", req.URL), zap.Error(err))
		return synthesize(http.StatusGatewayTimeout, "")
	}
	w.keepCopy(fe, req, resp)
	return resp.withSource(SourceNetwork)
}
