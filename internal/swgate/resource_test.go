package swgate

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_CacheFirstIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := started(t, testWorkerConfig("v1"))
	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/assets/app.js", httpmock.NewStringResponder(http.StatusOK, "console.log(1)"))

	first, handled, err := env.w.HandleFetch(ctx, getReq("/assets/app.js"), nil)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, SourceNetwork, first.Source())

	second, handled, err := env.w.HandleFetch(ctx, getReq("/assets/app.js"), nil)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, SourceCache, second.Source())
	assert.Equal(t, "console.log(1)", string(second.Body))

	assert.Equal(t, 1, env.calls(http.MethodGet, "/assets/app.js"))
}

func TestResource_NeverRevalidates(t *testing.T) {
	ctx := context.Background()
	env := started(t, testWorkerConfig("v1"))
	c, err := env.caches.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, getReq("/style.css"), okResp("old css")))
	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/style.css", httpmock.NewStringResponder(http.StatusOK, "new css"))

	resp, _, err := env.w.HandleFetch(ctx, getReq("/style.css"), nil)
	require.NoError(t, err)
	assert.Equal(t, "old css", string(resp.Body))
	assert.Zero(t, env.mock.GetTotalCallCount())
}

func TestResource_UnavailableIs504(t *testing.T) {
	ctx := context.Background()
	env := started(t, testWorkerConfig("v1"))
	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/api/verse", httpmock.NewErrorResponder(errors.New("dns failure")))

	resp, handled, err := env.w.HandleFetch(ctx, getReq("/api/verse"), nil)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, http.StatusGatewayTimeout, resp.Status)
	assert.Equal(t, SourceSynthesized, resp.Source())
	assert.Empty(t, resp.Body)
}

func TestResource_ErrorStatusNotCached(t *testing.T) {
	ctx := context.Background()
	env := started(t, testWorkerConfig("v1"))
	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/img/hero.png", httpmock.NewStringResponder(http.StatusInternalServerError, "oops"))

	for i := 0; i < 2; i++ {
		resp, _, err := env.w.HandleFetch(ctx, getReq("/img/hero.png"), nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	}
	assert.Equal(t, 2, env.calls(http.MethodGet, "/img/hero.png"))
}

func TestResource_NonGetPassesThrough(t *testing.T) {
	ctx := context.Background()
	env := started(t, testWorkerConfig("v1"))
	c, err := env.caches.Open(ctx, "v1")
	require.NoError(t, err)
	// a GET entry under the same URL must not leak into the POST
	require.NoError(t, c.Put(ctx, getReq("/api/subscribe"), okResp("cached")))

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := &Request{Method: method, URL: "/api/subscribe", Body: []byte(`{"endpoint":"x"}`)}
		resp, handled, err := env.w.HandleFetch(ctx, req, nil)
		require.NoError(t, err)
		assert.False(t, handled, method)
		assert.Nil(t, resp, method)
	}
	assert.Zero(t, env.mock.GetTotalCallCount(), "worker must leave non-GET fetching to the runtime")

	navPost := &Request{Method: http.MethodPost, URL: "/today", Mode: ModeNavigate}
	_, handled, err := env.w.HandleFetch(ctx, navPost, nil)
	require.NoError(t, err)
	assert.False(t, handled, "a navigation POST is not intercepted either")
}
