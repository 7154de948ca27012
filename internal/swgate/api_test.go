package swgate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAPITestService(t *testing.T, start bool) (*Service, http.Handler) {
	t.Helper()
	origin := newFakeOrigin(t)
	t.Cleanup(origin.Close)
	svc, err := NewService(testServiceConfig(t, origin.URL, "v1"),
		WithLogger(zaptest.NewLogger(t)),
		WithHTTPClient(origin.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	if start {
		require.NoError(t, svc.Start(context.Background()))
	}
	return svc, svc.Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAPI_PushAndList(t *testing.T) {
	_, h := newAPITestService(t, true)

	w := do(h, http.MethodPost, "/_sw/push", `{"title":"from sender"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	w = do(h, http.MethodPost, "/_sw/push", `encrypted-bytes`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(h, http.MethodGet, "/_sw/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]Notification](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "daily-devotional", list[0].Tag)
	assert.NotEqual(t, "from sender", list[0].Title)
	assert.Equal(t, "/today", list[0].Data.URL)
}

func TestAPI_ClickRoutesToExistingWindow(t *testing.T) {
	svc, h := newAPITestService(t, true)

	w := do(h, http.MethodPost, "/_sw/clients", `{"url":"/settings"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	win := decode[ClientInfo](t, w)
	assert.NotEmpty(t, win.ID)

	require.Equal(t, http.StatusAccepted, do(h, http.MethodPost, "/_sw/push", "").Code)

	w = do(h, http.MethodPost, "/_sw/notifications/daily-devotional/click", "")
	require.Equal(t, http.StatusOK, w.Code)
	clients := decode[[]ClientInfo](t, w)
	require.Len(t, clients, 1)
	assert.Equal(t, win.ID, clients[0].ID)
	assert.Equal(t, "/today", clients[0].URL)
	assert.True(t, clients[0].Focused)

	assert.Empty(t, svc.tray.List())
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/_sw/notifications/daily-devotional/click", "").Code)
}

func TestAPI_ClickOpensWindow(t *testing.T) {
	_, h := newAPITestService(t, true)
	do(h, http.MethodPost, "/_sw/push", "")

	w := do(h, http.MethodPost, "/_sw/notifications/daily-devotional/click", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodGet, "/_sw/clients", "")
	clients := decode[[]ClientInfo](t, w)
	require.Len(t, clients, 1)
	assert.Equal(t, "/today", clients[0].URL)
}

func TestAPI_DismissAndRemove(t *testing.T) {
	_, h := newAPITestService(t, true)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, "/_sw/notifications/daily-devotional", "").Code)
	do(h, http.MethodPost, "/_sw/push", "")
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/_sw/notifications/daily-devotional", "").Code)

	win := decode[ClientInfo](t, do(h, http.MethodPost, "/_sw/clients", `{"url":"/"}`))
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/_sw/clients/"+win.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, "/_sw/clients/"+win.ID, "").Code)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/_sw/clients", `{"url":"relative"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/_sw/clients", `not json`).Code)
}

func TestAPI_StateActivateHealthMetrics(t *testing.T) {
	svc, h := newAPITestService(t, false)

	st := decode[stateResponse](t, do(h, http.MethodGet, "/_sw/state", ""))
	assert.Equal(t, "parsed", st.State)
	assert.Equal(t, http.StatusConflict, do(h, http.MethodPost, "/_sw/activate", "").Code)

	// before activation every fetch goes straight to the origin
	w := get(h, "/app.js")
	assert.Equal(t, SourcePassthrough, w.Header().Get("X-Swgate"))

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/_sw/activate", "").Code)

	st = decode[stateResponse](t, do(h, http.MethodGet, "/_sw/state", ""))
	assert.Equal(t, "activated", st.State)
	assert.Equal(t, "v1", st.Generation)
	assert.True(t, st.NavigationPreload)
	assert.Equal(t, []string{"v1"}, st.Caches)

	w = do(h, http.MethodGet, "/_sw/healthz", "")
	assert.Equal(t, "ok", w.Body.String())

	do(h, http.MethodPost, "/_sw/push", "")
	w = do(h, http.MethodGet, "/_sw/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swgate_push_events_total 1")
	assert.Contains(t, w.Body.String(), "swgate_cache_puts_total")
}

func TestAPI_SharedStorageAndSinks(t *testing.T) {
	origin := newFakeOrigin(t)
	defer origin.Close()
	storage := NewMemoryStorage(0)
	sink := &recordingSink{}

	svc, err := NewService(testServiceConfig(t, origin.URL, "v2"),
		WithStorage(storage),
		WithAlertSinks(sink),
		WithHTTPClient(origin.Client()),
	)
	require.NoError(t, err)
	defer svc.Close()

	_, err = storage.Open(context.Background(), "v1")
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateActivated, svc.Worker().State())

	names, err := storage.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	h := svc.Handler()
	do(h, http.MethodPost, "/_sw/push", "")
	do(h, http.MethodPost, "/_sw/push", "")
	assert.Len(t, sink.alerts(), 1)

	w := do(h, http.MethodGet, "/_sw/metrics", "")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
