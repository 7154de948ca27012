package swgate

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shownNotification(t *testing.T, env *testEnv) Notification {
	t.Helper()
	require.NoError(t, env.w.Push(context.Background(), nil))
	n, ok := env.tray.Get("daily-devotional")
	require.True(t, ok)
	return n
}

func TestClick_FocusesExistingWindow(t *testing.T) {
	env := started(t, testWorkerConfig("v1"))
	other := env.clients.Register("/about")
	win := env.clients.Register("/settings")
	n := shownNotification(t, env)

	require.NoError(t, env.w.Click(context.Background(), n))

	windows := env.clients.List()
	require.Len(t, windows, 2, "no new window")
	got, err := env.clients.Get(other.ID)
	require.NoError(t, err)
	assert.Equal(t, "/today", got.URL)
	assert.True(t, got.Focused)

	untouched, err := env.clients.Get(win.ID)
	require.NoError(t, err)
	assert.Equal(t, "/settings", untouched.URL)
	assert.False(t, untouched.Focused)

	_, ok := env.tray.Get("daily-devotional")
	assert.False(t, ok, "clicked notification is closed")
	assert.Equal(t, float64(1), testutil.ToFloat64(env.w.metrics.clicks.WithLabelValues("focus")))
}

func TestClick_IncludesUncontrolledWindows(t *testing.T) {
	env := started(t, testWorkerConfig("v1"))
	// registered after activate claimed clients, so never controlled
	win := env.clients.Register("/")
	require.False(t, win.Controlled)

	require.NoError(t, env.w.Click(context.Background(), shownNotification(t, env)))

	require.Len(t, env.clients.List(), 1)
	got, err := env.clients.Get(win.ID)
	require.NoError(t, err)
	assert.Equal(t, "/today", got.URL)
	assert.True(t, got.Focused)
}

func TestClick_OpensWindowWhenNoneOpen(t *testing.T) {
	env := started(t, testWorkerConfig("v1"))

	require.NoError(t, env.w.Click(context.Background(), shownNotification(t, env)))

	windows := env.clients.List()
	require.Len(t, windows, 1)
	assert.Equal(t, "/today", windows[0].URL)
	assert.True(t, windows[0].Focused)
	assert.True(t, windows[0].Controlled)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.w.metrics.clicks.WithLabelValues("open")))
}

func TestClick_TargetURL(t *testing.T) {
	tests := []struct {
		name string
		data NotificationData
		want string
	}{
		{name: "from data", data: NotificationData{URL: "/devotional/42"}, want: "/devotional/42"},
		{name: "default", data: NotificationData{}, want: "/today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := started(t, testWorkerConfig("v1"))
			n := Notification{Title: "t", Tag: "x", Data: tt.data}

			require.NoError(t, env.w.Click(context.Background(), n))
			windows := env.clients.List()
			require.Len(t, windows, 1)
			assert.Equal(t, tt.want, windows[0].URL)
		})
	}
}

type brokenClients struct{ err error }

func (b brokenClients) MatchAll(context.Context, MatchOptions) ([]WindowClient, error) {
	return nil, b.err
}
func (b brokenClients) OpenWindow(context.Context, string) (WindowClient, error) { return nil, b.err }
func (b brokenClients) Claim(context.Context) error                            { return b.err }

func TestClick_ClientFailureFailsEvent(t *testing.T) {
	w := NewWorker(testWorkerConfig("v1"), Deps{
		Caches:   NewMemoryStorage(0),
		Clients:  brokenClients{err: assert.AnError},
		Notifier: NewTray(nil),
	})
	err := w.Click(context.Background(), Notification{Tag: "x"})
	assert.ErrorIs(t, err, assert.AnError)
}
