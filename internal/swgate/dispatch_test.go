package swgate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_WaitsForExtensions(t *testing.T) {
	var done atomic.Bool
	table := dispatchTable{
		EventPush: func(_ context.Context, ev Event) error {
			ev.(*PushEvent).WaitUntil(func(context.Context) error {
				time.Sleep(20 * time.Millisecond)
				done.Store(true)
				return nil
			})
			return nil
		},
	}

	require.NoError(t, table.dispatch(context.Background(), &PushEvent{}))
	assert.True(t, done.Load(), "dispatch returned before extended work finished")
}

func TestDispatch_Errors(t *testing.T) {
	boom := errors.New("boom")
	table := dispatchTable{
		EventPush: func(context.Context, Event) error { return boom },
		EventActivate: func(_ context.Context, ev Event) error {
			ev.(*ActivateEvent).WaitUntil(func(context.Context) error { return boom })
			return nil
		},
	}

	err := table.dispatch(context.Background(), &PushEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "push handler")

	err = table.dispatch(context.Background(), &ActivateEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "activate waitUntil")

	err = table.dispatch(context.Background(), &InstallEvent{})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatch_HandlerWithoutExtensions(t *testing.T) {
	table := dispatchTable{
		EventFetch: func(_ context.Context, ev Event) error {
			ev.(*FetchEvent).RespondWith(okResp("hi"))
			return nil
		},
	}
	ev := &FetchEvent{Request: getReq("/")}
	require.NoError(t, table.dispatch(context.Background(), ev))
	resp, ok := ev.Response()
	require.True(t, ok)
	assert.Equal(t, "hi", string(resp.Body))
}

func TestFetchEvent_FirstResponseWins(t *testing.T) {
	ev := &FetchEvent{}
	_, ok := ev.Response()
	assert.False(t, ok)

	ev.RespondWith(okResp("first"))
	ev.RespondWith(okResp("second"))
	resp, ok := ev.Response()
	require.True(t, ok)
	assert.Equal(t, "first", string(resp.Body))
}
