package swgate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Notifier displays notifications.
type Notifier interface {
	// Show displays n. A visible notification with the same non-empty tag is
	// replaced instead of stacked.
	Show(ctx context.Context, n Notification) error
	// Close dismisses the notification with tag. Closing an absent tag is a
	// no-op.
	Close(ctx context.Context, tag string) error
	List() []Notification
}

// AlertSink receives notifications that should alert the user.
type AlertSink interface {
	Alert(ctx context.Context, n Notification) error
}

// Tray holds visible notifications keyed by tag.
type Tray struct {
	log   *zap.Logger
	sinks []AlertSink

	// serializes replace-or-insert so two shows of one tag agree on who alerts
	mu    sync.Mutex
	items *gocache.Cache
}

func NewTray(log *zap.Logger, sinks ...AlertSink) *Tray {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tray{
		log:   log,
		sinks: sinks,
		items: gocache.New(gocache.NoExpiration, 0),
	}
}

func (t *Tray) Show(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := n.Tag
	if key == "" {
		key = "untagged:" + uuid.NewString()
	}
	if n.ShownAt.IsZero() {
		n.ShownAt = time.Now()
	}

	t.mu.Lock()
	_, replaced := t.items.Get(key)
	t.items.Set(key, n, gocache.NoExpiration)
	t.mu.Unlock()

	if replaced && !n.Renotify {
		t.log.Debug("notification replaced silently", zap.String("tag", n.Tag))
		return nil
	}
	for _, s := range t.sinks {
		if err := s.Alert(ctx, n); err != nil {
			t.log.Warn("alert sink failed", zap.String("tag", n.Tag), zap.Error(err))
		}
	}
	return nil
}

func (t *Tray) Close(_ context.Context, tag string) error {
	t.items.Delete(tag)
	return nil
}

// Get returns the visible notification with tag.
func (t *Tray) Get(tag string) (Notification, bool) {
	v, ok := t.items.Get(tag)
	if !ok {
		return Notification{}, false
	}
	return v.(Notification), true
}

// List returns visible notifications, oldest first.
func (t *Tray) List() []Notification {
	items := t.items.Items()
	out := make([]Notification, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(Notification))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShownAt.Before(out[j].ShownAt) })
	return out
}
