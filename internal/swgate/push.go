package swgate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// onPush shows the fixed announcement. The payload is not read: every push,
// whatever it carries, raises the same notification under the same tag.
func (w *Worker) onPush(_ context.Context, ev Event) error {
	push := ev.(*PushEvent)
	w.metrics.pushes.Inc()

	n := Notification{
		Title:    w.cfg.PushTitle,
		Body:     w.cfg.PushBody,
		Tag:      w.cfg.PushTag,
		Renotify: false,
		Data:     NotificationData{URL: w.cfg.DefaultTargetURL},
	}
	push.WaitUntil(func(ctx context.Context) error {
		if err := w.notifier.Show(ctx, n); err != nil {
			return fmt.Errorf("show notification: %w", err)
		}
		w.log.Debug("notification shown", zap.String("tag", n.Tag), zap.Int("payloadBytes", len(push.Data)))
		return nil
	})
	return nil
}
