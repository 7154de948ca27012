package swgate

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// onNotificationClick dismisses the notification and brings the target page
// up, reusing an open window when there is one.
func (w *Worker) onNotificationClick(_ context.Context, ev Event) error {
	click := ev.(*NotificationClickEvent)
	n := click.Notification

	click.WaitUntil(func(ctx context.Context) error {
		if err := w.notifier.Close(ctx, n.Tag); err != nil {
			w.log.Warn("close notification", zap.String("tag", n.Tag), zap.Error(err))
		}

		target := n.Data.URL
		if target == "" {
			target = w.cfg.DefaultTargetURL
		}

		windows, err := w.clients.MatchAll(ctx, MatchOptions{IncludeUncontrolled: true})
		if err != nil {
			return fmt.Errorf("match clients: %w", err)
		}
		if len(windows) > 0 {
			win := windows[0]
			if err := win.Navigate(ctx, target); err != nil {
				return fmt.Errorf("navigate %s: %w", win.ID(), err)
			}
			if err := win.Focus(ctx); err != nil {
				return fmt.Errorf("focus %s: %w", win.ID(), err)
			}
			w.metrics.clicks.WithLabelValues("focus").Inc()
			w.log.Debug("focused window", zap.String("client", win.ID()), zap.String("url", target))
			return nil
		}

		win, err := w.clients.OpenWindow(ctx, target)
		if err != nil {
			return fmt.Errorf("open window %s: %w", target, err)
		}
		w.metrics.clicks.WithLabelValues("open").Inc()
		w.log.Debug("opened window", zap.String("client", win.ID()), zap.String("url", target))
		return nil
	})
	return nil
}
