package swgate

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// onInstall opens the current generation and seeds the offline fallback.
// A failed seed never fails the install.
func (w *Worker) onInstall(ctx context.Context, ev Event) error {
	install := ev.(*InstallEvent)

	c, err := w.openCurrent(ctx)
	if err != nil {
		return err
	}

	install.WaitUntil(func(ctx context.Context) error {
		if err := w.seedOffline(ctx, c); err != nil {
			w.log.Warn("offline fallback not seeded", zap.String("url", w.cfg.OfflineURL), zap.Error(err))
		}
		return nil
	})

	install.SkipWaiting()
	return nil
}

func (w *Worker) seedOffline(ctx context.Context, c Cache) error {
	req := &Request{Method: http.MethodGet, URL: w.cfg.OfflineURL, Header: http.Header{}}
	resp, err := w.network.Fetch(ctx, bypassRequest(req))
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("offline page returned status %d", resp.Status)
	}
	return c.Put(ctx, req, resp)
}

// onActivate drops every stale generation, turns on navigation preload and
// claims open windows.
func (w *Worker) onActivate(ctx context.Context, ev Event) error {
	activate := ev.(*ActivateEvent)

	activate.WaitUntil(func(ctx context.Context) error {
		deleted, err := PurgeStale(ctx, w.caches, w.cfg.Generation)
		for _, name := range deleted {
			w.metrics.cachesDeleted.Inc()
			w.log.Info("deleted stale cache", zap.String("cache", name))
		}
		if err != nil {
			return err
		}

		if w.cfg.NavigationPreload {
			w.preloadEnabled.Store(true)
		}

		if err := w.clients.Claim(ctx); err != nil {
			return fmt.Errorf("claim clients: %w", err)
		}
		return nil
	})
	return nil
}

// PurgeStale deletes every cache in st except keep and returns the names it
// removed, including those removed before a failure.
func PurgeStale(ctx context.Context, st CacheStorage, keep string) ([]string, error) {
	names, err := st.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	var deleted []string
	for _, name := range staleNames(names, keep) {
		ok, err := st.Delete(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("delete cache %s: %w", name, err)
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}
