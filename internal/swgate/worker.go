package swgate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// WorkerState is the lifecycle position of a worker.
type WorkerState int32

const (
	StateParsed WorkerState = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s WorkerState) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return fmt.Sprintf("WorkerState(%d)", int32(s))
}

// Deps are the platform services the worker runs against.
type Deps struct {
	Caches   CacheStorage
	Network  Fetcher
	Clients  Clients
	Notifier Notifier
	Logger   *zap.Logger

	// Registerer receives the worker's metrics. Nil keeps them private.
	Registerer prometheus.Registerer
}

// Worker is the offline caching and push worker. Its behavior is fixed at
// construction; events only read the configuration.
type Worker struct {
	cfg WorkerConfig

	caches   CacheStorage
	network  Fetcher
	clients  Clients
	notifier Notifier

	log     *zap.Logger
	putLog  *rateLimitedLogger
	metrics *metrics

	handlers dispatchTable

	state          atomic.Int32
	preloadEnabled atomic.Bool
}

func NewWorker(cfg WorkerConfig, deps Deps) *Worker {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		cfg:      cfg.withDefaults(),
		caches:   deps.Caches,
		network:  deps.Network,
		clients:  deps.Clients,
		notifier: deps.Notifier,
		log:      log.With(zap.String("generation", cfg.Generation)),
		metrics:  newMetrics(deps.Registerer),
	}
	w.putLog = newRateLimitedLogger(w.log, time.Minute)
	w.handlers = dispatchTable{
		EventInstall:           w.onInstall,
		EventActivate:          w.onActivate,
		EventFetch:             w.onFetch,
		EventPush:              w.onPush,
		EventNotificationClick: w.onNotificationClick,
	}
	return w
}

func (w *Worker) Config() WorkerConfig { return w.cfg }

func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// PreloadEnabled reports whether navigation preload was turned on by activate.
func (w *Worker) PreloadEnabled() bool { return w.preloadEnabled.Load() }

// Dispatch delivers ev and returns once all of its work is finished.
func (w *Worker) Dispatch(ctx context.Context, ev Event) error {
	return w.handlers.dispatch(ctx, ev)
}

// Start installs the worker and, when install asked to skip waiting,
// activates it right away.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateParsed), int32(StateInstalling)) {
		return fmt.Errorf("start: worker is %s", w.State())
	}
	ev := &InstallEvent{}
	if err := w.Dispatch(ctx, ev); err != nil {
		w.state.Store(int32(StateRedundant))
		return err
	}
	w.state.Store(int32(StateInstalled))
	if !ev.skipWaiting {
		w.log.Info("installed, waiting for activation")
		return nil
	}
	return w.Activate(ctx)
}

// Activate runs the activate step for an installed worker.
func (w *Worker) Activate(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateInstalled), int32(StateActivating)) {
		return fmt.Errorf("activate: worker is %s", w.State())
	}
	if err := w.Dispatch(ctx, &ActivateEvent{}); err != nil {
		// stays installed so activation can be retried
		w.state.Store(int32(StateInstalled))
		return err
	}
	w.state.Store(int32(StateActivated))
	w.log.Info("activated", zap.Bool("navigationPreload", w.PreloadEnabled()))
	return nil
}

// HandleFetch runs the fetch event for req. handled is false when the worker
// left the request to the network: it is not active yet, or it never
// intercepts this kind of request.
func (w *Worker) HandleFetch(ctx context.Context, req *Request, preload PreloadFunc) (resp *Response, handled bool, err error) {
	if w.State() != StateActivated {
		return nil, false, nil
	}
	ev := &FetchEvent{Request: req, Preload: preload}
	err = w.Dispatch(ctx, ev)
	resp, handled = ev.Response()
	if handled {
		w.metrics.observeResponse(req, resp)
	}
	return resp, handled, err
}

// Push dispatches a push delivery.
func (w *Worker) Push(ctx context.Context, data []byte) error {
	return w.Dispatch(ctx, &PushEvent{Data: data})
}

// Click dispatches a notification click.
func (w *Worker) Click(ctx context.Context, n Notification) error {
	return w.Dispatch(ctx, &NotificationClickEvent{Notification: n})
}

func (w *Worker) openCurrent(ctx context.Context) (Cache, error) {
	c, err := w.caches.Open(ctx, w.cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", w.cfg.Generation, err)
	}
	return c, nil
}

// storeCopy upserts a copy of resp for req into the current generation.
// Failures are logged and never reach the caller's response.
func (w *Worker) storeCopy(ctx context.Context, req *Request, resp *Response) {
	if !resp.OK() {
		return
	}
	err := w.putCurrent(ctx, req, resp)
	switch {
	case err == nil:
		w.metrics.cachePuts.WithLabelValues("ok").Inc()
	case isSkip(err):
		w.metrics.cachePuts.WithLabelValues("skipped").Inc()
		w.log.Debug("cache put skipped", zap.String("key", req.CacheKey()), zap.Error(err))
	default:
		w.metrics.cachePuts.WithLabelValues("error").Inc()
		w.putLog.Warn("cache put failed", zap.String("key", req.CacheKey()), zap.Error(err))
	}
}

func (w *Worker) putCurrent(ctx context.Context, req *Request, resp *Response) error {
	c, err := w.openCurrent(ctx)
	if err != nil {
		return err
	}
	return c.Put(ctx, req, resp)
}

func (w *Worker) matchCurrent(ctx context.Context, req *Request) (*Response, bool) {
	c, err := w.openCurrent(ctx)
	if err != nil {
		w.log.Warn("cache open failed", zap.Error(err))
		return nil, false
	}
	resp, ok, err := c.Match(ctx, req)
	if err != nil {
		w.log.Warn("cache match failed", zap.String("key", req.CacheKey()), zap.Error(err))
		return nil, false
	}
	return resp, ok
}
