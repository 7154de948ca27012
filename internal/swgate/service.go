package swgate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Service is the HTTP process hosting the worker. It turns incoming requests
// into fetch events and exposes the control API push senders and windows use.
type Service struct {
	cfg Config
	log *zap.Logger

	worker   *Worker
	caches   CacheStorage
	disk     *DiskStorage
	network  *OriginFetcher
	clients  *ClientRegistry
	tray     *Tray
	registry *prometheus.Registry
	stats    *responseStats
	mqtt     *mqttSource

	// mu guards closed so no wg.Add races the final Wait.
	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type serviceOptions struct {
	log        *zap.Logger
	storage    CacheStorage
	httpClient *http.Client
	sinks      []AlertSink
}

// Option customizes NewService.
type Option func(*serviceOptions)

func WithLogger(log *zap.Logger) Option {
	return func(o *serviceOptions) { o.log = log }
}

// WithStorage replaces the storage configured by storage.kind.
func WithStorage(st CacheStorage) Option {
	return func(o *serviceOptions) { o.storage = st }
}

// WithHTTPClient sets the client used for origin fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(o *serviceOptions) { o.httpClient = c }
}

// WithAlertSinks adds sinks on top of the configured notify.urls.
func WithAlertSinks(sinks ...AlertSink) Option {
	return func(o *serviceOptions) { o.sinks = append(o.sinks, sinks...) }
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	s := &Service{
		cfg:      cfg,
		log:      o.log,
		registry: prometheus.NewRegistry(),
		clients:  NewClientRegistry(),
		stats:    newResponseStats(),
		stopCh:   make(chan struct{}),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.caches = o.storage
	if s.caches == nil {
		switch cfg.Storage.Kind {
		case StorageMemory:
			s.caches = NewMemoryStorage(cfg.MaxEntryBytes())
		default:
			disk, err := NewDiskStorage(cfg.Storage.Path, cfg.MaxEntryBytes())
			if err != nil {
				return nil, err
			}
			s.disk = disk
			s.caches = disk
		}
	}

	s.network = NewOriginFetcher(cfg.Server.Origin, cfg.FetchTimeout())
	if o.httpClient != nil {
		s.network.Client = o.httpClient
	}

	sinks := o.sinks
	if len(cfg.Notify.URLs) > 0 {
		sinks = append(sinks, NewShoutrrrSink(cfg.Notify.URLs))
	}
	s.tray = NewTray(s.log.Named("tray"), sinks...)

	s.worker = NewWorker(cfg.Worker(), Deps{
		Caches:     s.caches,
		Network:    s.network,
		Clients:    s.clients,
		Notifier:   s.tray,
		Logger:     s.log.Named("worker"),
		Registerer: s.registry,
	})

	if cfg.Push.MQTT.Broker != "" {
		s.mqtt = newMQTTSource(cfg, s.log.Named("mqtt"), s.push)
	}
	return s, nil
}

// Start installs and activates the worker, then starts background loops and
// push sources.
func (s *Service) Start(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	if every := s.cfg.Logging.statsEveryDur; every > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(every)
		}()
	}

	if s.mqtt != nil {
		if err := s.mqtt.Start(); err != nil {
			return fmt.Errorf("start mqtt push source: %w", err)
		}
	}
	return nil
}

// Close stops background loops and push sources, waits for in-flight requests
// and events, then closes storage. It is safe to call more than once.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	if s.mqtt != nil {
		s.mqtt.Stop()
	}
	s.wg.Wait()
	if s.disk != nil {
		if err := s.disk.Close(); err != nil {
			s.log.Warn("close storage", zap.Error(err))
		}
	}
}

func (s *Service) Worker() *Worker { return s.worker }

// acquire registers one unit of in-flight work. It fails once Close started.
func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// inFlight makes Close wait for every request the router is serving.
func (s *Service) inFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.acquire() {
			http.Error(w, ErrServiceClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		defer s.wg.Done()
		next.ServeHTTP(w, r)
	})
}

// push dispatches a push event from a source outside the router.
func (s *Service) push(ctx context.Context, payload []byte) error {
	if !s.acquire() {
		return ErrServiceClosed
	}
	defer s.wg.Done()
	return s.worker.Push(ctx, payload)
}

func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.inFlight)
	r.Route(s.cfg.Server.ControlPrefix, s.controlRoutes)
	r.Handle("/*", http.HandlerFunc(s.handle))
	return r
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromHTTP(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// per-user paths never reach the shared cache
	if src := bypassSource(s.cfg.Rules, r); src != "" {
		s.passThrough(r.Context(), w, req, src)
		return
	}

	var preload PreloadFunc
	if req.isNavigation() && s.worker.PreloadEnabled() {
		preload = s.startPreload(r.Context(), req)
	}

	resp, handled, err := s.worker.HandleFetch(r.Context(), req, preload)
	if err != nil {
		s.log.Warn("fetch event", zap.String("url", req.URL), zap.Error(err))
	}
	if !handled {
		s.passThrough(r.Context(), w, req, SourcePassthrough)
		return
	}
	s.write(w, resp)
}

// startPreload begins the origin fetch for a navigation before the fetch
// event runs, the way a browser overlaps it with worker startup.
func (s *Service) startPreload(ctx context.Context, req *Request) PreloadFunc {
	type result struct {
		resp *Response
		err  error
	}
	ch := make(chan result, 1)
	preq := preloadRequest(req)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		resp, err := s.network.Fetch(ctx, preq)
		ch <- result{resp, err}
	}()
	return func(ctx context.Context) (*Response, error) {
		select {
		case res := <-ch:
			return res.resp, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Service) passThrough(ctx context.Context, w http.ResponseWriter, req *Request, source string) {
	resp, err := s.network.Fetch(ctx, req)
	if err != nil {
		s.log.Debug("passthrough failed", zap.String("method", req.Method), zap.String("url", req.URL), zap.Error(err))
		setSwgateHeaders(w.Header(), "bad-gateway")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	s.write(w, resp.withSource(source))
}

func (s *Service) write(w http.ResponseWriter, resp *Response) {
	writeResponse(w, resp)
	s.stats.Observe(resp)
}

// requestFromHTTP captures what the worker needs from an incoming request.
func requestFromHTTP(r *http.Request) (*Request, error) {
	req := &Request{
		Method: r.Method,
		URL:    r.URL.RequestURI(),
		Mode:   requestMode(r),
		Header: cloneHeader(r.Header),
	}
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		req.Body = b
	}
	return req, nil
}

// requestMode trusts Sec-Fetch-Mode when the browser sends it and otherwise
// treats a GET that accepts HTML as a navigation.
func requestMode(r *http.Request) string {
	if m := r.Header.Get("Sec-Fetch-Mode"); m != "" {
		return strings.ToLower(m)
	}
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return ModeNavigate
	}
	return ModeNoCORS
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	for k, vs := range resp.Header {
		if strings.EqualFold(k, "x-swgate") {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	setSwgateHeaders(w.Header(), resp.Source())
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func setSwgateHeaders(h http.Header, source string) {
	if source != "" {
		h.Set("X-Swgate", source)
	}
	// Browsers hide custom headers from CORS callers unless exposed.
	ensureExposedHeader(h, "X-Swgate")
}

func ensureExposedHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}
	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}
