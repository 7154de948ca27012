package swgate

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	responses     *prometheus.CounterVec
	cachePuts     *prometheus.CounterVec
	pushes        prometheus.Counter
	clicks        *prometheus.CounterVec
	cachesDeleted prometheus.Counter
}

// newMetrics registers the worker's collectors on reg. A nil reg gets a
// private registry.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swgate",
			Name:      "fetch_responses_total",
			Help:      "Responses produced for intercepted fetches, by request mode and source tier.",
		}, []string{"mode", "source"}),
		cachePuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swgate",
			Name:      "cache_puts_total",
			Help:      "Cache writes, by result.",
		}, []string{"result"}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swgate",
			Name:      "push_events_total",
			Help:      "Push events received.",
		}),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swgate",
			Name:      "notification_clicks_total",
			Help:      "Notification clicks, by routing action.",
		}, []string{"action"}),
		cachesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swgate",
			Name:      "caches_deleted_total",
			Help:      "Stale cache generations deleted on activate.",
		}),
	}
	reg.MustRegister(m.responses, m.cachePuts, m.pushes, m.clicks, m.cachesDeleted)
	return m
}

func (m *metrics) observeResponse(req *Request, resp *Response) {
	mode := "resource"
	if req.isNavigation() {
		mode = "navigate"
	}
	m.responses.WithLabelValues(mode, resp.Source()).Inc()
}
