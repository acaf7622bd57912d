// Package metrics exposes Prometheus collectors for a CLU client.
//
// Collectors are created per client and registered on the Registerer the
// caller supplies; there is no global registry. A nil *Metrics is valid and
// records nothing, so components can call it unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "grenton"

// Request outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Push datagram outcomes.
const (
	PushAccepted      = "accepted"
	PushUndecryptable = "undecryptable"
	PushMalformed     = "malformed"
	PushUnknownClient = "unknown_client"
	PushStale         = "stale"
)

// Metrics holds the collectors of one client.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	InFlight        prometheus.Gauge

	PushTotal       *prometheus.CounterVec
	Notifications   prometheus.Counter
	Pages           prometheus.Gauge
	RefreshFailures prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	// Transport
	m.RequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "Requests sent to the CLU by outcome",
	}, []string{"outcome"})

	m.RequestDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "request_duration_seconds",
		Help:      "Time from send to reply for requests expecting a reply",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	m.InFlight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "requests_in_flight",
		Help:      "Requests currently holding a socket",
	})

	// Subscriptions
	m.PushTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "push_datagrams_total",
		Help:      "Datagrams received on the subscription socket by outcome",
	}, []string{"outcome"})

	m.Notifications = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "notifications_total",
		Help:      "Value change notifications dispatched to handlers",
	})

	m.Pages = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "pages",
		Help:      "Live client pages registered on the CLU",
	})

	m.RefreshFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "refresh_failures_total",
		Help:      "Client page refreshes that failed",
	})

	return m
}

// RequestStarted records a request acquiring a socket.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// RequestFinished records a request releasing its socket. d is observed
// only for successful requests that waited for a reply.
func (m *Metrics) RequestFinished(outcome string, d time.Duration, replied bool) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	if replied {
		m.RequestDuration.Observe(d.Seconds())
	}
}

// PushReceived counts a datagram on the subscription socket.
func (m *Metrics) PushReceived(outcome string) {
	if m == nil {
		return
	}
	m.PushTotal.WithLabelValues(outcome).Inc()
}

// Dispatched counts n notifications handed to handlers.
func (m *Metrics) Dispatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Notifications.Add(float64(n))
}

// SetPages records the number of live pages.
func (m *Metrics) SetPages(n int) {
	if m == nil {
		return
	}
	m.Pages.Set(float64(n))
}

// RefreshFailed counts a failed page refresh.
func (m *Metrics) RefreshFailed() {
	if m == nil {
		return
	}
	m.RefreshFailures.Inc()
}
