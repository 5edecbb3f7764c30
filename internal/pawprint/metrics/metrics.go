// Package metrics exposes the proxy's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pawprint"

// Login outcomes.
const (
	LoginReused  = "reused"
	LoginCreated = "created"
	LoginFailed  = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	logins         *prometheus.CounterVec
	failures       *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	sessionsPurged prometheus.Counter
}

// New creates a registry with the proxy metrics plus the Go runtime and
// process collectors. cachedClients reports the size of the client cache.
func New(cachedClients func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "failures_total",
			Help:      "Failures returned to clients by error code",
		}, []string{"errcode"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Duration of remote calls to Trac servers",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "result"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "purged_total",
			Help:      "Expired sessions removed by the sweeper",
		}),
	}

	m.registry.MustRegister(
		m.logins,
		m.failures,
		m.rpcDuration,
		m.sessionsPurged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cachedClients != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clientcache",
			Name:      "clients",
			Help:      "Remote clients currently cached",
		}, func() float64 { return float64(cachedClients()) }))
	}
	return m
}

// Login counts a login attempt.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Failure counts an error envelope sent with code.
func (m *Metrics) Failure(code int) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveRPC records a remote call. Its signature matches rpcclient.Observer.
func (m *Metrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.rpcDuration.WithLabelValues(method, result).Observe(elapsed.Seconds())
}

// SessionsPurged counts sessions removed by a sweep.
func (m *Metrics) SessionsPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsPurged.Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
