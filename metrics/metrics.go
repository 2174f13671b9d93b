// Package metrics exposes Prometheus counters for the registry service and a
// small server that publishes them on a separate listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_reservations_total",
			Help: "Total number of name reservations by result.",
		},
		[]string{"domain", "result"},
	)

	MarkJoinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_mark_joined_total",
			Help: "Total number of mark-joined requests by result.",
		},
		[]string{"domain", "result"},
	)

	RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_request_duration_seconds",
			Help:    "Duration of registry backend calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// MetricsServer serves /metrics from its own registry.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New registers the service collectors and prepares a server on addr. An
// empty addr yields a server that is never started.
func New(service, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}
	wrapped := prometheus.WrapRegistererWith(labels, reg)
	for _, c := range []prometheus.Collector{ReservationsTotal, MarkJoinedTotal, RequestDurationSeconds} {
		if err := wrapped.Register(c); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		registry: reg,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the /metrics handler, for tests and embedding.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Result converts an error into a result label.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
