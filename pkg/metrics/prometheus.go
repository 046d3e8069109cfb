// Package metrics exports assigner activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
)

const namespace = "nearest"

// Prometheus implements nearest.MetricsCollector.
type Prometheus struct {
	latency   *prometheus.HistogramVec
	items     *prometheus.CounterVec
	batches   *prometheus.CounterVec
	centroids prometheus.Gauge
}

var _ nearest.MetricsCollector = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of device round trips",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Points processed by dispatches",
		}, []string{"result"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Batch dispatches",
		}, []string{"status"}),
		centroids: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "centroids",
			Help:      "Size of the prepared centroid set",
		}),
	}
	for _, c := range []prometheus.Collector{p.latency, p.items, p.batches, p.centroids} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordDispatch implements nearest.MetricsCollector.
func (p *Prometheus) RecordDispatch(items int, d time.Duration, err error) {
	s := status(err)
	p.latency.WithLabelValues("dispatch", s).Observe(d.Seconds())
	p.batches.WithLabelValues(s).Inc()
	if err != nil {
		p.items.WithLabelValues("dropped").Add(float64(items))
		return
	}
	p.items.WithLabelValues("assigned").Add(float64(items))
}

// RecordPrepare implements nearest.MetricsCollector.
func (p *Prometheus) RecordPrepare(centroids int, d time.Duration, err error) {
	p.latency.WithLabelValues("prepare", status(err)).Observe(d.Seconds())
	if err == nil {
		p.centroids.Set(float64(centroids))
	}
}

// Handler serves the metrics gathered by g. A nil g uses the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, g)
}

// ServeListener exposes /metrics on ln until ctx is cancelled, then shuts
// the server down and returns once in-flight scrapes have finished. ln is
// closed on return.
func ServeListener(ctx context.Context, ln net.Listener, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
