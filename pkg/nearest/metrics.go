package nearest

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives one call per device round trip.
// Implement it to export assigner activity to a monitoring system;
// pkg/metrics provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordDispatch is called after every batch dispatch. err is nil when
	// every point in the batch received its centroid.
	RecordDispatch(items int, duration time.Duration, err error)

	// RecordPrepare is called after every centroid upload attempt.
	RecordPrepare(centroids int, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDispatch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordPrepare(int, time.Duration, error)  {}

// BasicMetricsCollector keeps in-memory counters.
type BasicMetricsCollector struct {
	Dispatches       atomic.Int64
	DispatchErrors   atomic.Int64
	ItemsAssigned    atomic.Int64
	ItemsDropped     atomic.Int64
	DispatchNanos    atomic.Int64
	Prepares         atomic.Int64
	PrepareErrors    atomic.Int64
	CentroidsCurrent atomic.Int64
}

// RecordDispatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDispatch(items int, duration time.Duration, err error) {
	b.Dispatches.Add(1)
	b.DispatchNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DispatchErrors.Add(1)
		b.ItemsDropped.Add(int64(items))
		return
	}
	b.ItemsAssigned.Add(int64(items))
}

// RecordPrepare implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrepare(centroids int, _ time.Duration, err error) {
	b.Prepares.Add(1)
	if err != nil {
		b.PrepareErrors.Add(1)
		return
	}
	b.CentroidsCurrent.Store(int64(centroids))
}

// AverageDispatch returns the mean round trip duration.
func (b *BasicMetricsCollector) AverageDispatch() time.Duration {
	n := b.Dispatches.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(b.DispatchNanos.Load() / n)
}
