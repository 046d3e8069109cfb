// Package nearest assigns points to their nearest centroid in batches on a
// compute device.
//
// Points are staged on the host until a batch is full, then a single
// synchronous round trip uploads the batch, runs the nearest_point kernel
// against the prepared centroid set and writes each result back onto the
// point that submitted it. Result row i always belongs to the i-th point
// added to the batch.
//
// Usage:
//
//	a, err := nearest.New(device, 2)
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	if err := a.PrepareCentroids([]nearest.Vector{{0, 0}, {10, 10}}); err != nil {
//		return err
//	}
//	for _, p := range points {
//		if out, err := a.Add(p); err != nil {
//			return err
//		} else if out.Failed() {
//			retry = append(retry, out.Unassigned...)
//		}
//	}
//	out, _ := a.Flush() // partial batches are never dispatched implicitly
//
// An Assigner is not safe for concurrent use. Several assigners may share one
// compute.Device as long as they dispatch from the same goroutine, since the
// device caches one kernel object per entry point.
package nearest

import (
	"context"
	"time"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
	"github.com/orneryd/nornicdb-nearest/pkg/logging"
)

// MaxBatchScalars is the ceiling on flattened scalars held by one batch.
const MaxBatchScalars = 8192

// KernelRef identifies the kernel run by the dispatch engine.
type KernelRef struct {
	Resource  string
	Entry     string
	Namespace string
}

// DefaultKernel is the embedded nearest_point kernel.
var DefaultKernel = KernelRef{
	Resource:  compute.NearestPointResource,
	Entry:     compute.NearestPointEntry,
	Namespace: compute.NearestPointNamespace,
}

// Stats counts assigner activity since construction.
type Stats struct {
	Dispatches        int64
	FailedDispatches  int64
	ItemsAssigned     int64
	ItemsDropped      int64
	ItemsDiscarded    int64
	ScalarsUploaded   int64
	ScalarsDownloaded int64
	CentroidUploads   int64
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(a *Assigner) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithBatchItems sets the initial batch capacity, clamped to the scalar
// budget.
func WithBatchItems(items int) Option {
	return func(a *Assigner) {
		a.requested = items
	}
}

// WithKernel overrides the kernel resource and entry point.
func WithKernel(k KernelRef) Option {
	return func(a *Assigner) {
		a.kernel = k
	}
}

// Assigner is the batch controller: it accumulates points, dispatches full
// batches and owns the device buffers used by those dispatches.
type Assigner struct {
	dev     compute.Device
	dim     int
	kernel  KernelRef
	logger  *logging.Logger
	metrics MetricsCollector

	requested int
	buffers   bufferPair
	batch     batch
	centroids centroidStage
	stats     Stats
	closed    bool
}

// New creates an assigner for points of dimensionality dim on dev.
// The default capacity is MaxBatchScalars/dim points.
func New(dev compute.Device, dim int, opts ...Option) (*Assigner, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if dim <= 0 || dim > MaxBatchScalars {
		return nil, ErrInvalidDimension
	}

	a := &Assigner{
		dev:     dev,
		dim:     dim,
		kernel:  DefaultKernel,
		logger:  logging.NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithDimension(dim)

	items := MaxItems(dim)
	if a.requested != 0 {
		if a.requested < 0 {
			return nil, ErrInvalidBatchSize
		}
		items = ClampItems(a.requested, dim)
	}
	if err := a.allocate(items); err != nil {
		return nil, err
	}
	return a, nil
}

// MaxItems returns floor(MaxBatchScalars / dim).
func MaxItems(dim int) int {
	return MaxBatchScalars / dim
}

// ClampItems limits a requested capacity to the scalar budget.
func ClampItems(items, dim int) int {
	if items > MaxItems(dim) {
		return MaxItems(dim)
	}
	return items
}

func (a *Assigner) allocate(items int) error {
	pair, err := newBufferPair(a.dev, items*a.dim)
	if err != nil {
		return err
	}
	a.buffers.release()
	a.buffers = pair
	a.batch = newBatch(items, a.dim)
	return nil
}

// Dim returns the point dimensionality.
func (a *Assigner) Dim() int { return a.dim }

// Capacity returns the maximum number of points per batch.
func (a *Assigner) Capacity() int { return a.batch.capacity() }

// Pending returns the number of staged points not yet dispatched.
func (a *Assigner) Pending() int { return a.batch.len() }

// CentroidCount returns the size of the prepared centroid set.
func (a *Assigner) CentroidCount() int { return a.centroids.count }

// CentroidVersion returns the fingerprint of the prepared centroid set.
func (a *Assigner) CentroidVersion() string { return a.centroids.version }

// Stats returns a copy of the activity counters.
func (a *Assigner) Stats() Stats { return a.stats }

// PrepareCentroids replaces the device-resident centroid set.
//
// The upload completes before PrepareCentroids returns. If it fails the
// previously prepared set stays in effect and the error is returned.
func (a *Assigner) PrepareCentroids(centroids []Vector) error {
	if a.closed {
		return ErrClosed
	}
	start := time.Now()
	err := a.centroids.prepare(a.dev, a.dim, centroids)
	if err == nil {
		a.stats.CentroidUploads++
	}
	a.metrics.RecordPrepare(len(centroids), time.Since(start), err)
	a.logger.LogPrepare(context.Background(), len(centroids), a.centroids.version, err)
	return err
}

// Add stages p. If the batch is already full it is dispatched first and the
// returned Outcome describes that dispatch. The error is reserved for
// misuse: a closed assigner or a point of the wrong dimensionality.
func (a *Assigner) Add(p Point) (Outcome, error) {
	if a.closed {
		return Outcome{}, ErrClosed
	}
	if p.Dim() != a.dim {
		return Outcome{}, dimensionError(a.batch.len(), p.Dim(), a.dim)
	}

	var out Outcome
	if a.batch.full() {
		out = a.runBatch()
	}
	a.batch.add(p)
	return out, nil
}

// Flush dispatches every staged point. With nothing staged it does nothing
// and returns an Outcome with Dispatched false.
func (a *Assigner) Flush() (Outcome, error) {
	if a.closed {
		return Outcome{}, ErrClosed
	}
	a.logger.Debug("flush", "pending", a.batch.len())
	if a.batch.len() == 0 {
		return Outcome{}, nil
	}
	return a.runBatch(), nil
}

// Resize changes the batch capacity and returns the capacity in effect.
// Requests above the scalar budget are clamped. Both device buffers are
// reallocated and staged points are discarded; flush first to keep them.
// On allocation failure the previous buffers and batch are kept.
func (a *Assigner) Resize(items int) (int, error) {
	if a.closed {
		return 0, ErrClosed
	}
	if items <= 0 {
		return a.Capacity(), ErrInvalidBatchSize
	}
	clamped := ClampItems(items, a.dim)
	discarded := a.batch.len()
	if err := a.allocate(clamped); err != nil {
		a.logger.LogResize(context.Background(), items, a.Capacity(), err)
		return a.Capacity(), err
	}
	a.stats.ItemsDiscarded += int64(discarded)
	a.logger.LogResize(context.Background(), items, clamped, nil)
	return clamped, nil
}

// ResetBuffer reallocates both device buffers at the current capacity and
// discards staged points.
func (a *Assigner) ResetBuffer() error {
	_, err := a.Resize(a.Capacity())
	return err
}

// Close releases the device buffers. Staged points are discarded.
func (a *Assigner) Close() error {
	if a.closed {
		return nil
	}
	if n := a.batch.len(); n > 0 {
		a.logger.Warn("closing with undispatched points", "pending", n)
		a.stats.ItemsDiscarded += int64(n)
		a.batch.reset()
	}
	a.buffers.release()
	a.centroids.release()
	a.closed = true
	return nil
}
