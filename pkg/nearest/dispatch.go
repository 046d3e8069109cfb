package nearest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// Outcome reports what happened to one batch.
//
// When Dispatched is false no device work was done and the other fields are
// zero. When Err is non-nil the batch was still reset; Unassigned holds the
// points that did not receive a centroid, in submission order, so the caller
// can re-queue them.
type Outcome struct {
	Dispatched      bool
	BatchID         uuid.UUID
	Items           int
	CentroidVersion string
	Duration        time.Duration
	Err             error
	Unassigned      []Point
}

// Failed reports whether a dispatch happened and did not assign its points.
func (o Outcome) Failed() bool {
	return o.Dispatched && o.Err != nil
}

// runBatch performs one synchronous round trip for every staged point and
// resets the batch whatever the result.
func (a *Assigner) runBatch() Outcome {
	n := a.batch.len()
	out := Outcome{
		Dispatched:      true,
		BatchID:         uuid.New(),
		Items:           n,
		CentroidVersion: a.centroids.version,
	}

	start := time.Now()
	if err := a.roundTrip(n); err != nil {
		out.Err = err
		out.Unassigned = a.batch.snapshot()
		a.stats.FailedDispatches++
		a.stats.ItemsDropped += int64(n)
	} else {
		a.stats.ItemsAssigned += int64(n)
	}
	out.Duration = time.Since(start)
	a.stats.Dispatches++

	a.batch.reset()

	a.metrics.RecordDispatch(n, out.Duration, out.Err)
	a.logger.LogDispatch(context.Background(), out.BatchID.String(), n, out.Err)
	return out
}

func (a *Assigner) roundTrip(n int) error {
	if !a.centroids.ready() {
		return ErrNoCentroids
	}
	kernel, err := compute.LoadOrGet(a.dev, a.kernel.Resource, a.kernel.Entry, a.kernel.Namespace)
	if err != nil {
		return fmt.Errorf("load kernel %s: %w", a.kernel.Entry, err)
	}

	q := a.dev.Queue()
	scalars := n * a.dim

	if err := q.WriteFloat32(a.buffers.input, 0, a.batch.payload[:scalars]); err != nil {
		return fmt.Errorf("upload points: %w", err)
	}
	a.stats.ScalarsUploaded += int64(scalars)

	args := []any{
		a.buffers.output,
		a.buffers.input,
		int32(n),
		a.centroids.buf,
		int32(a.centroids.count),
		int32(a.dim),
	}
	for i, arg := range args {
		if err := kernel.SetArg(i, arg); err != nil {
			return fmt.Errorf("bind argument %d: %w", i, err)
		}
	}

	if err := q.EnqueueKernel(kernel, scalars); err != nil {
		return fmt.Errorf("enqueue %s: %w", kernel.Name(), err)
	}
	if err := q.Finish(); err != nil {
		return fmt.Errorf("finish %s: %w", kernel.Name(), err)
	}

	res := make([]float32, scalars)
	if err := q.ReadFloat32(a.buffers.output, 0, res); err != nil {
		return fmt.Errorf("download results: %w", err)
	}
	a.stats.ScalarsDownloaded += int64(scalars)

	// Row i of the result belongs to items[i].
	for i, p := range a.batch.items {
		lo, hi := i*a.dim, (i+1)*a.dim
		p.SetCentroid(Vector(res[lo:hi:hi]))
	}
	return nil
}
