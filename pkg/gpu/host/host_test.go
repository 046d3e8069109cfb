package host

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

func loadNearest(t *testing.T, d *Device) compute.Kernel {
	t.Helper()
	k, err := compute.LoadOrGet(d, compute.NearestPointResource, compute.NearestPointEntry, compute.NearestPointNamespace)
	require.NoError(t, err)
	return k
}

func TestLoadKernel(t *testing.T) {
	d := NewDevice(2)
	defer d.Release()

	_, ok := d.Kernel(compute.NearestPointNamespace, compute.NearestPointEntry)
	assert.False(t, ok, "kernel must not be cached before load")

	k := loadNearest(t, d)
	assert.Equal(t, compute.NearestPointEntry, k.Name())

	cached, ok := d.Kernel(compute.NearestPointNamespace, compute.NearestPointEntry)
	require.True(t, ok)
	assert.Same(t, k, cached)

	t.Run("missing entry point", func(t *testing.T) {
		_, err := d.LoadKernel(compute.NearestPointResource, "farthest_point", "x")
		assert.ErrorIs(t, err, compute.ErrKernelNotFound)
	})

	t.Run("missing resource", func(t *testing.T) {
		_, err := d.LoadKernel("kernels/nope.cl", compute.NearestPointEntry, "x")
		assert.ErrorIs(t, err, compute.ErrResourceNotFound)
	})
}

func TestNearestPointKernel(t *testing.T) {
	d := NewDevice(3)
	q := d.Queue()
	k := loadNearest(t, d)

	points := []float32{1, 1, 9, 9, -1, -1, 6, 4}
	centroids := []float32{0, 0, 10, 10}

	in, err := d.NewEmptyBuffer(compute.ReadOnly, len(points))
	require.NoError(t, err)
	out, err := d.NewEmptyBuffer(compute.ReadWrite, len(points))
	require.NoError(t, err)
	cb, err := d.NewBuffer(compute.ReadOnly, centroids)
	require.NoError(t, err)

	require.NoError(t, q.WriteFloat32(in, 0, points))
	require.NoError(t, k.SetArg(0, out))
	require.NoError(t, k.SetArg(1, in))
	require.NoError(t, k.SetArg(2, int32(4)))
	require.NoError(t, k.SetArg(3, cb))
	require.NoError(t, k.SetArg(4, int32(2)))
	require.NoError(t, k.SetArg(5, int32(2)))
	require.NoError(t, q.EnqueueKernel(k, len(points)))
	require.NoError(t, q.Finish())

	got := make([]float32, len(points))
	require.NoError(t, q.ReadFloat32(out, 0, got))
	assert.Equal(t, []float32{0, 0, 10, 10, 0, 0, 10, 10}, got)

	s := d.Stats()
	assert.Equal(t, int64(1), s.KernelLaunches)
	assert.Equal(t, int64(1), s.Writes)
	assert.Equal(t, int64(1), s.Reads)
	assert.Equal(t, int64(3), s.Allocs)
}

func TestNearestPointTieBreak(t *testing.T) {
	d := NewDevice(1)
	q := d.Queue()
	k := loadNearest(t, d)

	in, _ := d.NewBuffer(compute.ReadOnly, []float32{5})
	out, _ := d.NewEmptyBuffer(compute.ReadWrite, 1)
	cb, _ := d.NewBuffer(compute.ReadOnly, []float32{0, 10})

	for i, v := range []any{out, in, int32(1), cb, int32(2), int32(1)} {
		require.NoError(t, k.SetArg(i, v))
	}
	require.NoError(t, q.EnqueueKernel(k, 1))

	got := make([]float32, 1)
	require.NoError(t, q.ReadFloat32(out, 0, got))
	assert.Equal(t, float32(0), got[0], "equidistant centroids resolve to the lowest index")
}

func TestNearestPointNaN(t *testing.T) {
	d := NewDevice(1)
	q := d.Queue()
	k := loadNearest(t, d)

	nan := float32(math.NaN())
	points := []float32{nan, 9, 9, 9}
	in, _ := d.NewBuffer(compute.ReadOnly, points)
	out, _ := d.NewEmptyBuffer(compute.ReadWrite, len(points))
	cb, _ := d.NewBuffer(compute.ReadOnly, []float32{0, 0, 10, 10})

	for i, v := range []any{out, in, int32(2), cb, int32(2), int32(2)} {
		require.NoError(t, k.SetArg(i, v))
	}
	require.NoError(t, q.EnqueueKernel(k, len(points)))

	got := make([]float32, len(points))
	require.NoError(t, q.ReadFloat32(out, 0, got))
	assert.Equal(t, []float32{0, 0, 10, 10}, got, "points with NaN coordinates keep centroid 0")
}

func TestKernelArgumentValidation(t *testing.T) {
	d := NewDevice(1)
	q := d.Queue()
	k := loadNearest(t, d)

	assert.ErrorIs(t, k.SetArg(0, "nope"), compute.ErrInvalidArgument)

	released, _ := d.NewEmptyBuffer(compute.ReadWrite, 4)
	released.Release()
	err := k.SetArg(0, released)
	code, ok := compute.Code(err)
	require.True(t, ok)
	assert.Equal(t, StatusInvalidMemObject, code)

	// Only one argument bound.
	out, _ := d.NewEmptyBuffer(compute.ReadWrite, 4)
	require.NoError(t, k.SetArg(0, out))
	err = q.EnqueueKernel(k, 4)
	code, ok = compute.Code(err)
	require.True(t, ok)
	assert.Equal(t, StatusInvalidKernelArgs, code)
}

func TestBufferBounds(t *testing.T) {
	d := NewDevice(1)
	q := d.Queue()
	buf, err := d.NewEmptyBuffer(compute.ReadWrite, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, buf.Len())

	assert.ErrorIs(t, q.WriteFloat32(buf, 2, []float32{1, 2, 3}), compute.ErrOutOfRange)
	assert.ErrorIs(t, q.ReadFloat32(buf, 0, make([]float32, 5)), compute.ErrOutOfRange)

	_, err = d.NewEmptyBuffer(compute.ReadWrite, 0)
	assert.ErrorIs(t, err, ErrEmptyBuffer)
	_, err = d.NewBuffer(compute.ReadOnly, nil)
	assert.ErrorIs(t, err, ErrEmptyBuffer)

	buf.Release()
	assert.Equal(t, 0, buf.Len())
	assert.ErrorIs(t, q.WriteFloat32(buf, 0, []float32{1}), compute.ErrReleased)
}

func TestFailNext(t *testing.T) {
	d := NewDevice(1)
	q := d.Queue()
	buf, _ := d.NewEmptyBuffer(compute.ReadWrite, 2)

	d.FailNext(OpWrite, StatusOutOfResources)
	d.FailNext(OpWrite, StatusInvalidCommandQueue)

	err := q.WriteFloat32(buf, 0, []float32{1, 2})
	code, _ := compute.Code(err)
	assert.Equal(t, StatusOutOfResources, code)

	err = q.WriteFloat32(buf, 0, []float32{1, 2})
	code, _ = compute.Code(err)
	assert.Equal(t, StatusInvalidCommandQueue, code)

	assert.NoError(t, q.WriteFloat32(buf, 0, []float32{1, 2}))

	d.FailNext(OpFinish, StatusOutOfResources)
	assert.Error(t, q.Finish())
	assert.NoError(t, q.Finish())

	d.FailNext(OpAlloc, StatusMemAllocFailure)
	_, err = d.NewEmptyBuffer(compute.ReadWrite, 2)
	code, _ = compute.Code(err)
	assert.Equal(t, StatusMemAllocFailure, code)
}

func TestParallelRangeCoversAllItems(t *testing.T) {
	const items = 1001
	d := NewDevice(7)
	q := d.Queue()
	k := loadNearest(t, d)

	points := make([]float32, items)
	for i := range points {
		points[i] = float32(i)
	}
	in, _ := d.NewBuffer(compute.ReadOnly, points)
	out, _ := d.NewEmptyBuffer(compute.ReadWrite, items)
	cb, _ := d.NewBuffer(compute.ReadOnly, []float32{0, 500, 1000})

	for i, v := range []any{out, in, int32(items), cb, int32(3), int32(1)} {
		require.NoError(t, k.SetArg(i, v))
	}
	require.NoError(t, q.EnqueueKernel(k, items))

	got := make([]float32, items)
	require.NoError(t, q.ReadFloat32(out, 0, got))
	for i, v := range got {
		var want float32
		switch {
		case i <= 250:
			want = 0
		case i <= 750:
			want = 500
		default:
			want = 1000
		}
		require.Equalf(t, want, v, "item %d", i)
	}
}
