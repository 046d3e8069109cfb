package nearest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	flat, err := Flatten([]Vector{{1, 2}, {3, 4}, {5, 6}}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, flat)

	_, err = Flatten([]Vector{{1, 2}, {3}}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "element 1")
}

func TestVectors(t *testing.T) {
	samples := []*Sample{NewSample("a", 1, 2), NewSample("b", 3, 4)}
	vs := Vectors(samples)
	assert.Equal(t, []Vector{{1, 2}, {3, 4}}, vs)

	vs[0][0] = 99
	assert.Equal(t, float32(1), samples[0].Coords[0])
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]float32{0, 0, 10, 10}, 2)
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint([]float32{0, 0, 10, 10}, 2))
	assert.NotEqual(t, a, Fingerprint([]float32{0, 0, 10, 11}, 2))
	assert.NotEqual(t, a, Fingerprint([]float32{0, 0, 10, 10}, 1))
}

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}
	assert.Equal(t, time.Duration(0), m.AverageDispatch())

	m.RecordDispatch(10, 2*time.Millisecond, nil)
	m.RecordDispatch(4, 4*time.Millisecond, errors.New("boom"))
	m.RecordPrepare(3, time.Millisecond, nil)
	m.RecordPrepare(5, time.Millisecond, errors.New("boom"))

	assert.Equal(t, int64(2), m.Dispatches.Load())
	assert.Equal(t, int64(1), m.DispatchErrors.Load())
	assert.Equal(t, int64(10), m.ItemsAssigned.Load())
	assert.Equal(t, int64(4), m.ItemsDropped.Load())
	assert.Equal(t, 3*time.Millisecond, m.AverageDispatch())
	assert.Equal(t, int64(2), m.Prepares.Load())
	assert.Equal(t, int64(1), m.PrepareErrors.Load())
	assert.Equal(t, int64(3), m.CentroidsCurrent.Load())
}
