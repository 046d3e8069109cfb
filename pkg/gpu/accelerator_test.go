package gpu

import (
	"errors"
	"testing"

	"github.com/orneryd/nornicdb-nearest/pkg/gpu/opencl"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
)

func TestNewAccelerator(t *testing.T) {
	t.Run("host by default", func(t *testing.T) {
		accel, err := NewAccelerator(nil)
		if err != nil {
			t.Fatalf("NewAccelerator() error = %v", err)
		}
		defer accel.Release()

		if accel.IsEnabled() {
			t.Error("GPU should be disabled by default")
		}
		if accel.Backend() != BackendHost {
			t.Errorf("backend = %s, want host", accel.Backend())
		}
		if accel.Device() == nil {
			t.Fatal("expected a device")
		}
		if _, ok := accel.HostDevice(); !ok {
			t.Error("expected host device")
		}
	})

	t.Run("enabled with fallback", func(t *testing.T) {
		accel, err := NewAccelerator(&Config{Enabled: true, FallbackOnError: true})
		if err != nil {
			t.Fatalf("NewAccelerator() error = %v", err)
		}
		defer accel.Release()

		if accel.Device() == nil {
			t.Fatal("expected a device")
		}
		if accel.IsEnabled() {
			t.Logf("GPU enabled: %s (%s, %d MB)", accel.DeviceName(), accel.Backend(), accel.DeviceMemoryMB())
			return
		}
		if accel.Backend() != BackendHost {
			t.Errorf("backend = %s, want host fallback", accel.Backend())
		}
		if !errors.Is(accel.FallbackReason(), ErrGPUNotAvailable) {
			t.Errorf("FallbackReason() = %v, want ErrGPUNotAvailable", accel.FallbackReason())
		}
		if accel.Stats().Fallbacks != 1 {
			t.Errorf("Fallbacks = %d, want 1", accel.Stats().Fallbacks)
		}
	})

	t.Run("no fallback", func(t *testing.T) {
		if opencl.IsAvailable() {
			t.Skip("OpenCL available")
		}
		_, err := NewAccelerator(&Config{Enabled: true, PreferredBackend: BackendOpenCL})
		if !errors.Is(err, ErrGPUNotAvailable) {
			t.Errorf("error = %v, want ErrGPUNotAvailable", err)
		}
	})

	t.Run("preferred host", func(t *testing.T) {
		accel, err := NewAccelerator(&Config{Enabled: true, PreferredBackend: BackendHost, Workers: 3})
		if err != nil {
			t.Fatalf("NewAccelerator() error = %v", err)
		}
		defer accel.Release()

		dev, ok := accel.HostDevice()
		if !ok {
			t.Fatal("expected host device")
		}
		if dev.Workers() != 3 {
			t.Errorf("Workers() = %d, want 3", dev.Workers())
		}
		if accel.DeviceMemoryMB() != 0 {
			t.Error("host device reports no GPU memory")
		}
	})
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendNone, false},
		{"auto", BackendNone, false},
		{"HOST", BackendHost, false},
		{"cpu", BackendHost, false},
		{" opencl ", BackendOpenCL, false},
		{"cuda", BackendNone, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAcceleratorRelease(t *testing.T) {
	accel, _ := NewAccelerator(nil)
	accel.Release()
	accel.Release()

	if accel.Device() != nil {
		t.Error("device should be nil after Release")
	}
	if accel.Backend() != BackendNone {
		t.Errorf("backend = %s, want none", accel.Backend())
	}
	if accel.DeviceName() != "none" {
		t.Errorf("DeviceName() = %q", accel.DeviceName())
	}
}

func TestAcceleratorAssign(t *testing.T) {
	accel, err := NewAccelerator(&Config{Enabled: true, FallbackOnError: true})
	if err != nil {
		t.Fatalf("NewAccelerator() error = %v", err)
	}
	defer accel.Release()

	a, err := nearest.New(accel.Device(), 2)
	if err != nil {
		t.Fatalf("nearest.New() error = %v", err)
	}
	defer a.Close()

	if err := a.PrepareCentroids([]nearest.Vector{{0, 0}, {10, 10}}); err != nil {
		t.Fatalf("PrepareCentroids() error = %v", err)
	}
	points := []*nearest.Sample{
		nearest.NewSample("a", 1, 1),
		nearest.NewSample("b", 9, 9),
		nearest.NewSample("c", -1, -1),
	}
	for _, p := range points {
		if _, err := a.Add(p); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	out, err := a.Flush()
	if err != nil || out.Err != nil {
		t.Fatalf("Flush() error = %v / %v", err, out.Err)
	}

	want := [][2]float32{{0, 0}, {10, 10}, {0, 0}}
	for i, p := range points {
		if p.Centroid[0] != want[i][0] || p.Centroid[1] != want[i][1] {
			t.Errorf("point %s centroid = %v, want %v", p.ID, p.Centroid, want[i])
		}
	}
}

func BenchmarkHostAssign(b *testing.B) {
	accel, _ := NewAccelerator(nil)
	defer accel.Release()

	a, err := nearest.New(accel.Device(), 16)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	centroids := make([]nearest.Vector, 64)
	for i := range centroids {
		centroids[i] = make(nearest.Vector, 16)
		for d := range centroids[i] {
			centroids[i][d] = float32(i*d%17) - 8
		}
	}
	if err := a.PrepareCentroids(centroids); err != nil {
		b.Fatal(err)
	}

	points := make([]*nearest.Sample, a.Capacity())
	for i := range points {
		coords := make([]float32, 16)
		for d := range coords {
			coords[d] = float32((i+d)%23) - 11
		}
		points[i] = nearest.NewSample("", coords...)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, p := range points {
			if _, err := a.Add(p); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := a.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}
