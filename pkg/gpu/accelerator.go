// Package gpu selects the compute device used for nearest-centroid dispatch.
//
// The accelerator prefers a GPU backend and falls back to the pure Go host
// device when no GPU can be opened.
package gpu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
	"github.com/orneryd/nornicdb-nearest/pkg/gpu/host"
	"github.com/orneryd/nornicdb-nearest/pkg/gpu/opencl"
)

// Errors
var (
	ErrGPUNotAvailable = errors.New("gpu: no GPU backend available")
	ErrUnknownBackend  = errors.New("gpu: unknown backend")
)

// Backend identifies a compute backend.
type Backend int

const (
	// BackendNone means no backend has been selected.
	BackendNone Backend = iota
	// BackendHost runs kernels as Go code on the CPU.
	BackendHost
	// BackendOpenCL runs kernels on an OpenCL device.
	BackendOpenCL
)

func (b Backend) String() string {
	switch b {
	case BackendHost:
		return "host"
	case BackendOpenCL:
		return "opencl"
	default:
		return "none"
	}
}

// ParseBackend converts a backend name. The empty string and "auto" map to
// BackendNone, which lets the accelerator choose.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "none":
		return BackendNone, nil
	case "host", "cpu":
		return BackendHost, nil
	case "opencl", "cl":
		return BackendOpenCL, nil
	}
	return BackendNone, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Config controls backend selection.
type Config struct {
	// Enabled turns on GPU backends. When false the host device is used.
	Enabled bool
	// PreferredBackend is tried first. BackendNone auto-detects.
	PreferredBackend Backend
	// FallbackOnError selects the host device when no GPU can be opened.
	FallbackOnError bool
	// DeviceIndex selects among several OpenCL devices.
	DeviceIndex int
	// Workers is the host device parallelism. 0 uses GOMAXPROCS.
	Workers int
}

// DefaultConfig returns a host-only configuration with fallback enabled.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		FallbackOnError: true,
	}
}

// AcceleratorStats describes how the device was chosen.
type AcceleratorStats struct {
	BackendsTried int
	Fallbacks     int
}

// Accelerator owns the selected compute device.
//
// Usage:
//
//	accel, err := gpu.NewAccelerator(&gpu.Config{Enabled: true, FallbackOnError: true})
//	if err != nil {
//		return err
//	}
//	defer accel.Release()
//
//	a, err := nearest.New(accel.Device(), dim)
type Accelerator struct {
	config *Config

	mu          sync.RWMutex
	backend     Backend
	device      compute.Device
	hostDevice  *host.Device
	clDevice    *opencl.Device
	fallbackErr error
	stats       AcceleratorStats
}

// NewAccelerator opens a compute device according to config.
//
// With GPU backends disabled the host device is opened directly. Otherwise
// the preferred backend is tried, then OpenCL. If none opens and
// FallbackOnError is set, the host device is used and FallbackReason
// reports why.
func NewAccelerator(config *Config) (*Accelerator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	a := &Accelerator{config: config}

	if !config.Enabled || config.PreferredBackend == BackendHost {
		a.initHost()
		return a, nil
	}

	if err := a.initBackend(config.PreferredBackend); err != nil {
		if !config.FallbackOnError {
			return nil, err
		}
		a.fallbackErr = err
		a.stats.Fallbacks++
		a.initHost()
	}
	return a, nil
}

func (a *Accelerator) initBackend(preferred Backend) error {
	var backends []Backend
	if preferred != BackendNone {
		backends = append(backends, preferred)
	}
	if preferred != BackendOpenCL {
		backends = append(backends, BackendOpenCL)
	}

	var errs []error
	for _, b := range backends {
		a.stats.BackendsTried++
		err := a.tryBackend(b)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b, err))
	}
	return fmt.Errorf("%w: %w", ErrGPUNotAvailable, errors.Join(errs...))
}

func (a *Accelerator) tryBackend(b Backend) error {
	switch b {
	case BackendOpenCL:
		return a.initOpenCL()
	case BackendHost:
		a.initHost()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, b)
	}
}

func (a *Accelerator) initOpenCL() error {
	if !opencl.IsAvailable() {
		return opencl.ErrOpenCLNotAvailable
	}
	if n := opencl.DeviceCount(); a.config.DeviceIndex >= n {
		return fmt.Errorf("device index %d out of range (%d devices)", a.config.DeviceIndex, n)
	}
	dev, err := opencl.NewDevice(a.config.DeviceIndex)
	if err != nil {
		return err
	}
	a.clDevice = dev
	a.device = dev
	a.backend = BackendOpenCL
	return nil
}

func (a *Accelerator) initHost() {
	a.hostDevice = host.NewDevice(a.config.Workers)
	a.device = a.hostDevice
	a.backend = BackendHost
}

// Device returns the selected device, or nil after Release.
func (a *Accelerator) Device() compute.Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.device
}

// HostDevice returns the host device when it is the selected backend.
func (a *Accelerator) HostDevice() (*host.Device, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hostDevice, a.hostDevice != nil
}

// Backend returns the active backend.
func (a *Accelerator) Backend() Backend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend
}

// IsEnabled reports whether a GPU backend is active.
func (a *Accelerator) IsEnabled() bool {
	return a.Backend() == BackendOpenCL
}

// FallbackReason returns the error that caused the host fallback, if any.
func (a *Accelerator) FallbackReason() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fallbackErr
}

// DeviceName returns the name of the selected device.
func (a *Accelerator) DeviceName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.device == nil {
		return "none"
	}
	return a.device.Name()
}

// DeviceMemoryMB returns GPU memory in megabytes, or 0 on the host backend.
func (a *Accelerator) DeviceMemoryMB() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.clDevice != nil {
		return a.clDevice.MemoryMB()
	}
	return 0
}

// Stats returns backend selection counters.
func (a *Accelerator) Stats() AcceleratorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Release frees the device. Buffers created on it must already be released.
func (a *Accelerator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		a.device.Release()
	}
	a.device = nil
	a.hostDevice = nil
	a.clDevice = nil
	a.backend = BackendNone
}
