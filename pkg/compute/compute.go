// Package compute defines the device capability consumed by the nearest
// centroid assigner.
//
// A Device bundles a command queue, a kernel cache and buffer allocation.
// It is created once per process (see pkg/gpu) and handed to every
// assigner that needs it. Backends:
//   - pkg/gpu/opencl: OpenCL devices (build tag "opencl")
//   - pkg/gpu/host: pure Go emulation, used as CPU fallback and in tests
//
// All Queue operations block until the device has finished with them.
package compute

import (
	"embed"
	"errors"
	"fmt"
)

// Kernel identifiers for the nearest centroid computation.
const (
	// NearestPointResource is the embedded kernel source path.
	NearestPointResource = "kernels/nearest_point.cl"

	// NearestPointEntry is the kernel entry point inside the resource.
	NearestPointEntry = "nearest_point"

	// NearestPointNamespace groups kernels loaded for the assigner.
	NearestPointNamespace = "NearestPoint"
)

//go:embed kernels/*.cl
var kernelFS embed.FS

// Errors
var (
	ErrResourceNotFound = errors.New("compute: kernel resource not found")
	ErrKernelNotFound   = errors.New("compute: kernel not found")
	ErrInvalidArgument  = errors.New("compute: invalid kernel argument")
	ErrOutOfRange       = errors.New("compute: buffer access out of range")
	ErrReleased         = errors.New("compute: resource already released")
)

// Usage describes how a kernel accesses a buffer.
type Usage int

const (
	ReadWrite Usage = iota
	ReadOnly
	WriteOnly
)

func (u Usage) String() string {
	switch u {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return "read-write"
	}
}

// Buffer is a device-resident float32 array.
type Buffer interface {
	// Len returns the number of float32 elements.
	Len() int
	Release()
}

// Kernel is a compiled compute kernel.
type Kernel interface {
	Name() string
	// SetArg binds argument index to a Buffer, int32 or float32 value.
	SetArg(index int, value any) error
}

// Queue issues commands against a device. Every call blocks.
type Queue interface {
	WriteFloat32(buf Buffer, offset int, data []float32) error
	ReadFloat32(buf Buffer, offset int, dst []float32) error
	// EnqueueKernel runs k over a one-dimensional range of globalSize items.
	EnqueueKernel(k Kernel, globalSize int) error
	Finish() error
}

// Device supplies compiled kernels, a command queue and buffers.
// Implementations are safe for use by multiple assigners.
type Device interface {
	Name() string
	Queue() Queue
	// Kernel returns a previously loaded kernel.
	Kernel(namespace, name string) (Kernel, bool)
	// LoadKernel compiles entry point name from resource and caches it
	// under namespace.
	LoadKernel(resource, name, namespace string) (Kernel, error)
	NewEmptyBuffer(usage Usage, count int) (Buffer, error)
	NewBuffer(usage Usage, data []float32) (Buffer, error)
	Release()
}

// KernelSource returns the embedded source for resource.
func KernelSource(resource string) (string, error) {
	src, err := kernelFS.ReadFile(resource)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrResourceNotFound, resource)
	}
	return string(src), nil
}

// Error is a device failure carrying the backend's native status code.
type Error struct {
	Op   string
	Code int32
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Msg, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the native status code carried by err, if any.
func Code(err error) (int32, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// LoadOrGet returns the cached kernel or loads it on first use.
func LoadOrGet(d Device, resource, name, namespace string) (Kernel, error) {
	if k, ok := d.Kernel(namespace, name); ok {
		return k, nil
	}
	return d.LoadKernel(resource, name, namespace)
}
