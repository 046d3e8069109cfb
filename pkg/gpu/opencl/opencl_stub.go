//go:build !opencl
// +build !opencl

// Package opencl provides cross-platform GPU acceleration using OpenCL.
// This is a stub implementation for systems without OpenCL support.
package opencl

import (
	"errors"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available (build without opencl tag)")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrBufferCreation     = errors.New("opencl: failed to create buffer")
	ErrKernelBuild        = errors.New("opencl: failed to build kernel")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrInvalidBuffer      = errors.New("opencl: invalid buffer")
)

// Device represents an OpenCL GPU device (stub).
type Device struct{}

// IsAvailable returns false on systems without OpenCL.
func IsAvailable() bool {
	return false
}

// DeviceCount returns 0 on systems without OpenCL.
func DeviceCount() int {
	return 0
}

// NewDevice returns an error on systems without OpenCL.
func NewDevice(deviceID int) (*Device, error) {
	return nil, ErrOpenCLNotAvailable
}

// Release is a no-op stub.
func (d *Device) Release() {}

// ID returns 0.
func (d *Device) ID() int { return 0 }

// Name returns empty string.
func (d *Device) Name() string { return "" }

// Vendor returns empty string.
func (d *Device) Vendor() string { return "" }

// MemoryBytes returns 0.
func (d *Device) MemoryBytes() uint64 { return 0 }

// MemoryMB returns 0.
func (d *Device) MemoryMB() int { return 0 }

// Queue returns nil.
func (d *Device) Queue() compute.Queue { return nil }

// Kernel reports no kernels.
func (d *Device) Kernel(namespace, name string) (compute.Kernel, bool) { return nil, false }

// LoadKernel returns an error.
func (d *Device) LoadKernel(resource, name, namespace string) (compute.Kernel, error) {
	return nil, ErrOpenCLNotAvailable
}

// NewEmptyBuffer returns an error.
func (d *Device) NewEmptyBuffer(usage compute.Usage, count int) (compute.Buffer, error) {
	return nil, ErrOpenCLNotAvailable
}

// NewBuffer returns an error.
func (d *Device) NewBuffer(usage compute.Usage, data []float32) (compute.Buffer, error) {
	return nil, ErrOpenCLNotAvailable
}
