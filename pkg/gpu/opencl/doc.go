// Package opencl provides cross-platform GPU acceleration using OpenCL.
//
// This package implements the compute.Device capability on top of
// OpenCL, which provides cross-platform support for AMD, Intel, and NVIDIA GPUs.
// It runs the nearest_point kernel used for batched centroid assignment.
//
// # Requirements
//
// For AMD GPUs on Linux:
//   - ROCm (Radeon Open Compute): https://rocm.docs.amd.com/
//   - Or AMD GPU drivers with OpenCL support
//
// For AMD GPUs on Windows:
//   - AMD Adrenalin drivers with OpenCL support
//
// For Intel GPUs:
//   - Intel oneAPI or Intel OpenCL runtime
//
// For NVIDIA GPUs (alternative to CUDA):
//   - NVIDIA drivers with OpenCL support
//
// # Build Tags
//
// This package is only compiled when the "opencl" build tag is present:
//
//	go build -tags opencl
//
// # Environment Variables
//
// Linux (AMD ROCm):
//
//	export LD_LIBRARY_PATH=/opt/rocm/opencl/lib:$LD_LIBRARY_PATH
//
// macOS (via Homebrew):
//
//	Note: macOS deprecated OpenCL in favor of Metal. Use Metal backend instead.
//
// Windows:
//
//	OpenCL drivers are typically included with GPU drivers.
//
// # Architecture
//
// The OpenCL backend uses:
//   - OpenCL 1.2 or later for compute operations
//   - One in-order command queue per device, shared by all assigners
//   - Kernels built from the embedded sources in pkg/compute and cached by
//     namespace and entry point
//   - Blocking buffer reads and writes; clFinish after every kernel launch
//
// # Performance Considerations
//
// OpenCL performance varies by vendor and driver:
//   - AMD GPUs: Excellent performance with ROCm drivers
//   - Intel GPUs: Good for integrated graphics, limited VRAM
//   - NVIDIA: Works with the NVIDIA OpenCL ICD
//
// The nearest_point kernel runs one work item per (point, dimension) slot,
// so a batch of n points in d dimensions launches n*d work items.
//
// # Example
//
// Basic usage:
//
//	device, err := opencl.NewDevice(0) // First OpenCL device
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer device.Release()
//
//	assigner, err := nearest.New(device, 3)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer assigner.Close()
package opencl
