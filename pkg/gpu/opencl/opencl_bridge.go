//go:build opencl && (linux || windows || darwin)
// +build opencl
// +build linux windows darwin

// Package opencl provides cross-platform GPU acceleration using OpenCL.
package opencl

/*
#cgo linux CFLAGS: -I/opt/rocm/include -I/usr/include
#cgo linux LDFLAGS: -L/opt/rocm/lib -L/usr/lib/x86_64-linux-gnu -lOpenCL
#cgo darwin CFLAGS: -framework OpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#cgo windows LDFLAGS: -lOpenCL

#define CL_TARGET_OPENCL_VERSION 120
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>

static char opencl_build_log[4096] = {0};

const char* opencl_error_string(cl_int error) {
    switch (error) {
        case CL_SUCCESS: return "CL_SUCCESS";
        case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
        case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
        case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
        case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
        case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
        case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
        case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
        case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
        case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
        case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
        case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
        case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
        case CL_INVALID_PROGRAM: return "CL_INVALID_PROGRAM";
        case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
        case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
        case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
        case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
        case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
        case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
        case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
        case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
        case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
        case CL_INVALID_GLOBAL_OFFSET: return "CL_INVALID_GLOBAL_OFFSET";
        default: return "Unknown OpenCL error";
    }
}

typedef struct {
    cl_platform_id platform;
    cl_device_id device;
    cl_context context;
    cl_command_queue queue;
} OpenCLDevice;

int opencl_get_device_count() {
    cl_uint num_platforms;
    cl_int err = clGetPlatformIDs(0, NULL, &num_platforms);
    if (err != CL_SUCCESS || num_platforms == 0) {
        return 0;
    }

    cl_platform_id* platforms = (cl_platform_id*)malloc(num_platforms * sizeof(cl_platform_id));
    clGetPlatformIDs(num_platforms, platforms, NULL);

    int total_devices = 0;
    for (cl_uint i = 0; i < num_platforms; i++) {
        cl_uint num_devices;
        err = clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_GPU, 0, NULL, &num_devices);
        if (err == CL_SUCCESS) {
            total_devices += num_devices;
        }
    }

    free(platforms);
    return total_devices;
}

int opencl_get_device_by_index(int index, cl_platform_id* out_platform, cl_device_id* out_device) {
    cl_uint num_platforms;
    cl_int err = clGetPlatformIDs(0, NULL, &num_platforms);
    if (err != CL_SUCCESS || num_platforms == 0) {
        return CL_DEVICE_NOT_FOUND;
    }

    cl_platform_id* platforms = (cl_platform_id*)malloc(num_platforms * sizeof(cl_platform_id));
    clGetPlatformIDs(num_platforms, platforms, NULL);

    int current_index = 0;
    for (cl_uint i = 0; i < num_platforms; i++) {
        cl_uint num_devices;
        err = clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_GPU, 0, NULL, &num_devices);
        if (err != CL_SUCCESS) continue;

        if (index < current_index + (int)num_devices) {
            cl_device_id* devices = (cl_device_id*)malloc(num_devices * sizeof(cl_device_id));
            clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_GPU, num_devices, devices, NULL);
            *out_platform = platforms[i];
            *out_device = devices[index - current_index];
            free(devices);
            free(platforms);
            return CL_SUCCESS;
        }
        current_index += num_devices;
    }

    free(platforms);
    return CL_DEVICE_NOT_FOUND;
}

cl_int opencl_create_device(int device_id, OpenCLDevice* dev) {
    memset(dev, 0, sizeof(OpenCLDevice));

    cl_int err = opencl_get_device_by_index(device_id, &dev->platform, &dev->device);
    if (err != CL_SUCCESS) {
        return err;
    }

    dev->context = clCreateContext(NULL, 1, &dev->device, NULL, NULL, &err);
    if (err != CL_SUCCESS) {
        return err;
    }

    dev->queue = clCreateCommandQueue(dev->context, dev->device, 0, &err);
    if (err != CL_SUCCESS) {
        clReleaseContext(dev->context);
        dev->context = NULL;
        return err;
    }
    return CL_SUCCESS;
}

void opencl_release_device(OpenCLDevice* dev) {
    if (dev->queue) clReleaseCommandQueue(dev->queue);
    if (dev->context) clReleaseContext(dev->context);
    dev->queue = NULL;
    dev->context = NULL;
}

const char* opencl_device_name(OpenCLDevice* dev) {
    static char name[256];
    cl_int err = clGetDeviceInfo(dev->device, CL_DEVICE_NAME, sizeof(name), name, NULL);
    if (err != CL_SUCCESS) {
        return "Unknown";
    }
    return name;
}

const char* opencl_device_vendor(OpenCLDevice* dev) {
    static char vendor[256];
    cl_int err = clGetDeviceInfo(dev->device, CL_DEVICE_VENDOR, sizeof(vendor), vendor, NULL);
    if (err != CL_SUCCESS) {
        return "Unknown";
    }
    return vendor;
}

size_t opencl_device_memory(OpenCLDevice* dev) {
    cl_ulong mem_size;
    cl_int err = clGetDeviceInfo(dev->device, CL_DEVICE_GLOBAL_MEM_SIZE, sizeof(mem_size), &mem_size, NULL);
    if (err != CL_SUCCESS) {
        return 0;
    }
    return (size_t)mem_size;
}

cl_kernel opencl_build_kernel(OpenCLDevice* dev, const char* source, const char* name, cl_program* out_program, cl_int* out_err) {
    size_t source_len = strlen(source);
    cl_program program = clCreateProgramWithSource(dev->context, 1, &source, &source_len, out_err);
    if (*out_err != CL_SUCCESS) {
        return NULL;
    }

    *out_err = clBuildProgram(program, 1, &dev->device, "", NULL, NULL);
    if (*out_err != CL_SUCCESS) {
        size_t log_size = 0;
        clGetProgramBuildInfo(program, dev->device, CL_PROGRAM_BUILD_LOG, sizeof(opencl_build_log) - 1, opencl_build_log, &log_size);
        opencl_build_log[sizeof(opencl_build_log) - 1] = 0;
        clReleaseProgram(program);
        return NULL;
    }

    cl_kernel kernel = clCreateKernel(program, name, out_err);
    if (*out_err != CL_SUCCESS) {
        clReleaseProgram(program);
        return NULL;
    }
    *out_program = program;
    return kernel;
}

const char* opencl_last_build_log() {
    return opencl_build_log;
}

cl_mem opencl_create_buffer(OpenCLDevice* dev, cl_mem_flags flags, float* host_data, size_t count, cl_int* out_err) {
    if (host_data) {
        flags |= CL_MEM_COPY_HOST_PTR;
    }
    return clCreateBuffer(dev->context, flags, count * sizeof(float), host_data, out_err);
}

cl_int opencl_write_buffer(OpenCLDevice* dev, cl_mem mem, size_t offset, const float* data, size_t count) {
    return clEnqueueWriteBuffer(dev->queue, mem, CL_TRUE, offset * sizeof(float), count * sizeof(float), data, 0, NULL, NULL);
}

cl_int opencl_read_buffer(OpenCLDevice* dev, cl_mem mem, size_t offset, float* data, size_t count) {
    return clEnqueueReadBuffer(dev->queue, mem, CL_TRUE, offset * sizeof(float), count * sizeof(float), data, 0, NULL, NULL);
}

cl_int opencl_set_mem_arg(cl_kernel kernel, cl_uint index, cl_mem mem) {
    return clSetKernelArg(kernel, index, sizeof(cl_mem), &mem);
}

cl_int opencl_set_int_arg(cl_kernel kernel, cl_uint index, cl_int value) {
    return clSetKernelArg(kernel, index, sizeof(cl_int), &value);
}

cl_int opencl_set_float_arg(cl_kernel kernel, cl_uint index, cl_float value) {
    return clSetKernelArg(kernel, index, sizeof(cl_float), &value);
}

cl_int opencl_enqueue_1d(OpenCLDevice* dev, cl_kernel kernel, size_t global_size) {
    return clEnqueueNDRangeKernel(dev->queue, kernel, 1, NULL, &global_size, NULL, 0, NULL, NULL);
}

cl_int opencl_finish(OpenCLDevice* dev) {
    return clFinish(dev->queue);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available on this system")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrBufferCreation     = errors.New("opencl: failed to create buffer")
	ErrKernelBuild        = errors.New("opencl: failed to build kernel")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrInvalidBuffer      = errors.New("opencl: invalid buffer")
)

// Device represents an OpenCL GPU device with one in-order command queue.
type Device struct {
	dev    C.OpenCLDevice
	id     int
	name   string
	vendor string
	memory uint64

	mu       sync.Mutex
	kernels  map[string]*Kernel
	queue    *Queue
	released bool
}

// Buffer represents an OpenCL memory buffer of float32 elements.
type Buffer struct {
	mem   C.cl_mem
	count int
}

// Kernel is a compiled OpenCL kernel together with its program.
type Kernel struct {
	name    string
	kernel  C.cl_kernel
	program C.cl_program
}

// Queue issues blocking commands on the device queue.
type Queue struct {
	d *Device
}

func clError(op string, code C.cl_int, base error) error {
	return &compute.Error{
		Op:   op,
		Code: int32(code),
		Msg:  C.GoString(C.opencl_error_string(code)),
		Err:  base,
	}
}

// IsAvailable checks if OpenCL is available on this system.
func IsAvailable() bool {
	return C.opencl_get_device_count() > 0
}

// DeviceCount returns the number of OpenCL GPU devices.
func DeviceCount() int {
	count := C.opencl_get_device_count()
	if count < 0 {
		return 0
	}
	return int(count)
}

// NewDevice creates a context and command queue on the Nth GPU.
func NewDevice(deviceID int) (*Device, error) {
	if !IsAvailable() {
		return nil, ErrOpenCLNotAvailable
	}

	d := &Device{id: deviceID, kernels: make(map[string]*Kernel)}
	if ret := C.opencl_create_device(C.int(deviceID), &d.dev); ret != C.CL_SUCCESS {
		return nil, fmt.Errorf("%w: %w", ErrDeviceCreation, clError("create device", ret, nil))
	}
	d.name = C.GoString(C.opencl_device_name(&d.dev))
	d.vendor = C.GoString(C.opencl_device_vendor(&d.dev))
	d.memory = uint64(C.opencl_device_memory(&d.dev))
	d.queue = &Queue{d: d}
	return d, nil
}

// Release frees kernels, the queue and the context.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return
	}
	for key, k := range d.kernels {
		C.clReleaseKernel(k.kernel)
		C.clReleaseProgram(k.program)
		delete(d.kernels, key)
	}
	C.opencl_release_device(&d.dev)
	d.released = true
}

// ID returns the device ID.
func (d *Device) ID() int { return d.id }

// Name returns the GPU device name.
func (d *Device) Name() string { return d.name }

// Vendor returns the GPU vendor name.
func (d *Device) Vendor() string { return d.vendor }

// MemoryBytes returns the GPU memory size in bytes.
func (d *Device) MemoryBytes() uint64 { return d.memory }

// MemoryMB returns the GPU memory size in megabytes.
func (d *Device) MemoryMB() int { return int(d.memory / (1024 * 1024)) }

// Queue returns the device command queue.
func (d *Device) Queue() compute.Queue { return d.queue }

// Kernel returns a kernel previously built with LoadKernel.
func (d *Device) Kernel(namespace, name string) (compute.Kernel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.kernels[namespace+"/"+name]
	if !ok {
		return nil, false
	}
	return k, true
}

// LoadKernel builds entry point name from the embedded resource.
func (d *Device) LoadKernel(resource, name, namespace string) (compute.Kernel, error) {
	src, err := compute.KernelSource(resource)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	csrc := C.CString(src)
	defer C.free(unsafe.Pointer(csrc))
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var program C.cl_program
	var ret C.cl_int
	kernel := C.opencl_build_kernel(&d.dev, csrc, cname, &program, &ret)
	if ret != C.CL_SUCCESS {
		cerr := clError("build "+name, ret, ErrKernelBuild)
		if ret == C.CL_BUILD_PROGRAM_FAILURE {
			return nil, fmt.Errorf("%w\n%s", cerr, C.GoString(C.opencl_last_build_log()))
		}
		return nil, cerr
	}

	k := &Kernel{name: name, kernel: kernel, program: program}
	d.kernels[namespace+"/"+name] = k
	return k, nil
}

func memFlags(usage compute.Usage) C.cl_mem_flags {
	switch usage {
	case compute.ReadOnly:
		return C.CL_MEM_READ_ONLY
	case compute.WriteOnly:
		return C.CL_MEM_WRITE_ONLY
	default:
		return C.CL_MEM_READ_WRITE
	}
}

// NewEmptyBuffer creates an uninitialized GPU buffer.
func (d *Device) NewEmptyBuffer(usage compute.Usage, count int) (compute.Buffer, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrBufferCreation)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var ret C.cl_int
	mem := C.opencl_create_buffer(&d.dev, memFlags(usage), nil, C.size_t(count), &ret)
	if ret != C.CL_SUCCESS {
		return nil, clError("create buffer", ret, ErrBufferCreation)
	}
	return &Buffer{mem: mem, count: count}, nil
}

// NewBuffer creates a GPU buffer initialised with data.
func (d *Device) NewBuffer(usage compute.Usage, data []float32) (compute.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrBufferCreation)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var ret C.cl_int
	mem := C.opencl_create_buffer(&d.dev, memFlags(usage),
		(*C.float)(unsafe.Pointer(&data[0])), C.size_t(len(data)), &ret)
	if ret != C.CL_SUCCESS {
		return nil, clError("create buffer", ret, ErrBufferCreation)
	}
	return &Buffer{mem: mem, count: len(data)}, nil
}

// Len returns the number of float32 elements.
func (b *Buffer) Len() int { return b.count }

// Release frees the buffer resources.
func (b *Buffer) Release() {
	if b.mem != nil {
		C.clReleaseMemObject(b.mem)
		b.mem = nil
		b.count = 0
	}
}

// Name returns the kernel entry point.
func (k *Kernel) Name() string { return k.name }

// SetArg binds a *Buffer, int32 or float32 argument.
func (k *Kernel) SetArg(index int, value any) error {
	var ret C.cl_int
	switch v := value.(type) {
	case *Buffer:
		if v == nil || v.mem == nil {
			return ErrInvalidBuffer
		}
		ret = C.opencl_set_mem_arg(k.kernel, C.cl_uint(index), v.mem)
	case int32:
		ret = C.opencl_set_int_arg(k.kernel, C.cl_uint(index), C.cl_int(v))
	case float32:
		ret = C.opencl_set_float_arg(k.kernel, C.cl_uint(index), C.cl_float(v))
	default:
		return fmt.Errorf("%w: unsupported type %T", compute.ErrInvalidArgument, value)
	}
	if ret != C.CL_SUCCESS {
		return clError(fmt.Sprintf("set arg %d", index), ret, compute.ErrInvalidArgument)
	}
	return nil
}

func asBuffer(b compute.Buffer) (*Buffer, error) {
	cb, ok := b.(*Buffer)
	if !ok || cb == nil || cb.mem == nil {
		return nil, ErrInvalidBuffer
	}
	return cb, nil
}

// WriteFloat32 performs a blocking host to device copy.
func (q *Queue) WriteFloat32(buf compute.Buffer, offset int, data []float32) error {
	cb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if offset < 0 || offset+len(data) > cb.count {
		return compute.ErrOutOfRange
	}

	q.d.mu.Lock()
	defer q.d.mu.Unlock()
	ret := C.opencl_write_buffer(&q.d.dev, cb.mem, C.size_t(offset),
		(*C.float)(unsafe.Pointer(&data[0])), C.size_t(len(data)))
	if ret != C.CL_SUCCESS {
		return clError("write buffer", ret, nil)
	}
	return nil
}

// ReadFloat32 performs a blocking device to host copy.
func (q *Queue) ReadFloat32(buf compute.Buffer, offset int, dst []float32) error {
	cb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	if offset < 0 || offset+len(dst) > cb.count {
		return compute.ErrOutOfRange
	}

	q.d.mu.Lock()
	defer q.d.mu.Unlock()
	ret := C.opencl_read_buffer(&q.d.dev, cb.mem, C.size_t(offset),
		(*C.float)(unsafe.Pointer(&dst[0])), C.size_t(len(dst)))
	if ret != C.CL_SUCCESS {
		return clError("read buffer", ret, nil)
	}
	return nil
}

// EnqueueKernel enqueues k over a one-dimensional global range.
func (q *Queue) EnqueueKernel(k compute.Kernel, globalSize int) error {
	ck, ok := k.(*Kernel)
	if !ok || ck == nil {
		return fmt.Errorf("%w: not an OpenCL kernel", compute.ErrInvalidArgument)
	}

	q.d.mu.Lock()
	defer q.d.mu.Unlock()
	if ret := C.opencl_enqueue_1d(&q.d.dev, ck.kernel, C.size_t(globalSize)); ret != C.CL_SUCCESS {
		return clError("enqueue "+ck.name, ret, ErrKernelExecution)
	}
	return nil
}

// Finish blocks until every queued command has completed.
func (q *Queue) Finish() error {
	q.d.mu.Lock()
	defer q.d.mu.Unlock()
	if ret := C.opencl_finish(&q.d.dev); ret != C.CL_SUCCESS {
		return clError("finish", ret, ErrKernelExecution)
	}
	return nil
}
