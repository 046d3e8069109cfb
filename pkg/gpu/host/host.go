// Package host provides a pure Go compute device.
//
// Buffers live in ordinary Go slices and kernels are Go functions registered
// under their OpenCL entry point names, so the same kernel identifiers work
// on both backends. Kernel ranges are split across worker goroutines.
//
// The host device is the CPU fallback of gpu.Accelerator and the device used
// by tests. FailNext injects device errors with a native status code.
package host

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// Errors
var (
	ErrUnknownKernel = errors.New("host: no host implementation for kernel")
	ErrEmptyBuffer   = errors.New("host: cannot create empty buffer")
)

// Op names a device operation for fault injection.
type Op string

const (
	OpAlloc   Op = "alloc"
	OpWrite   Op = "write"
	OpRead    Op = "read"
	OpEnqueue Op = "enqueue"
	OpFinish  Op = "finish"
)

// Status codes reported by injected faults. Values follow OpenCL.
const (
	StatusMemAllocFailure     int32 = -4
	StatusOutOfResources      int32 = -5
	StatusInvalidCommandQueue int32 = -36
	StatusInvalidMemObject    int32 = -38
	StatusInvalidKernelArgs   int32 = -52
)

// Program validates bound arguments and returns the per work item body.
type Program func(args []any) (func(gid int), error)

var (
	programsMu sync.RWMutex
	programs   = map[string]Program{
		compute.NearestPointEntry: nearestPoint,
	}
)

// Register makes a Go kernel available under an entry point name.
func Register(name string, p Program) {
	programsMu.Lock()
	defer programsMu.Unlock()
	programs[name] = p
}

func lookupProgram(name string) (Program, bool) {
	programsMu.RLock()
	defer programsMu.RUnlock()
	p, ok := programs[name]
	return p, ok
}

// Stats counts device operations.
type Stats struct {
	Allocs          int64
	Writes          int64
	Reads           int64
	KernelLaunches  int64
	Finishes        int64
	ScalarsUploaded int64
	ScalarsRead     int64
}

// Device is a host-memory compute device.
type Device struct {
	workers int

	mu      sync.Mutex
	kernels map[string]*Kernel
	faults  map[Op][]int32
	stats   Stats
	queue   *Queue
}

// Buffer is a host-memory buffer.
type Buffer struct {
	data     []float32
	usage    compute.Usage
	released bool
}

// Kernel is a host kernel with bound arguments.
type Kernel struct {
	name    string
	program Program
	args    []any
}

// Queue executes commands synchronously.
type Queue struct {
	dev *Device
}

// NewDevice creates a host device. workers <= 0 uses GOMAXPROCS.
func NewDevice(workers int) *Device {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &Device{
		workers: workers,
		kernels: make(map[string]*Kernel),
		faults:  make(map[Op][]int32),
	}
	d.queue = &Queue{dev: d}
	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return fmt.Sprintf("host (%d workers)", d.workers)
}

// Workers returns the kernel parallelism.
func (d *Device) Workers() int { return d.workers }

// Queue returns the command queue.
func (d *Device) Queue() compute.Queue { return d.queue }

// Release drops cached kernels.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels = make(map[string]*Kernel)
}

// FailNext makes the next call of op fail with status code.
// Calls queue up: FailNext twice fails the next two calls.
func (d *Device) FailNext(op Op, code int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = append(d.faults[op], code)
}

// Stats returns a snapshot of the operation counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) takeFault(op Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	codes := d.faults[op]
	if len(codes) == 0 {
		return nil
	}
	code := codes[0]
	d.faults[op] = codes[1:]
	return &compute.Error{Op: string(op), Code: code, Msg: "injected fault"}
}

func kernelKey(namespace, name string) string {
	return namespace + "/" + name
}

// Kernel returns a loaded kernel.
func (d *Device) Kernel(namespace, name string) (compute.Kernel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.kernels[kernelKey(namespace, name)]
	if !ok {
		return nil, false
	}
	return k, true
}

// LoadKernel checks that resource declares the entry point and binds the
// registered Go implementation to it.
func (d *Device) LoadKernel(resource, name, namespace string) (compute.Kernel, error) {
	src, err := compute.KernelSource(resource)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(src, "__kernel void "+name) {
		return nil, fmt.Errorf("%w: %s in %s", compute.ErrKernelNotFound, name, resource)
	}
	program, ok := lookupProgram(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKernel, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	k := &Kernel{name: name, program: program}
	d.kernels[kernelKey(namespace, name)] = k
	return k, nil
}

// NewEmptyBuffer allocates a zeroed buffer of count elements.
func (d *Device) NewEmptyBuffer(usage compute.Usage, count int) (compute.Buffer, error) {
	if count <= 0 {
		return nil, ErrEmptyBuffer
	}
	if err := d.takeFault(OpAlloc); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.stats.Allocs++
	d.mu.Unlock()
	return &Buffer{data: make([]float32, count), usage: usage}, nil
}

// NewBuffer allocates a buffer initialised with a copy of data.
func (d *Device) NewBuffer(usage compute.Usage, data []float32) (compute.Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}
	if err := d.takeFault(OpAlloc); err != nil {
		return nil, err
	}
	buf := &Buffer{data: make([]float32, len(data)), usage: usage}
	copy(buf.data, data)

	d.mu.Lock()
	d.stats.Allocs++
	d.stats.ScalarsUploaded += int64(len(data))
	d.mu.Unlock()
	return buf, nil
}

// Len returns the element count.
func (b *Buffer) Len() int {
	if b.released {
		return 0
	}
	return len(b.data)
}

// Usage returns the access mode the buffer was created with.
func (b *Buffer) Usage() compute.Usage { return b.usage }

// Release frees the buffer.
func (b *Buffer) Release() {
	b.released = true
	b.data = nil
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// SetArg binds argument index.
func (k *Kernel) SetArg(index int, value any) error {
	if index < 0 {
		return fmt.Errorf("%w: index %d", compute.ErrInvalidArgument, index)
	}
	switch v := value.(type) {
	case *Buffer:
		if v == nil || v.released {
			return &compute.Error{Op: "set arg", Code: StatusInvalidMemObject, Err: compute.ErrInvalidArgument}
		}
	case int32, float32:
	default:
		return fmt.Errorf("%w: unsupported type %T at %d", compute.ErrInvalidArgument, value, index)
	}
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
	return nil
}

func asBuffer(b compute.Buffer) (*Buffer, error) {
	hb, ok := b.(*Buffer)
	if !ok || hb == nil {
		return nil, fmt.Errorf("%w: not a host buffer", compute.ErrInvalidArgument)
	}
	if hb.released {
		return nil, compute.ErrReleased
	}
	return hb, nil
}

// WriteFloat32 copies data into buf starting at offset.
func (q *Queue) WriteFloat32(buf compute.Buffer, offset int, data []float32) error {
	if err := q.dev.takeFault(OpWrite); err != nil {
		return err
	}
	hb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(hb.data) {
		return &compute.Error{Op: string(OpWrite), Code: StatusInvalidMemObject, Err: compute.ErrOutOfRange}
	}
	copy(hb.data[offset:], data)

	q.dev.mu.Lock()
	q.dev.stats.Writes++
	q.dev.stats.ScalarsUploaded += int64(len(data))
	q.dev.mu.Unlock()
	return nil
}

// ReadFloat32 copies len(dst) elements from buf starting at offset.
func (q *Queue) ReadFloat32(buf compute.Buffer, offset int, dst []float32) error {
	if err := q.dev.takeFault(OpRead); err != nil {
		return err
	}
	hb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > len(hb.data) {
		return &compute.Error{Op: string(OpRead), Code: StatusInvalidMemObject, Err: compute.ErrOutOfRange}
	}
	copy(dst, hb.data[offset:])

	q.dev.mu.Lock()
	q.dev.stats.Reads++
	q.dev.stats.ScalarsRead += int64(len(dst))
	q.dev.mu.Unlock()
	return nil
}

// EnqueueKernel runs k over [0, globalSize) and returns when all work items
// have completed.
func (q *Queue) EnqueueKernel(k compute.Kernel, globalSize int) error {
	if err := q.dev.takeFault(OpEnqueue); err != nil {
		return err
	}
	hk, ok := k.(*Kernel)
	if !ok || hk == nil {
		return fmt.Errorf("%w: not a host kernel", compute.ErrInvalidArgument)
	}
	if globalSize <= 0 {
		return fmt.Errorf("%w: global size %d", compute.ErrInvalidArgument, globalSize)
	}
	body, err := hk.program(hk.args)
	if err != nil {
		return &compute.Error{Op: string(OpEnqueue), Code: StatusInvalidKernelArgs, Msg: err.Error(), Err: err}
	}

	workers := q.dev.workers
	if workers > globalSize {
		workers = globalSize
	}
	chunk := (globalSize + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < globalSize; start += chunk {
		lo, hi := start, min(start+chunk, globalSize)
		g.Go(func() error {
			for gid := lo; gid < hi; gid++ {
				body(gid)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	q.dev.mu.Lock()
	q.dev.stats.KernelLaunches++
	q.dev.mu.Unlock()
	return nil
}

// Finish waits for queued work. Host commands complete eagerly.
func (q *Queue) Finish() error {
	if err := q.dev.takeFault(OpFinish); err != nil {
		return err
	}
	q.dev.mu.Lock()
	q.dev.stats.Finishes++
	q.dev.mu.Unlock()
	return nil
}
