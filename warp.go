// Package warp provides a CUDA-style data-parallel runtime for CPU execution.
// Work is expressed as kernels launched over a grid of fixed-size groups of
// lanes; groups may share a scratch buffer and synchronize internally, and
// the runtime guarantees a dispatch is complete before Launch returns control
// through stream synchronization.
//
// Example usage:
//
//	d_x, _ := warp.Malloc(n * 8) // n float64s
//	defer warp.Free(d_x)
//
//	warp.Memcpy(d_x, h_x, n*8, warp.MemcpyHostToDevice)
//
//	grid := warp.Dim3{X: (n + 255) / 256}
//	block := warp.Dim3{X: 256}
//	warp.LaunchFunc(myKernel, grid, block)
//	warp.Synchronize()
package warp

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Device represents a compute device. In warp this is the host CPU with its
// cores and available memory.
type Device struct {
	ID         int    // Unique device identifier
	Name       string // Human-readable device name
	TotalMem   uint64 // Total available memory in bytes
	NumCores   int    // Number of CPU cores
	MaxThreads int    // Maximum concurrent threads
	Features   CPUFeatures
}

// Context represents an execution context for warp operations.
// It manages device resources, memory allocation, and stream execution.
type Context struct {
	device        *Device
	streams       map[int]*Stream
	streamID      int32
	memory        *MemoryPool
	defaultStream *Stream
}

// Stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order, but
// operations in different streams may execute concurrently.
type Stream struct {
	id    int
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// Dim3 represents 3D dimensions for grid and block configurations.
type Dim3 struct {
	X, Y, Z int
}

// ThreadID identifies a lane's position within the execution hierarchy,
// mirroring CUDA's blockIdx/threadIdx/blockDim/gridDim.
type ThreadID struct {
	BlockIdx  Dim3 // Group index within the grid
	ThreadIdx Dim3 // Lane index within the group
	BlockDim  Dim3 // Dimensions of the group
	GridDim   Dim3 // Dimensions of the grid
}

// KernelFunc is a per-lane kernel. It is called once for every lane in the
// dispatch and must be safe for concurrent use across groups.
type KernelFunc func(tid ThreadID)

// GroupFunc is a group-level kernel. It is called once per group with a
// Group handle exposing lane sweeps, shared scratch and reduction helpers.
// Distinct groups run concurrently; the function must not touch another
// group's scratch.
type GroupFunc func(g *Group)

// Global runtime state
var (
	defaultDevice  *Device
	defaultContext *Context
	initOnce       sync.Once
)

func init() {
	initOnce.Do(func() {
		defaultDevice = &Device{
			ID:         0,
			Name:       "CPU",
			TotalMem:   getSystemMemory(),
			NumCores:   runtime.NumCPU(),
			MaxThreads: runtime.NumCPU() * 2,
			Features:   cpuFeatures,
		}

		defaultContext = &Context{
			device:  defaultDevice,
			streams: make(map[int]*Stream),
			memory:  NewMemoryPool(),
		}

		defaultContext.defaultStream = defaultContext.CreateStream()
	})
}

// Malloc allocates device memory of the specified size in bytes.
// The memory is cache-line aligned.
func Malloc(size int) (DevicePtr, error) {
	return defaultContext.Malloc(size)
}

// Free releases device memory allocated by Malloc.
func Free(ptr DevicePtr) error {
	return defaultContext.Free(ptr)
}

// Memcpy copies memory between host and device. Supports DevicePtr and Go
// slice operands ([]byte, []float32, []float64, []int32).
func Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	return defaultContext.Memcpy(dst, src, size, kind)
}

// Memset fills the first size bytes of device memory with value.
func Memset(ptr DevicePtr, value byte, size int) error {
	return defaultContext.Memset(ptr, value, size)
}

// MemsetFloat64 fills the first count float64 elements with value.
func MemsetFloat64(ptr DevicePtr, value float64, count int) error {
	return defaultContext.MemsetFloat64(ptr, value, count)
}

// LaunchFunc executes a per-lane kernel on the default stream.
func LaunchFunc(fn KernelFunc, grid, block Dim3) error {
	return defaultContext.LaunchFunc(fn, grid, block)
}

// LaunchGroups executes a group-level kernel on the default stream.
// Each group receives a private float64 scratch slice of sharedLen elements,
// zeroed before the group runs.
func LaunchGroups(fn GroupFunc, grid, block Dim3, sharedLen int) error {
	return defaultContext.LaunchGroups(fn, grid, block, sharedLen)
}

// Synchronize waits for all operations on all streams to complete.
func Synchronize() error {
	return defaultContext.Synchronize()
}

// GetDevice returns the current device information.
func GetDevice() *Device {
	return defaultDevice
}

// SetDevice sets the active device. Only device 0 exists.
func SetDevice(id int) error {
	if id != 0 {
		return ErrInvalidDevice
	}
	return nil
}

// GetDeviceCount returns the number of available devices. Always 1.
func GetDeviceCount() int {
	return 1
}

// GetDeviceProperties returns device properties.
func GetDeviceProperties(id int) (*Device, error) {
	if id != 0 {
		return nil, NewInvalidArgError("GetDeviceProperties", fmt.Sprintf("invalid device ID: %d", id))
	}
	return defaultDevice, nil
}

// Context methods

// CreateStream creates a new execution stream.
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	stream := &Stream{
		id:    id,
		tasks: make(chan func(), 1000),
		done:  make(chan struct{}),
	}

	go stream.worker()

	ctx.streams[id] = stream
	return stream
}

// LaunchFunc executes a per-lane kernel on the default stream.
func (ctx *Context) LaunchFunc(fn KernelFunc, grid, block Dim3) error {
	return ctx.LaunchFuncStream(fn, grid, block, ctx.defaultStream)
}

// LaunchFuncStream executes a per-lane kernel on a specific stream.
func (ctx *Context) LaunchFuncStream(fn KernelFunc, grid, block Dim3, stream *Stream) error {
	return ctx.launchLanes(fn, grid, block, stream)
}

// LaunchGroups executes a group-level kernel on the default stream.
func (ctx *Context) LaunchGroups(fn GroupFunc, grid, block Dim3, sharedLen int) error {
	return ctx.LaunchGroupsStream(fn, grid, block, sharedLen, ctx.defaultStream)
}

// LaunchGroupsStream executes a group-level kernel on a specific stream.
func (ctx *Context) LaunchGroupsStream(fn GroupFunc, grid, block Dim3, sharedLen int, stream *Stream) error {
	return ctx.launchGroups(fn, grid, block, sharedLen, stream)
}

// Synchronize waits for all streams to complete.
func (ctx *Context) Synchronize() error {
	for _, stream := range ctx.streams {
		stream.Synchronize()
	}
	return nil
}

// Stream methods

// worker processes tasks for a stream in submission order.
func (s *Stream) worker() {
	for task := range s.tasks {
		task()
		s.wg.Done()
	}
	close(s.done)
}

// Synchronize waits for all tasks in the stream to complete.
func (s *Stream) Synchronize() {
	s.wg.Wait()
}

// Submit adds a task to the stream.
func (s *Stream) Submit(task func()) {
	s.wg.Add(1)
	s.tasks <- task
}

// Helper functions

// Global returns the global linear lane index along X.
func (tid ThreadID) Global() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalX returns the global X index.
func (tid ThreadID) GlobalX() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalY returns the global Y index.
func (tid ThreadID) GlobalY() int {
	return tid.BlockIdx.Y*tid.BlockDim.Y + tid.ThreadIdx.Y
}

// Size returns the total number of elements.
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

// norm returns d with zero components promoted to one, so that callers may
// leave trailing dimensions unset.
func (d Dim3) norm() Dim3 {
	if d.X == 0 {
		d.X = 1
	}
	if d.Y == 0 {
		d.Y = 1
	}
	if d.Z == 0 {
		d.Z = 1
	}
	return d
}
