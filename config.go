// Package warp configuration constants
package warp

// Thread and block dimensions
const (
	// Default block size for 1-D kernels
	DefaultBlockSize = 256

	// Maximum lanes per group
	MaxThreadsPerBlock = 1024

	// WarpWidth is the lane count of a sub-group used by shuffle-style
	// reductions. Fixed at 32 to match the reduction tree the kernels
	// were written for.
	WarpWidth = 32
)

// Memory pool parameters
const (
	// Memory alignment for allocations (cache line)
	MemoryAlignment = 64

	// Minimum allocation size to prevent fragmentation
	MinAllocationSize = 64
)

// Numerical constants
const (
	// Machine epsilon for float32
	Float32Epsilon = 1.192092896e-07

	// Machine epsilon for float64
	Float64Epsilon = 2.220446049250313e-16
)
