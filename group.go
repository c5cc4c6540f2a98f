package warp

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Group is the handle a group-level kernel receives. Lanes within a group
// are executed by a single worker, so a phase that sweeps all lanes is
// fully ordered before the next phase begins; the barrier between a shared
// scratch write phase and a read phase is therefore the return from the
// sweep itself. Shared is private to the group for the duration of the
// kernel and zeroed before the kernel runs.
type Group struct {
	BlockIdx Dim3
	BlockDim Dim3
	GridDim  Dim3
	Shared   []float64
}

// Lanes returns the number of lanes in the group.
func (g *Group) Lanes() int {
	return g.BlockDim.Size()
}

// ForEachLane runs fn once per lane, in lane order. Returning from
// ForEachLane acts as the group barrier: all lane writes made inside the
// sweep are visible to any later phase.
func (g *Group) ForEachLane(fn func(lane int)) {
	n := g.Lanes()
	for lane := 0; lane < n; lane++ {
		fn(lane)
	}
}

// ForEachLane2D runs fn once per lane with its (x, y) coordinates within
// the group, y-major, matching the sequential in-block schedule of the
// per-lane launch path.
func (g *Group) ForEachLane2D(fn func(x, y int)) {
	for y := 0; y < g.BlockDim.Y; y++ {
		for x := 0; x < g.BlockDim.X; x++ {
			fn(x, y)
		}
	}
}

// ReduceHalving combines partials by successive halving of an offset, the
// same pairwise order a warp shuffle reduction performs, and returns the
// value lane 0 would hold. len(partials) must be a power of two; the slice
// is clobbered. The combination order is fixed but, floating point being
// non-associative, results are only guaranteed equal for equal lane counts.
func ReduceHalving(partials []float64) float64 {
	for offset := len(partials) / 2; offset > 0; offset /= 2 {
		for i := 0; i < offset; i++ {
			partials[i] += partials[i+offset]
		}
	}
	if len(partials) == 0 {
		return 0
	}
	return partials[0]
}

// AtomicAddFloat64 atomically adds delta to *addr. Go has no native atomic
// float64 add, so this is a compare-and-swap loop on the bit pattern, the
// standard fallback on hardware without one. The comparison is on bits, not
// value, so it terminates even when the accumulator holds NaN.
func AtomicAddFloat64(addr *float64, delta float64) float64 {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		sum := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(bits, old, math.Float64bits(sum)) {
			return sum
		}
	}
}

// AtomicAddFloat64Ptr atomically adds delta to the first float64 of the
// device buffer.
func AtomicAddFloat64Ptr(d DevicePtr, delta float64) float64 {
	return AtomicAddFloat64(&d.Float64()[0], delta)
}
