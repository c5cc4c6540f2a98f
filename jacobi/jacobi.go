// Package jacobi solves dense diagonally dominant linear systems A·x = b by
// Jacobi iteration on the warp runtime. Each execution group owns a
// contiguous slice of matrix rows; a full sweep stages the current iterate
// into group scratch, reduces per-row dot products warp by warp, applies
// the diagonal update and accumulates the iteration residual Σ|dx| into a
// single device accumulator that drives the host-side convergence check.
package jacobi

import (
	"fmt"
	"math"

	"github.com/warpforge/warp"
)

const (
	// DefaultRowsPerGroup is the number of matrix rows owned by one
	// execution group. Must be a power of two, at most 32.
	DefaultRowsPerGroup = 8

	// DefaultGroupSize is the lane count per group.
	DefaultGroupSize = 256

	// DefaultThreshold is the convergence threshold on Σ|dx|.
	DefaultThreshold = 1e-7
)

// System is a dense linear system. A is row-major N×N single precision,
// matching the mixed-precision layout of the workloads this solver was
// built for; b and the iterates are double precision.
type System struct {
	N int
	A []float32
	B []float64
}

// Options configures a solve.
type Options struct {
	// Threshold stops iteration once the sweep residual Σ|dx| falls to or
	// below it. Zero means DefaultThreshold.
	Threshold float64

	// MaxIter bounds the number of sweeps. Zero is a defined edge case:
	// Solve returns the initial iterate unchanged together with the
	// residual a first sweep would have produced.
	MaxIter int

	// RowsPerGroup is the row slice owned by each group; power of two in
	// [1, 32]. Zero means DefaultRowsPerGroup.
	RowsPerGroup int

	// GroupSize is the lane count per group; must be a multiple of
	// warp.WarpWidth. Zero means DefaultGroupSize.
	GroupSize int

	// Reference, when non-nil, is the expected solution; Solve reports the
	// L1 deviation of the final iterate from it in Result.ReferenceError.
	Reference []float64

	// Strategy selects how sweeps are issued. Nil means DirectLaunch.
	Strategy LaunchStrategy
}

// Result carries the outcome of a solve. Non-convergence within MaxIter is
// not an error; inspect Residual and Iterations.
type Result struct {
	X              []float64
	Residual       float64
	Iterations     int
	ReferenceError float64 // NaN when Options.Reference is nil
}

// state holds the per-solve launch geometry and device buffers shared by
// the launch strategies.
type state struct {
	n     int
	rpg   int
	lanes int

	a    []float32 // device view of A
	b    []float64 // device view of b
	dSum warp.DevicePtr

	dX, dXNew warp.DevicePtr

	grid, block warp.Dim3
	sharedLen   int
}

// buffers returns the (src, dst) iterate views for a sweep of the given
// parity. Even sweeps read x and write x_new; odd sweeps the reverse.
func (st *state) buffers(parity int) (src, dst []float64) {
	if parity&1 == 0 {
		return st.dX.Float64()[:st.n], st.dXNew.Float64()[:st.n]
	}
	return st.dXNew.Float64()[:st.n], st.dX.Float64()[:st.n]
}

// latest returns the buffer written by sweep number k (0-based).
func (st *state) latest(k int) warp.DevicePtr {
	if k&1 == 0 {
		return st.dXNew
	}
	return st.dX
}

// sweepKernel builds the per-iteration group kernel bound to the given
// iterate buffers. Group scratch layout: x stage [n], b slots [rpg+1],
// lane partials [lanes].
func (st *state) sweepKernel(src, dst []float64) warp.GroupFunc {
	n, rpg := st.n, st.rpg
	a, b := st.a, st.b
	sum := st.dSum

	return func(g *warp.Group) {
		lanes := g.Lanes()
		xs := g.Shared[:n]
		bs := g.Shared[n : n+rpg+1]
		partials := g.Shared[n+rpg+1 : n+rpg+1+lanes]

		// Stage the full current iterate; every owned row's dot product
		// reads all of x.
		g.ForEachLane(func(lane int) {
			for i := lane; i < n; i += lanes {
				xs[i] = src[i]
			}
		})

		// Stage the owned b entries into their slots.
		base := g.BlockIdx.X * rpg
		g.ForEachLane(func(lane int) {
			if lane < rpg {
				if i := base + lane; i < n {
					bs[i%(rpg+1)] = b[i]
				}
			}
		})

		// Per-row dot products across lanes, reduced warp by warp and
		// accumulated into the row's b slot with flipped sign, leaving
		// b − A·x in the slot.
		for k, i := 0, base; k < rpg && i < n; k, i = k+1, i+1 {
			row := a[i*n : (i+1)*n]
			g.ForEachLane(func(lane int) {
				acc := 0.0
				for j := lane; j < n; j += lanes {
					acc += float64(row[j]) * xs[j]
				}
				partials[lane] = acc
			})
			slot := i % (rpg + 1)
			for w := 0; w < lanes; w += warp.WarpWidth {
				bs[slot] -= warp.ReduceHalving(partials[w : w+warp.WarpWidth])
			}
		}

		// Diagonal update of each owned row, then a single atomic add of
		// the group's |dx| total into the global residual.
		var dxPartials [32]float64
		g.ForEachLane(func(lane int) {
			if lane < rpg {
				dxPartials[lane] = 0
				if i := base + lane; i < n {
					dx := bs[i%(rpg+1)] / float64(a[i*n+i])
					dst[i] = xs[i] + dx
					dxPartials[lane] = math.Abs(dx)
				}
			}
		})
		warp.AtomicAddFloat64Ptr(sum, warp.ReduceHalving(dxPartials[:rpg]))
	}
}

// referenceErrorKernel computes Σ|x_i − ref_i| with a two-level reduction:
// lane partials, warp-level halving into per-warp slots, then a final
// halving across warp slots before one atomic add per group.
func referenceErrorKernel(x, ref []float64, n int, sum warp.DevicePtr) warp.GroupFunc {
	return func(g *warp.Group) {
		lanes := g.Lanes()
		numWarps := lanes / warp.WarpWidth
		partials := g.Shared[:lanes]
		warpSums := g.Shared[lanes : lanes+numWarps]

		stride := lanes * g.GridDim.X
		g.ForEachLane(func(lane int) {
			acc := 0.0
			for i := g.BlockIdx.X*lanes + lane; i < n; i += stride {
				acc += math.Abs(x[i] - ref[i])
			}
			partials[lane] = acc
		})

		for w := 0; w < numWarps; w++ {
			warpSums[w] = warp.ReduceHalving(partials[w*warp.WarpWidth : (w+1)*warp.WarpWidth])
		}

		var first [warp.WarpWidth]float64
		copy(first[:], warpSums)
		warp.AtomicAddFloat64Ptr(sum, warp.ReduceHalving(first[:]))
	}
}

// Validate checks the solver's documented contracts: shapes, group
// geometry, and non-zero diagonal entries. Diagonal dominance itself is a
// caller contract (see CheckDiagonalDominance).
func Validate(sys System, opts Options) error {
	n := sys.N
	if n <= 0 {
		return warp.NewPreconditionError("jacobi.Solve", "system size must be positive")
	}
	if len(sys.A) != n*n {
		return warp.NewPreconditionError("jacobi.Solve",
			fmt.Sprintf("A has %d entries, want %d×%d", len(sys.A), n, n))
	}
	if len(sys.B) != n {
		return warp.NewPreconditionError("jacobi.Solve",
			fmt.Sprintf("b has %d entries, want %d", len(sys.B), n))
	}

	rpg := opts.RowsPerGroup
	if rpg == 0 {
		rpg = DefaultRowsPerGroup
	}
	if rpg < 1 || rpg > 32 || rpg&(rpg-1) != 0 {
		return warp.NewPreconditionError("jacobi.Solve",
			fmt.Sprintf("rows per group must be a power of two in [1,32], got %d", rpg))
	}

	lanes := opts.GroupSize
	if lanes == 0 {
		lanes = DefaultGroupSize
	}
	if lanes < warp.WarpWidth || lanes%warp.WarpWidth != 0 || lanes > warp.MaxThreadsPerBlock {
		return warp.NewPreconditionError("jacobi.Solve",
			fmt.Sprintf("group size must be a multiple of %d up to %d, got %d",
				warp.WarpWidth, warp.MaxThreadsPerBlock, lanes))
	}
	if rpg > lanes {
		return warp.NewPreconditionError("jacobi.Solve", "rows per group exceeds group size")
	}

	for i := 0; i < n; i++ {
		if sys.A[i*n+i] == 0 {
			return warp.NewPreconditionError("jacobi.Solve",
				fmt.Sprintf("zero diagonal entry at row %d", i))
		}
	}

	if opts.Reference != nil && len(opts.Reference) != n {
		return warp.NewPreconditionError("jacobi.Solve",
			fmt.Sprintf("reference has %d entries, want %d", len(opts.Reference), n))
	}
	if opts.MaxIter < 0 {
		return warp.NewPreconditionError("jacobi.Solve", "max iterations must not be negative")
	}

	return nil
}

// CheckDiagonalDominance reports whether every row's diagonal magnitude
// strictly exceeds the sum of its off-diagonal magnitudes. Jacobi
// iteration is only guaranteed to converge for dominant systems; Solve does
// not enforce this, it is an advisory check for callers.
func CheckDiagonalDominance(sys System) bool {
	n := sys.N
	for i := 0; i < n; i++ {
		offDiag := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				offDiag += math.Abs(float64(sys.A[i*n+j]))
			}
		}
		if math.Abs(float64(sys.A[i*n+i])) <= offDiag {
			return false
		}
	}
	return true
}

// Solve iterates x_{k+1} = x_k + D⁻¹(b − A·x_k) until the sweep residual
// Σ|dx| falls to or below the threshold or MaxIter sweeps have run. x0 is
// the initial iterate; nil means the zero vector. Exhausting MaxIter is not
// an error.
func Solve(sys System, x0 []float64, opts Options) (Result, error) {
	if err := Validate(sys, opts); err != nil {
		return Result{}, err
	}
	n := sys.N
	if x0 != nil && len(x0) != n {
		return Result{}, warp.NewPreconditionError("jacobi.Solve",
			fmt.Sprintf("x0 has %d entries, want %d", len(x0), n))
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	rpg := opts.RowsPerGroup
	if rpg == 0 {
		rpg = DefaultRowsPerGroup
	}
	lanes := opts.GroupSize
	if lanes == 0 {
		lanes = DefaultGroupSize
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = &DirectLaunch{}
	}

	// Device buffers.
	dA, err := warp.Malloc(n * n * 4)
	if err != nil {
		return Result{}, err
	}
	defer warp.Free(dA)
	dB, err := warp.Malloc(n * 8)
	if err != nil {
		return Result{}, err
	}
	defer warp.Free(dB)
	dX, err := warp.Malloc(n * 8)
	if err != nil {
		return Result{}, err
	}
	defer warp.Free(dX)
	dXNew, err := warp.Malloc(n * 8)
	if err != nil {
		return Result{}, err
	}
	defer warp.Free(dXNew)
	dSum, err := warp.Malloc(8)
	if err != nil {
		return Result{}, err
	}
	defer warp.Free(dSum)

	if err := warp.Memcpy(dA, sys.A, n*n*4, warp.MemcpyHostToDevice); err != nil {
		return Result{}, err
	}
	if err := warp.Memcpy(dB, sys.B, n*8, warp.MemcpyHostToDevice); err != nil {
		return Result{}, err
	}
	if x0 != nil {
		if err := warp.Memcpy(dX, x0, n*8, warp.MemcpyHostToDevice); err != nil {
			return Result{}, err
		}
	} else {
		if err := warp.Memset(dX, 0, n*8); err != nil {
			return Result{}, err
		}
	}

	st := &state{
		n:     n,
		rpg:   rpg,
		lanes: lanes,
		a:     dA.Float32()[:n*n],
		b:     dB.Float64()[:n],
		dSum:  dSum,
		dX:    dX,
		dXNew: dXNew,
		grid:  warp.Dim3{X: n/rpg + 2},
		block: warp.Dim3{X: lanes},
		// x stage + b slots + lane partials
		sharedLen: n + rpg + 1 + lanes,
	}

	res := Result{ReferenceError: math.NaN()}

	runSweep := func(parity int) (float64, error) {
		if err := warp.MemsetFloat64(dSum, 0, 1); err != nil {
			return 0, err
		}
		if err := strategy.sweep(st, parity); err != nil {
			return 0, warp.NewExecutionError("jacobi.Solve", "sweep dispatch failed", err)
		}
		var sum [1]float64
		if err := warp.Memcpy(sum[:], dSum, 8, warp.MemcpyDeviceToHost); err != nil {
			return 0, err
		}
		return sum[0], nil
	}

	if opts.MaxIter == 0 {
		// Defined edge case: report the residual a first sweep would
		// produce from x0, but leave the iterate untouched.
		residual, err := runSweep(0)
		if err != nil {
			return Result{}, err
		}
		res.Residual = residual
		res.X = make([]float64, n)
		copy(res.X, dX.Float64()[:n])
		return res, nil
	}

	final := dX
	for k := 0; k < opts.MaxIter; k++ {
		residual, err := runSweep(k)
		if err != nil {
			return Result{}, err
		}
		res.Residual = residual
		res.Iterations = k + 1
		final = st.latest(k)
		if residual <= threshold {
			break
		}
	}

	if opts.Reference != nil {
		refErr, err := referenceError(st, final, opts.Reference)
		if err != nil {
			return Result{}, err
		}
		res.ReferenceError = refErr
	}

	res.X = make([]float64, n)
	copy(res.X, final.Float64()[:n])
	return res, nil
}

// referenceError launches the two-level reduction kernel against the final
// iterate and reads back the accumulated L1 deviation.
func referenceError(st *state, x warp.DevicePtr, ref []float64) (float64, error) {
	if err := warp.MemsetFloat64(st.dSum, 0, 1); err != nil {
		return 0, err
	}

	dRef, err := warp.Malloc(st.n * 8)
	if err != nil {
		return 0, err
	}
	defer warp.Free(dRef)
	if err := warp.Memcpy(dRef, ref, st.n*8, warp.MemcpyHostToDevice); err != nil {
		return 0, err
	}

	grid := warp.Dim3{X: st.n/st.lanes + 1}
	block := warp.Dim3{X: st.lanes}
	sharedLen := st.lanes + st.lanes/warp.WarpWidth

	fn := referenceErrorKernel(x.Float64()[:st.n], dRef.Float64()[:st.n], st.n, st.dSum)
	if err := warp.LaunchGroups(fn, grid, block, sharedLen); err != nil {
		return 0, warp.NewExecutionError("jacobi.Solve", "reference error dispatch failed", err)
	}
	if err := warp.Synchronize(); err != nil {
		return 0, err
	}

	var sum [1]float64
	if err := warp.Memcpy(sum[:], st.dSum, 8, warp.MemcpyDeviceToHost); err != nil {
		return 0, err
	}
	return sum[0], nil
}
