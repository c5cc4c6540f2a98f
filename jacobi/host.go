package jacobi

import "math"

// SolveHost runs the same iteration single-threaded on the host, with the
// same convergence semantics as Solve. It exists for verification and
// benchmarking against the dispatched path.
func SolveHost(sys System, x0 []float64, opts Options) (Result, error) {
	if err := Validate(sys, opts); err != nil {
		return Result{}, err
	}
	n := sys.N

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	x := make([]float64, n)
	if x0 != nil {
		copy(x, x0)
	}
	xNew := make([]float64, n)

	res := Result{ReferenceError: math.NaN()}

	sweep := func(src, dst []float64) float64 {
		residual := 0.0
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := 0; j < n; j++ {
				acc += float64(sys.A[i*n+j]) * src[j]
			}
			dx := (sys.B[i] - acc) / float64(sys.A[i*n+i])
			dst[i] = src[i] + dx
			residual += math.Abs(dx)
		}
		return residual
	}

	if opts.MaxIter == 0 {
		res.Residual = sweep(x, xNew)
		res.X = x
		return res, nil
	}

	final := x
	for k := 0; k < opts.MaxIter; k++ {
		res.Residual = sweep(x, xNew)
		res.Iterations = k + 1
		x, xNew = xNew, x
		final = x
		if res.Residual <= threshold {
			break
		}
	}

	if opts.Reference != nil {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += math.Abs(final[i] - opts.Reference[i])
		}
		res.ReferenceError = sum
	}

	res.X = final
	return res, nil
}
