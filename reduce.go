package warp

import "math"

// Host-side reductions over float64 device buffers. These run on the
// submitting goroutine; callers must Synchronize first if the buffer was
// written by an outstanding dispatch.

// Sum64 returns the sum of the first n float64 elements.
func (d DevicePtr) Sum64(n int) float64 {
	x := d.Float64()[:n]
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum
}

// AbsSum64 returns the L1 norm of the first n float64 elements.
func (d DevicePtr) AbsSum64(n int) float64 {
	x := d.Float64()[:n]
	sum := 0.0
	for _, v := range x {
		sum += math.Abs(v)
	}
	return sum
}

// AbsDiffSum64 returns Σ|x_i − ref_i| over the first n elements.
func (d DevicePtr) AbsDiffSum64(ref []float64, n int) float64 {
	x := d.Float64()[:n]
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Abs(x[i] - ref[i])
	}
	return sum
}

// MaxAbsDiff64 returns max|x_i − ref_i| over the first n elements.
func (d DevicePtr) MaxAbsDiff64(ref []float64, n int) float64 {
	x := d.Float64()[:n]
	maxDiff := 0.0
	for i := 0; i < n; i++ {
		if diff := math.Abs(x[i] - ref[i]); diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}
