package sepconv

// Host-side reference passes, single-threaded, with the same zero-padded
// boundary handling as the dispatched kernels. Used for verification.

// RowsHost convolves each row of src with kernel, writing to dst. kernel
// must have odd length 2·radius+1.
func RowsHost(dst, src []float32, kernel []float32, imageW, imageH, pitch int) {
	radius := len(kernel) / 2
	for y := 0; y < imageH; y++ {
		for x := 0; x < imageW; x++ {
			sum := 0.0
			for j := -radius; j <= radius; j++ {
				if d := x + j; d >= 0 && d < imageW {
					sum += float64(kernel[radius-j]) * float64(src[y*pitch+d])
				}
			}
			dst[y*pitch+x] = float32(sum)
		}
	}
}

// ColumnsHost convolves each column of src with kernel, writing to dst.
func ColumnsHost(dst, src []float32, kernel []float32, imageW, imageH, pitch int) {
	radius := len(kernel) / 2
	for y := 0; y < imageH; y++ {
		for x := 0; x < imageW; x++ {
			sum := 0.0
			for j := -radius; j <= radius; j++ {
				if d := y + j; d >= 0 && d < imageH {
					sum += float64(kernel[radius-j]) * float64(src[d*pitch+x])
				}
			}
			dst[y*pitch+x] = float32(sum)
		}
	}
}
