// Package sepconv applies separable 2-D convolution on the warp runtime.
// A 1-D coefficient kernel is applied along image rows, then columns, by
// halo-tiled group kernels: each group stages its output tiles plus a halo
// border into group scratch, with out-of-range halo reads substituted by
// zero, and computes the weighted sums from scratch only.
package sepconv

import (
	"fmt"

	"github.com/warpforge/warp"
)

// TileConfig describes the tiling of both passes. A group covers
// ResultSteps output tiles along the pass direction plus HaloSteps tiles of
// halo on each side.
type TileConfig struct {
	RowsBlockX      int
	RowsBlockY      int
	RowsResultSteps int
	RowsHaloSteps   int

	ColsBlockX      int
	ColsBlockY      int
	ColsResultSteps int
	ColsHaloSteps   int
}

// DefaultTileConfig returns the tiling the kernels were tuned with.
func DefaultTileConfig() TileConfig {
	return TileConfig{
		RowsBlockX:      16,
		RowsBlockY:      4,
		RowsResultSteps: 8,
		RowsHaloSteps:   1,

		ColsBlockX:      16,
		ColsBlockY:      8,
		ColsResultSteps: 8,
		ColsHaloSteps:   1,
	}
}

func (t TileConfig) validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"RowsBlockX", t.RowsBlockX}, {"RowsBlockY", t.RowsBlockY},
		{"RowsResultSteps", t.RowsResultSteps}, {"RowsHaloSteps", t.RowsHaloSteps},
		{"ColsBlockX", t.ColsBlockX}, {"ColsBlockY", t.ColsBlockY},
		{"ColsResultSteps", t.ColsResultSteps}, {"ColsHaloSteps", t.ColsHaloSteps},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return warp.NewPreconditionError("sepconv.NewFilter",
				fmt.Sprintf("%s must be positive, got %d", d.name, d.v))
		}
	}
	return nil
}

// KernelLength returns the coefficient count for a given radius.
func KernelLength(radius int) int {
	return 2*radius + 1
}

// Filter owns the convolution coefficient state. The coefficients must be
// set once via SetKernel before any convolve call; they are treated as
// immutable for the lifetime of subsequent passes.
type Filter struct {
	radius     int
	tile       TileConfig
	weights    []float32
	configured bool
}

// NewFilter creates a filter for the given kernel radius and tiling.
func NewFilter(radius int, tile TileConfig) (*Filter, error) {
	if radius < 1 {
		return nil, warp.NewPreconditionError("sepconv.NewFilter",
			fmt.Sprintf("kernel radius must be positive, got %d", radius))
	}
	if err := tile.validate(); err != nil {
		return nil, err
	}
	if tile.RowsBlockX*tile.RowsHaloSteps < radius {
		return nil, warp.NewPreconditionError("sepconv.NewFilter",
			fmt.Sprintf("row halo coverage %d×%d < radius %d",
				tile.RowsBlockX, tile.RowsHaloSteps, radius))
	}
	if tile.ColsBlockY*tile.ColsHaloSteps < radius {
		return nil, warp.NewPreconditionError("sepconv.NewFilter",
			fmt.Sprintf("column halo coverage %d×%d < radius %d",
				tile.ColsBlockY, tile.ColsHaloSteps, radius))
	}
	return &Filter{radius: radius, tile: tile}, nil
}

// Radius returns the kernel radius.
func (f *Filter) Radius() int {
	return f.radius
}

// SetKernel uploads the coefficient vector. len(weights) must equal
// KernelLength(radius). The coefficients are copied; later mutation of the
// argument does not affect the filter.
func (f *Filter) SetKernel(weights []float32) error {
	if len(weights) != KernelLength(f.radius) {
		return warp.NewPreconditionError("sepconv.SetKernel",
			fmt.Sprintf("kernel has %d coefficients, want %d", len(weights), KernelLength(f.radius)))
	}
	f.weights = append([]float32(nil), weights...)
	f.configured = true
	return nil
}

// checkImage validates the contracts shared by both passes.
func (f *Filter) checkImage(op string, dst, src warp.DevicePtr, imageW, imageH, pitch int) error {
	if !f.configured {
		return warp.NewNotConfiguredError(op, "SetKernel has not been called")
	}
	if imageW <= 0 || imageH <= 0 {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("image dimensions must be positive, got %d×%d", imageW, imageH))
	}
	if pitch < imageW {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("pitch %d smaller than image width %d", pitch, imageW))
	}
	need := imageH * pitch * 4
	if src.Size() < need || dst.Size() < need {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("buffer smaller than %d×%d image with pitch %d", imageW, imageH, pitch))
	}
	if dst == src {
		return warp.NewPreconditionError(op, "destination must be distinct from source")
	}
	return nil
}

// ConvolveRows convolves each image row with the configured kernel,
// writing to dst. Preconditions: imageW divisible by
// RowsResultSteps·RowsBlockX, imageH divisible by RowsBlockY.
func (f *Filter) ConvolveRows(dst, src warp.DevicePtr, imageW, imageH, pitch int) error {
	const op = "sepconv.ConvolveRows"
	if err := f.checkImage(op, dst, src, imageW, imageH, pitch); err != nil {
		return err
	}
	t := f.tile
	if imageW%(t.RowsResultSteps*t.RowsBlockX) != 0 {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("image width %d not a multiple of %d", imageW, t.RowsResultSteps*t.RowsBlockX))
	}
	if imageH%t.RowsBlockY != 0 {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("image height %d not a multiple of %d", imageH, t.RowsBlockY))
	}

	grid := warp.Dim3{
		X: imageW / (t.RowsResultSteps * t.RowsBlockX),
		Y: imageH / t.RowsBlockY,
	}
	block := warp.Dim3{X: t.RowsBlockX, Y: t.RowsBlockY}
	tileW := (t.RowsResultSteps + 2*t.RowsHaloSteps) * t.RowsBlockX
	sharedLen := t.RowsBlockY * tileW

	fn := f.rowsKernel(dst.Float32(), src.Float32(), imageW, pitch, tileW)
	if err := warp.LaunchGroups(fn, grid, block, sharedLen); err != nil {
		return warp.NewExecutionError(op, "dispatch failed", err)
	}
	if err := warp.Synchronize(); err != nil {
		return warp.NewExecutionError(op, "synchronize failed", err)
	}
	return nil
}

// rowsKernel builds the row-pass group kernel. Scratch is a
// [RowsBlockY][tileW] float64 tile addressed row-major.
func (f *Filter) rowsKernel(dst, src []float32, imageW, pitch, tileW int) warp.GroupFunc {
	t := f.tile
	radius := f.radius
	weights := f.weights
	halo := t.RowsHaloSteps
	steps := t.RowsResultSteps

	return func(g *warp.Group) {
		// Offset to the left halo edge.
		tileBaseX := (g.BlockIdx.X*steps - halo) * t.RowsBlockX
		tileBaseY := g.BlockIdx.Y * t.RowsBlockY

		// Load main tiles and both halos; out-of-range halo reads become 0.
		g.ForEachLane2D(func(x, y int) {
			baseX := tileBaseX + x
			baseY := tileBaseY + y
			row := g.Shared[y*tileW:]

			for i := halo; i < halo+steps; i++ {
				row[x+i*t.RowsBlockX] = float64(src[baseY*pitch+baseX+i*t.RowsBlockX])
			}
			for i := 0; i < halo; i++ {
				v := 0.0
				if baseX >= -i*t.RowsBlockX {
					v = float64(src[baseY*pitch+baseX+i*t.RowsBlockX])
				}
				row[x+i*t.RowsBlockX] = v
			}
			for i := halo + steps; i < halo+steps+halo; i++ {
				v := 0.0
				if imageW-baseX > i*t.RowsBlockX {
					v = float64(src[baseY*pitch+baseX+i*t.RowsBlockX])
				}
				row[x+i*t.RowsBlockX] = v
			}
		})

		// Barrier: the sweep above completed all scratch writes.

		g.ForEachLane2D(func(x, y int) {
			baseX := tileBaseX + x
			baseY := tileBaseY + y
			row := g.Shared[y*tileW:]

			for i := halo; i < halo+steps; i++ {
				sum := 0.0
				for j := -radius; j <= radius; j++ {
					sum += float64(weights[radius-j]) * row[x+i*t.RowsBlockX+j]
				}
				dst[baseY*pitch+baseX+i*t.RowsBlockX] = float32(sum)
			}
		})
	}
}

// ConvolveColumns convolves each image column with the configured kernel,
// writing to dst. Preconditions: imageW divisible by ColsBlockX, imageH
// divisible by ColsResultSteps·ColsBlockY.
func (f *Filter) ConvolveColumns(dst, src warp.DevicePtr, imageW, imageH, pitch int) error {
	const op = "sepconv.ConvolveColumns"
	if err := f.checkImage(op, dst, src, imageW, imageH, pitch); err != nil {
		return err
	}
	t := f.tile
	if imageW%t.ColsBlockX != 0 {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("image width %d not a multiple of %d", imageW, t.ColsBlockX))
	}
	if imageH%(t.ColsResultSteps*t.ColsBlockY) != 0 {
		return warp.NewPreconditionError(op,
			fmt.Sprintf("image height %d not a multiple of %d", imageH, t.ColsResultSteps*t.ColsBlockY))
	}

	grid := warp.Dim3{
		X: imageW / t.ColsBlockX,
		Y: imageH / (t.ColsResultSteps * t.ColsBlockY),
	}
	block := warp.Dim3{X: t.ColsBlockX, Y: t.ColsBlockY}
	// +1 pad column keeps neighbouring lanes' tiles from sharing a stride.
	tileH := (t.ColsResultSteps+2*t.ColsHaloSteps)*t.ColsBlockY + 1
	sharedLen := t.ColsBlockX * tileH

	fn := f.colsKernel(dst.Float32(), src.Float32(), imageH, pitch, tileH)
	if err := warp.LaunchGroups(fn, grid, block, sharedLen); err != nil {
		return warp.NewExecutionError(op, "dispatch failed", err)
	}
	if err := warp.Synchronize(); err != nil {
		return warp.NewExecutionError(op, "synchronize failed", err)
	}
	return nil
}

// colsKernel builds the column-pass group kernel: the transposed analogue
// of rowsKernel, strided by pitch. Scratch is a [ColsBlockX][tileH] tile.
func (f *Filter) colsKernel(dst, src []float32, imageH, pitch, tileH int) warp.GroupFunc {
	t := f.tile
	radius := f.radius
	weights := f.weights
	halo := t.ColsHaloSteps
	steps := t.ColsResultSteps

	return func(g *warp.Group) {
		// Offset to the upper halo edge.
		tileBaseX := g.BlockIdx.X * t.ColsBlockX
		tileBaseY := (g.BlockIdx.Y*steps - halo) * t.ColsBlockY

		g.ForEachLane2D(func(x, y int) {
			baseX := tileBaseX + x
			baseY := tileBaseY + y
			col := g.Shared[x*tileH:]

			for i := halo; i < halo+steps; i++ {
				col[y+i*t.ColsBlockY] = float64(src[(baseY+i*t.ColsBlockY)*pitch+baseX])
			}
			for i := 0; i < halo; i++ {
				v := 0.0
				if baseY >= -i*t.ColsBlockY {
					v = float64(src[(baseY+i*t.ColsBlockY)*pitch+baseX])
				}
				col[y+i*t.ColsBlockY] = v
			}
			for i := halo + steps; i < halo+steps+halo; i++ {
				v := 0.0
				if imageH-baseY > i*t.ColsBlockY {
					v = float64(src[(baseY+i*t.ColsBlockY)*pitch+baseX])
				}
				col[y+i*t.ColsBlockY] = v
			}
		})

		// Barrier: scratch fully staged.

		g.ForEachLane2D(func(x, y int) {
			baseX := tileBaseX + x
			baseY := tileBaseY + y
			col := g.Shared[x*tileH:]

			for i := halo; i < halo+steps; i++ {
				sum := 0.0
				for j := -radius; j <= radius; j++ {
					sum += float64(weights[radius-j]) * col[y+i*t.ColsBlockY+j]
				}
				dst[(baseY+i*t.ColsBlockY)*pitch+baseX] = float32(sum)
			}
		})
	}
}
