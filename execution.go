package warp

import (
	"sync"
)

// launchLanes implements per-lane kernel execution. Groups ("blocks") are
// distributed over a bounded set of workers; lanes within a group execute
// sequentially on one worker, which maximizes cache reuse and makes every
// group's internal ordering deterministic.
func (ctx *Context) launchLanes(
	fn KernelFunc,
	grid, block Dim3,
	stream *Stream,
) error {
	grid = grid.norm()
	block = block.norm()

	gridSize := grid.Size()
	blockSize := block.Size()

	if gridSize < 1 || blockSize < 1 {
		return NewInvalidArgError("Launch", "grid and block dimensions must not be negative")
	}

	numWorkers := dispatchWorkers(gridSize)
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	stream.Submit(func() {
		var wg sync.WaitGroup
		wg.Add(numWorkers)

		for workerID := 0; workerID < numWorkers; workerID++ {
			startBlock := workerID * blocksPerWorker
			endBlock := startBlock + blocksPerWorker
			if endBlock > gridSize {
				endBlock = gridSize
			}

			go func(start, end int) {
				defer wg.Done()

				for blockID := start; blockID < end; blockID++ {
					blockIdx := linearTo3D(blockID, grid)

					for threadID := 0; threadID < blockSize; threadID++ {
						tid := ThreadID{
							BlockIdx:  blockIdx,
							ThreadIdx: linearTo3D(threadID, block),
							BlockDim:  block,
							GridDim:   grid,
						}
						fn(tid)
					}
				}
			}(startBlock, endBlock)
		}

		wg.Wait()
	})

	return nil
}

// launchGroups implements group-level kernel execution. Each group gets a
// zeroed private float64 scratch slice of sharedLen elements; scratch is
// reused across the groups a worker processes but never shared between
// concurrently running groups.
func (ctx *Context) launchGroups(
	fn GroupFunc,
	grid, block Dim3,
	sharedLen int,
	stream *Stream,
) error {
	if sharedLen < 0 {
		return NewInvalidArgError("LaunchGroups", "negative shared scratch size")
	}

	grid = grid.norm()
	block = block.norm()

	gridSize := grid.Size()
	blockSize := block.Size()

	if gridSize < 1 || blockSize < 1 {
		return NewInvalidArgError("LaunchGroups", "grid and block dimensions must not be negative")
	}

	numWorkers := dispatchWorkers(gridSize)
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	stream.Submit(func() {
		var wg sync.WaitGroup
		wg.Add(numWorkers)

		for workerID := 0; workerID < numWorkers; workerID++ {
			startBlock := workerID * blocksPerWorker
			endBlock := startBlock + blocksPerWorker
			if endBlock > gridSize {
				endBlock = gridSize
			}

			go func(start, end int) {
				defer wg.Done()

				var shared []float64
				if sharedLen > 0 {
					shared = make([]float64, sharedLen)
				}

				for blockID := start; blockID < end; blockID++ {
					for i := range shared {
						shared[i] = 0
					}

					g := &Group{
						BlockIdx: linearTo3D(blockID, grid),
						BlockDim: block,
						GridDim:  grid,
						Shared:   shared,
					}
					fn(g)
				}
			}(startBlock, endBlock)
		}

		wg.Wait()
	})

	return nil
}

// dispatchWorkers picks the degree of parallelism for a dispatch of
// gridSize groups.
func dispatchWorkers(gridSize int) int {
	n := recommendedWorkers()
	if gridSize < n {
		n = gridSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

// linearTo3D converts a linear index to 3D coordinates.
func linearTo3D(linear int, dim Dim3) Dim3 {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}
