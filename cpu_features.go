package warp

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks available CPU instruction set extensions. The runtime
// has no hand-written SIMD; the flags are reported on Device and feed the
// worker-count heuristic (wider vector units favour fewer, longer-running
// workers per dispatch).
type CPUFeatures struct {
	HasSSE4   bool
	HasAVX    bool
	HasAVX2   bool
	HasAVX512 bool
	HasFMA    bool
}

// Global CPU feature detection
var cpuFeatures CPUFeatures

func init() {
	cpuFeatures = CPUFeatures{
		HasSSE4:   cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:    cpu.X86.HasAVX,
		HasAVX2:   cpu.X86.HasAVX2,
		HasAVX512: cpu.X86.HasAVX512F,
		HasFMA:    cpu.X86.HasFMA,
	}
}

// Features returns the detected CPU feature set.
func Features() CPUFeatures {
	return cpuFeatures
}

// VectorWidthFloat64 returns the number of float64 lanes the widest
// detected vector unit processes at once (1 on non-x86 or pre-AVX parts).
func (f CPUFeatures) VectorWidthFloat64() int {
	switch {
	case f.HasAVX512:
		return 8
	case f.HasAVX2, f.HasAVX:
		return 4
	case f.HasSSE4:
		return 2
	default:
		return 1
	}
}

// recommendedWorkers returns the default dispatch parallelism. Wide vector
// units keep a core's pipelines busy from one goroutine, so one worker per
// core; scalar-only parts get oversubscribed to cover memory stalls.
func recommendedWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if cpuFeatures.VectorWidthFloat64() >= 4 {
		return n
	}
	return n * 2
}
