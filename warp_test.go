package warp

import (
	"math"
	"math/rand"
	"testing"
)

// Test basic memory allocation and deallocation
func TestMemoryAllocation(t *testing.T) {
	sizes := []int{100, 1000, 10000, 1000000}

	for _, size := range sizes {
		ptr, err := Malloc(size * 8)
		if err != nil {
			t.Fatalf("Failed to allocate %d bytes: %v", size*8, err)
		}

		slice := ptr.Float64()
		if len(slice) != size {
			t.Errorf("Expected slice length %d, got %d", size, len(slice))
		}

		for i := 0; i < min(100, size); i++ {
			slice[i] = float64(i)
		}
		for i := 0; i < min(100, size); i++ {
			if slice[i] != float64(i) {
				t.Errorf("Memory corruption at index %d", i)
			}
		}

		if err := Free(ptr); err != nil {
			t.Fatalf("Failed to free memory: %v", err)
		}
	}
}

func TestMallocRejectsBadSize(t *testing.T) {
	if _, err := Malloc(0); err == nil {
		t.Error("Malloc(0) should fail")
	}
	if _, err := Malloc(-8); err == nil {
		t.Error("Malloc(-8) should fail")
	}
}

func TestDoubleFree(t *testing.T) {
	ptr, err := Malloc(256)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if err := Free(ptr); err != nil {
		t.Fatalf("first Free failed: %v", err)
	}
	err = Free(ptr)
	if !IsMemoryError(err) {
		t.Errorf("second Free: want memory error, got %v", err)
	}
}

// Test memory copy operations
func TestMemcpy(t *testing.T) {
	const N = 1000

	h_src := make([]float64, N)
	h_dst := make([]float64, N)
	for i := 0; i < N; i++ {
		h_src[i] = rand.Float64()
	}

	d_src, _ := Malloc(N * 8)
	d_dst, _ := Malloc(N * 8)
	defer Free(d_src)
	defer Free(d_dst)

	if err := Memcpy(d_src, h_src, N*8, MemcpyHostToDevice); err != nil {
		t.Fatalf("H2D copy failed: %v", err)
	}
	if err := Memcpy(d_dst, d_src, N*8, MemcpyDeviceToDevice); err != nil {
		t.Fatalf("D2D copy failed: %v", err)
	}
	if err := Memcpy(h_dst, d_dst, N*8, MemcpyDeviceToHost); err != nil {
		t.Fatalf("D2H copy failed: %v", err)
	}

	for i := 0; i < N; i++ {
		if h_dst[i] != h_src[i] {
			t.Fatalf("Mismatch at %d: got %v, want %v", i, h_dst[i], h_src[i])
		}
	}
}

func TestMemcpyRejectsUnsupportedType(t *testing.T) {
	d, _ := Malloc(64)
	defer Free(d)
	err := Memcpy(d, "not a buffer", 8, MemcpyHostToDevice)
	if !IsInvalidArgError(err) {
		t.Errorf("want invalid argument error, got %v", err)
	}
}

func TestMemset(t *testing.T) {
	const N = 128
	d, _ := Malloc(N * 8)
	defer Free(d)

	x := d.Float64()
	for i := range x {
		x[i] = 1.0
	}
	if err := Memset(d, 0, N*8); err != nil {
		t.Fatalf("Memset failed: %v", err)
	}
	for i, v := range x {
		if v != 0 {
			t.Fatalf("Memset left %v at index %d", v, i)
		}
	}

	if err := Memset(d, 0, N*8+1); err == nil {
		t.Error("Memset past allocation should fail")
	}
}

func TestMemsetFloat64(t *testing.T) {
	const N = 32
	d, _ := Malloc(N * 8)
	defer Free(d)

	if err := MemsetFloat64(d, 2.5, N); err != nil {
		t.Fatalf("MemsetFloat64 failed: %v", err)
	}
	for i, v := range d.Float64() {
		if v != 2.5 {
			t.Fatalf("MemsetFloat64 left %v at index %d", v, i)
		}
	}

	if err := MemsetFloat64(d, 0, N+1); err == nil {
		t.Error("MemsetFloat64 past allocation should fail")
	}
}

func TestOffset(t *testing.T) {
	const N = 64
	d, _ := Malloc(N * 8)
	defer Free(d)

	x := d.Float64()
	for i := range x {
		x[i] = float64(i)
	}

	half := d.Offset(N / 2 * 8)
	got := half.Float64()
	if len(got) != N/2 {
		t.Fatalf("offset view has %d elements, want %d", len(got), N/2)
	}
	if got[0] != float64(N/2) {
		t.Errorf("offset view starts at %v, want %v", got[0], float64(N/2))
	}
}

// Test per-lane kernel launch with a vector add
func TestLaunchFunc(t *testing.T) {
	const N = 10000

	d_a, _ := Malloc(N * 8)
	d_b, _ := Malloc(N * 8)
	d_c, _ := Malloc(N * 8)
	defer Free(d_a)
	defer Free(d_b)
	defer Free(d_c)

	a := d_a.Float64()
	b := d_b.Float64()
	for i := 0; i < N; i++ {
		a[i] = float64(i)
		b[i] = float64(2 * i)
	}

	grid := Dim3{X: (N + DefaultBlockSize - 1) / DefaultBlockSize}
	block := Dim3{X: DefaultBlockSize}

	kernel := func(tid ThreadID) {
		idx := tid.Global()
		if idx < N {
			d_c.Float64()[idx] = d_a.Float64()[idx] + d_b.Float64()[idx]
		}
	}

	if err := LaunchFunc(kernel, grid, block); err != nil {
		t.Fatalf("LaunchFunc failed: %v", err)
	}
	if err := Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}

	c := d_c.Float64()
	for i := 0; i < N; i++ {
		if c[i] != float64(3*i) {
			t.Fatalf("c[%d] = %v, want %v", i, c[i], float64(3*i))
		}
	}
}

// Group launch: every group gets zeroed private scratch and contributes
// once to a global accumulator.
func TestLaunchGroups(t *testing.T) {
	const groups = 100
	const lanes = 64
	const sharedLen = 16

	d_sum, _ := Malloc(8)
	defer Free(d_sum)
	d_sum.Float64()[0] = 0

	fn := func(g *Group) {
		if len(g.Shared) != sharedLen {
			t.Errorf("group %d: scratch has %d elements, want %d", g.BlockIdx.X, len(g.Shared), sharedLen)
		}
		for i, v := range g.Shared {
			if v != 0 {
				t.Errorf("group %d: scratch[%d] = %v, want zeroed", g.BlockIdx.X, i, v)
			}
		}

		g.ForEachLane(func(lane int) {
			g.Shared[lane%sharedLen] += 1
		})
		// One designated lane publishes the group total.
		total := 0.0
		for _, v := range g.Shared {
			total += v
		}
		AtomicAddFloat64Ptr(d_sum, total)
	}

	if err := LaunchGroups(fn, Dim3{X: groups}, Dim3{X: lanes}, sharedLen); err != nil {
		t.Fatalf("LaunchGroups failed: %v", err)
	}
	if err := Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}

	want := float64(groups * lanes)
	if got := d_sum.Float64()[0]; got != want {
		t.Errorf("accumulator = %v, want %v", got, want)
	}
}

func TestLaunchRejectsNegativeDims(t *testing.T) {
	err := LaunchGroups(func(g *Group) {}, Dim3{X: -1}, Dim3{X: 32}, 0)
	if !IsInvalidArgError(err) {
		t.Errorf("negative grid: want invalid argument error, got %v", err)
	}
	err = LaunchFunc(func(tid ThreadID) {}, Dim3{X: 1}, Dim3{X: -4})
	if !IsInvalidArgError(err) {
		t.Errorf("negative block: want invalid argument error, got %v", err)
	}

	// Unset dimensions default to one, matching dim3 semantics.
	ran := 0
	if err := LaunchGroups(func(g *Group) { ran++ }, Dim3{}, Dim3{}, 0); err != nil {
		t.Fatalf("default dims launch failed: %v", err)
	}
	if err := Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
	if ran != 1 {
		t.Errorf("default dims ran %d groups, want 1", ran)
	}
}

func TestLaunchGroupsRejectsNegativeScratch(t *testing.T) {
	err := LaunchGroups(func(g *Group) {}, Dim3{X: 1}, Dim3{X: 1}, -1)
	if !IsInvalidArgError(err) {
		t.Errorf("want invalid argument error, got %v", err)
	}
}

func TestReduceHalving(t *testing.T) {
	for _, n := range []int{1, 2, 8, 32, 256} {
		partials := make([]float64, n)
		want := 0.0
		for i := range partials {
			partials[i] = float64(i + 1)
			want += partials[i]
		}
		got := ReduceHalving(partials)
		if got != want {
			t.Errorf("n=%d: ReduceHalving = %v, want %v", n, got, want)
		}
	}

	if got := ReduceHalving(nil); got != 0 {
		t.Errorf("ReduceHalving(nil) = %v, want 0", got)
	}
}

func TestAtomicAddFloat64Contention(t *testing.T) {
	const adders = 64
	const addsEach = 1000

	var sum float64
	done := make(chan struct{})
	for i := 0; i < adders; i++ {
		go func() {
			for j := 0; j < addsEach; j++ {
				AtomicAddFloat64(&sum, 1)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < adders; i++ {
		<-done
	}

	// Integer-valued float64 adds are exact well below 2^53.
	if sum != adders*addsEach {
		t.Errorf("sum = %v, want %v", sum, float64(adders*addsEach))
	}
}

func TestAtomicAddFloat64NaNTerminates(t *testing.T) {
	sum := math.NaN()
	AtomicAddFloat64(&sum, 1)
	if !math.IsNaN(sum) {
		t.Errorf("NaN accumulator became %v", sum)
	}
}

func TestDeviceProperties(t *testing.T) {
	if GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount = %d, want 1", GetDeviceCount())
	}
	dev := GetDevice()
	if dev.NumCores < 1 {
		t.Errorf("device reports %d cores", dev.NumCores)
	}
	if err := SetDevice(1); err == nil {
		t.Error("SetDevice(1) should fail")
	}
	if _, err := GetDeviceProperties(2); err == nil {
		t.Error("GetDeviceProperties(2) should fail")
	}
	if w := dev.Features.VectorWidthFloat64(); w < 1 {
		t.Errorf("vector width %d", w)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
