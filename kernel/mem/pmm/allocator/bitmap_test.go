package allocator

import (
	"testing"
)

// TestBitmapTinyScenario reproduces spec.md §8 scenario 1 verbatim.
func TestBitmapTinyScenario(t *testing.T) {
	bm := NewBitmap([]byte{0, 0})

	start, ok := bm.AllocateContiguous(1)
	if !ok || start != 0 {
		t.Fatalf("alloc(1) = (%d, %v), want (0, true)", start, ok)
	}

	if _, ok := bm.AllocateContiguous(100); ok {
		t.Fatalf("alloc(100) should fail on a 16-bit bitmap")
	}

	bm.MarkUsed(3)

	start, ok = bm.AllocateContiguous(5)
	if !ok || start != 4 {
		t.Fatalf("alloc(5) = (%d, %v), want (4, true)", start, ok)
	}

	want := []byte{0b1111_1001, 0b0000_0001}
	if bm.bits[0] != want[0] || bm.bits[1] != want[1] {
		t.Fatalf("bitmap state = %08b %08b, want %08b %08b", bm.bits[0], bm.bits[1], want[0], want[1])
	}
}

func TestAllocateContiguousZeroFails(t *testing.T) {
	bm := NewBitmap([]byte{0})
	if _, ok := bm.AllocateContiguous(0); ok {
		t.Fatalf("alloc(0) must fail loudly")
	}
}

func TestAllocateContiguousSkipsFullBytes(t *testing.T) {
	// byte 0 entirely full, byte 1 entirely free: a 2-bit run must start
	// at frame 8, not get miscounted across the skipped byte boundary.
	bm := NewBitmap([]byte{0xFF, 0x00})
	start, ok := bm.AllocateContiguous(2)
	if !ok || start != 8 {
		t.Fatalf("alloc(2) = (%d, %v), want (8, true)", start, ok)
	}
}

func TestMarkUsedTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double MarkUsed")
		}
	}()
	bm := NewBitmap([]byte{0})
	bm.MarkUsed(0)
	bm.MarkUsed(0)
}

func TestMarkUnusedOfFreeFramePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on MarkUnused of a free frame")
		}
	}()
	bm := NewBitmap([]byte{0})
	bm.MarkUnused(0)
}

// TestFreeReturnsToAllZero verifies: for any sequence of allocator
// operations starting from empty, freeing every allocated range returns the
// bitmap to all zeros.
func TestFreeReturnsToAllZero(t *testing.T) {
	bm := NewBitmap(make([]byte, 4)) // 32 frames

	type alloc struct {
		start, n int
	}
	var allocs []alloc
	for _, n := range []int{3, 5, 1, 7} {
		start, ok := bm.AllocateContiguous(n)
		if !ok {
			t.Fatalf("alloc(%d) failed unexpectedly", n)
		}
		allocs = append(allocs, alloc{start, n})
	}

	for _, a := range allocs {
		bm.FreeContiguous(a.start, a.n)
	}

	for i, bv := range bm.bits {
		if bv != 0 {
			t.Fatalf("byte %d = %08b after freeing everything, want 0", i, bv)
		}
	}
}

func TestAllocateContiguousFirstFit(t *testing.T) {
	bm := NewBitmap([]byte{0})
	_, _ = bm.AllocateContiguous(2) // frames 0-1
	bm.FreeContiguous(0, 1)         // free frame 0 only -> hole at 0
	start, ok := bm.AllocateContiguous(1)
	if !ok || start != 0 {
		t.Fatalf("first-fit must reuse the lowest free frame, got (%d, %v)", start, ok)
	}
}
