package allocator

import (
	"novaos/boot"
	"testing"
)

// TestBootstrapScenario reproduces spec.md §8 scenario 2 verbatim.
func TestBootstrapScenario(t *testing.T) {
	regions := boot.SliceIterator{
		{StartAddr: 0x000, Length: 0x100, Free: false},
		{StartAddr: 0x100, Length: 0x100, Free: true},
		{StartAddr: 0x200, Length: 0x200, Free: false},
		{StartAddr: 0x400, Length: 0x100, Free: true},
		{StartAddr: 0x500, Length: 0x020, Free: false},
	}
	const pageSize = 0x10

	var backing []byte
	bm, plan, err := Bootstrap(regions, pageSize, func(_, size uint64) []byte {
		backing = make([]byte, size)
		return backing
	})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if plan.BitmapStart != 0x100 {
		t.Fatalf("bitmap placed at 0x%x, want 0x100", plan.BitmapStart)
	}

	checkUsed := func(page uint64, want bool) {
		t.Helper()
		if page >= uint64(bm.Frames()) {
			return
		}
		got := bm.isSet(int(page))
		if got != want {
			t.Errorf("page 0x%x used=%v, want %v", page, got, want)
		}
	}

	for p := uint64(0x0); p <= 0xF; p++ {
		checkUsed(p, true)
	}
	for p := uint64(0x20); p <= 0x3F; p++ {
		checkUsed(p, true)
	}
	for p := uint64(0x50); p <= 0x51; p++ {
		checkUsed(p, true)
	}
	// the page holding the bitmap itself (starts at page 0x10)
	checkUsed(0x10, true)
}

func TestBootstrapFailsWithNoRegionLargeEnough(t *testing.T) {
	regions := boot.SliceIterator{
		{StartAddr: 0, Length: 0x1000, Free: false},
	}
	_, _, err := Bootstrap(regions, 0x10, func(_, size uint64) []byte {
		return make([]byte, size)
	})
	if err == nil {
		t.Fatalf("expected bootstrap to fail when no region can hold the bitmap")
	}
}
