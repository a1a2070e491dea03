package vmm

import (
	"novaos/kernel"
	"novaos/kernel/mem/pmm"
)

// fakeFrameStore backs every page table with ordinary host memory, keyed by
// frame number, so AddrSpace logic can be exercised without an MMU.
type fakeFrameStore struct {
	tables map[pmm.Frame]*Table
}

func newFakeFrameStore() *fakeFrameStore {
	return &fakeFrameStore{tables: make(map[pmm.Frame]*Table)}
}

func (s *fakeFrameStore) Table(f pmm.Frame) *Table {
	t, ok := s.tables[f]
	if !ok {
		t = &Table{}
		s.tables[f] = t
	}
	return t
}

// fakeAllocator hands out ascending frame numbers starting above any frame
// already known to the store, so intermediate tables never collide with
// frames the test has already mapped to data.
type fakeAllocator struct {
	next pmm.Frame
}

func (a *fakeAllocator) alloc() (pmm.Frame, *kernel.Error) {
	f := a.next
	a.next++
	return f, nil
}
