package sync

import "sync/atomic"

// AtomicEnum is an atomically-updated small integer whose valid discriminant
// set is fixed at construction time. Storing an invalid discriminant is a
// bug-class error (spec.md §7) and panics rather than silently corrupting
// state, matching the handling of double-free and similar assertions
// elsewhere in this package.
type AtomicEnum struct {
	v     uint32
	valid func(uint32) bool
}

// NewAtomicEnum constructs an AtomicEnum with the given initial value and
// validity predicate. A nil predicate accepts any value.
func NewAtomicEnum(initial uint32, valid func(uint32) bool) *AtomicEnum {
	if valid != nil && !valid(initial) {
		panic("sync: invalid initial enum discriminant")
	}
	return &AtomicEnum{v: initial, valid: valid}
}

// Load returns the current value.
func (a *AtomicEnum) Load() uint32 {
	return atomic.LoadUint32(&a.v)
}

// Store sets the value, panicking if it is not a valid discriminant.
func (a *AtomicEnum) Store(val uint32) {
	if a.valid != nil && !a.valid(val) {
		panic("sync: invalid enum discriminant")
	}
	atomic.StoreUint32(&a.v, val)
}

// CompareAndSwap atomically sets the value to new if it currently equals
// old, panicking if new is not a valid discriminant.
func (a *AtomicEnum) CompareAndSwap(old, new uint32) bool {
	if a.valid != nil && !a.valid(new) {
		panic("sync: invalid enum discriminant")
	}
	return atomic.CompareAndSwapUint32(&a.v, old, new)
}
