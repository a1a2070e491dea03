// Package sched implements the preemptive kernel-thread scheduler (C6) and
// the kernel-stack allocator (C7). The teacher bootstraps the host Go
// runtime's own goroutine scheduler instead of writing one (gopher-os is
// written in Go and runs under goruntime.Bootstrap); this package is new
// code built from scratch in the teacher's idiom — arch stubs, *kernel.Error
// returns and spinlock-protected global state — since the target system
// requires its own from-scratch run queue and context switch.
package sched

import (
	"sync/atomic"

	"novaos/kernel/sync"
)

// State is a task's scheduling state.
type State uint32

const (
	ReadyToRun State = iota
	Sleeping
	Killed
)

func (s State) String() string {
	switch s {
	case ReadyToRun:
		return "ready"
	case Sleeping:
		return "sleeping"
	case Killed:
		return "killed"
	default:
		return "invalid"
	}
}

// TaskID identifies a task; it is the same representation kernel/sync uses
// for its WakeFn/SleepFn hooks so neither package needs to import the other.
type TaskID = sync.TaskID

// EntryFn is a task's body. It receives an opaque argument and must return
// for the task to be reaped; it must never call runtime facilities that
// assume the host Go scheduler is present.
type EntryFn func(arg uintptr)

// Task is one kernel thread. Its saved stack pointer is set by newTask from
// prepareStackFn and afterwards read and written only by the context-switch
// stub; everything else is protected by the scheduler's run-queue lock.
type Task struct {
	ID    TaskID
	state uint32 // State, accessed via atomic.{Load,Store}Uint32

	// savedSP is the stack pointer to resume at on the next switch_to into
	// this task. It is meaningless while the task is currently running.
	savedSP uintptr

	stack      Stack
	entry      EntryFn
	arg        uintptr
	exitSignal *sync.OnceChannel[struct{}]

	idle bool
}

// State returns the task's current scheduling state.
func (t *Task) State() State {
	return State(atomic.LoadUint32(&t.state))
}

// setState atomically updates the task's scheduling state.
func (t *Task) setState(s State) {
	atomic.StoreUint32(&t.state, uint32(s))
}
