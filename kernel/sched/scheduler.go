package sched

import (
	"novaos/kernel"
	"novaos/kernel/cpu"
	"novaos/kernel/mem/vmm"
	"novaos/kernel/sync"
)

var (
	runQueueLock sync.Spinlock
	runQueue     []*Task

	current [cpu.MaxCPUs]*Task
	idle    [cpu.MaxCPUs]*Task

	stacks *stackAllocator

	nextTaskID TaskID = 1

	// switchToFn performs the low-level register save/restore described by
	// spec.md §4.4's switch_to: save the caller's GPRs, stash rsp into
	// prev's savedSP, load next's savedSP into rsp, restore GPRs, ret. It
	// wraps the stub (archSwitchTo) backed by hand-written assembly at link
	// time, adapting its raw-pointer signature to the *Task pair the
	// scheduler works with; a package-level indirection lets host tests
	// substitute a goroutine-based simulator instead of real stack
	// switching, following the teacher's activePDTFn/flushTLBEntryFn
	// convention.
	switchToFn = func(prev, next *Task) { archSwitchTo(&prev.savedSP, next.savedSP) }

	// prepareStackFn indirects to archPrepareStack, following the same
	// teacher convention (kernel/cpu/cpu_amd64.go's cpuidFn) used throughout
	// this codebase to keep arch primitives swappable in host tests.
	prepareStackFn = archPrepareStack
)

// Init wires the scheduler into kernel/sync's wake/sleep hooks and prepares
// one idle task per CPU, backed by kernel stacks allocated from as.
func Init(as *vmm.AddrSpace, cpuCount uint32) *kernel.Error {
	stacks = newStackAllocator(as)
	sync.WakeFn = wake
	sync.SleepFn = func() { RunScheduler() }

	for id := uint32(0); id < cpuCount; id++ {
		t, err := newTask(idleLoop, 0)
		if err != nil {
			return err
		}
		t.idle = true
		idle[id] = t
	}
	return nil
}

func idleLoop(uintptr) {
	for {
		cpu.Halt()
	}
}

// newTask allocates a kernel stack and a Task descriptor, but does not place
// it on the run queue.
func newTask(entry EntryFn, arg uintptr) (*Task, *kernel.Error) {
	stack, err := stacks.Allocate()
	if err != nil {
		return nil, err
	}
	id := nextTaskID
	nextTaskID++
	t := &Task{
		ID:         id,
		state:      uint32(ReadyToRun),
		stack:      stack,
		entry:      entry,
		arg:        arg,
		exitSignal: sync.NewOnceChannel[struct{}](id),
	}
	t.savedSP = prepareStackFn(stack.Top, t)
	return t, nil
}

// Spawn creates a new ready-to-run task and enqueues it.
func Spawn(entry EntryFn, arg uintptr) (*Task, *kernel.Error) {
	t, err := newTask(entry, arg)
	if err != nil {
		return nil, err
	}
	enqueue(t)
	return t, nil
}

func enqueue(t *Task) {
	runQueueLock.Acquire()
	runQueue = append(runQueue, t)
	runQueueLock.Release()
}

// wake transitions a sleeping task back to ReadyToRun and enqueues it. It is
// registered as kernel/sync's WakeFn.
func wake(id TaskID) {
	runQueueLock.Acquire()
	t := findTask(id)
	runQueueLock.Release()
	if t == nil {
		return
	}
	t.setState(ReadyToRun)
	enqueue(t)
}

func findTask(id TaskID) *Task {
	for _, t := range runQueue {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// RunScheduler implements spec.md §4.4's run_scheduler: reap killed tasks,
// pick the next ready task (falling back to the calling CPU's idle task),
// and context-switch to it. It is called both voluntarily (by Sleep/Yield)
// and, in production, from the timer interrupt — gated there on
// cpu.PreemptCount() == 0 so a task holding a spinlock is never migrated
// mid-critical-section.
func RunScheduler() {
	cpu.DisableInterrupts()
	defer cpu.EnableInterrupts()

	cpuArea := cpu.Current()
	prev := current[cpuArea.ID]

	runQueueLock.Acquire()
	reapKilled()
	next := popNextReady()

	if next == nil {
		if prev != nil && prev.State() == ReadyToRun && !prev.idle {
			runQueueLock.Release()
			return
		}
		next = idle[cpuArea.ID]
	}

	if prev != nil && prev != next && prev.State() == ReadyToRun && !prev.idle {
		runQueue = append(runQueue, prev)
	}
	runQueueLock.Release()

	if prev == next {
		return
	}

	current[cpuArea.ID] = next
	if prev == nil {
		prev = idle[cpuArea.ID]
	}
	switchToFn(prev, next)
}

// reapKilled drops every Killed task from the run queue; must be called
// with runQueueLock held.
func reapKilled() {
	live := runQueue[:0]
	for _, t := range runQueue {
		if t.State() != Killed {
			live = append(live, t)
		}
	}
	runQueue = live
}

// popNextReady removes and returns the first ReadyToRun task in the queue,
// leaving every other task in place in its original relative order; must be
// called with runQueueLock held.
func popNextReady() *Task {
	for i, t := range runQueue {
		if t.State() == ReadyToRun {
			runQueue = append(runQueue[:i], runQueue[i+1:]...)
			return t
		}
	}
	return nil
}

// Sleep atomically marks the calling task Sleeping and re-enters the
// scheduler, matching spec.md §4.4's sleep(ms): the caller is responsible
// for arranging the timer that will eventually call wake(self).
func Sleep(self *Task) {
	self.setState(Sleeping)
	RunScheduler()
}

// Exit marks the calling task Killed, sends on its exit channel, and
// re-enters the scheduler one final time. It never returns. The channel's
// recorded receiver is the exiting task itself, so Send does not wake the
// tasks blocked in Wait; they see the value on their next poll.
func Exit(self *Task) {
	self.setState(Killed)
	self.exitSignal.Send(struct{}{})
	for {
		RunScheduler()
	}
}

// Wait blocks until t has run to completion.
func Wait(t *Task) {
	t.exitSignal.Recv()
}

// Yield voluntarily re-enters the scheduler without changing the calling
// task's state, giving other ReadyToRun tasks a turn.
func Yield() {
	RunScheduler()
}

// TimerTick is invoked from the timer interrupt handler on every tick. It
// refuses to preempt while the calling CPU's preempt-disable counter is
// nonzero, per spec.md §4.4, so a task holding a spinlock is never
// rescheduled mid-critical-section.
func TimerTick() {
	if cpu.Current().PreemptCount > 0 {
		return
	}
	RunScheduler()
}
