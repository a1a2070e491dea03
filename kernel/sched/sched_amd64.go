package sched

import "novaos/kernel/cpu"

// archSwitchTo is switch_to(prev_sp_ptr, next_sp) (spec.md §4.4): push all
// 15 callee/caller GPRs, store rsp into *prevSPPtr, load rsp from nextSP,
// pop GPRs, ret. Declared without a body and backed by hand-written
// assembly at link time, following the teacher's kernel/cpu/cpu_amd64.go
// convention; switchToFn indirects through it so host tests never execute
// real stack-pointer surgery.
func archSwitchTo(prevSPPtr *uintptr, nextSP uintptr)

// archPrepareStack lays out a cold task's brand new stack so that the first
// archSwitchTo into it "ret"s into taskSetup(t) with a return address and
// initial register frame the assembly side expects. Declared without a
// body like every other arch primitive in this package; the returned value
// is what the new task's savedSP is initialized to.
func archPrepareStack(top uintptr, t *Task) (initialSP uintptr)

// taskSetup is the one-time trampoline a cold task's savedSP resumes into
// the first time it is switched to. It releases the scheduler lock the
// caller of switch_to inherited across the switch, enables interrupts,
// calls the task's entry function, marks it Killed, wakes its exit
// channel, and re-enters the scheduler — it must never return.
func taskSetup(t *Task) {
	runQueueLock.ForceUnlock()
	cpu.EnableInterrupts()

	t.entry(t.arg)

	Exit(t)
}
