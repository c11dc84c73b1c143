// Package sched is the preemptive round-robin scheduler for the
// single bootstrap processor: a run queue of priority buckets, a wait
// queue for blocked tasks, and a sleep queue ordered by wake time.
// Preemption is driven by the timer tick; a task otherwise runs until
// it blocks, sleeps, or exits. All queue mutation happens with
// interrupts disabled.
package sched

import (
	"github.com/kitsunebsd/fkernel/internal/cpu"
	"github.com/kitsunebsd/fkernel/internal/interrupt"
	"github.com/kitsunebsd/fkernel/internal/klog"
	"github.com/kitsunebsd/fkernel/internal/segment"
)

// NumPriorities bounds Task.Priority to [0, NumPriorities). Higher
// values run first.
const NumPriorities = 32

// DefaultQuantum is the time slice, in ticks, granted to a task whose
// creator did not choose one.
const DefaultQuantum = 5

// initialRFlags is the RFLAGS a fresh task starts with: IF set so the
// task is preemptible from its first instruction, plus the
// always-one reserved bit.
const initialRFlags = 0x202

// Scheduler owns the task arena and the three queues. There is
// exactly one; it lives for the lifetime of the kernel.
type Scheduler struct {
	tasks []*Task

	run   [NumPriorities]list
	wait  list
	sleep list // ascending WakeTimeTicks

	current TaskID
	idle    TaskID

	ticks uint64

	tss *segment.TSS
}

// New builds an empty scheduler. tss may be nil in hosted tests; in
// the kernel it is the live TSS whose RSP0 is retargeted on every
// context switch.
func New(tss *segment.TSS) *Scheduler {
	s := &Scheduler{current: noTask, idle: noTask, tss: tss}
	for i := range s.run {
		s.run[i] = newList(runLinkOf)
	}
	s.wait = newList(waitLinkOf)
	s.sleep = newList(sleepLinkOf)
	return s
}

func (s *Scheduler) task(id TaskID) *Task { return s.tasks[id] }

// Ticks returns the global tick count advanced by Tick.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Current returns the running task, or nil before Start.
func (s *Scheduler) Current() *Task {
	if s.current == noTask {
		return nil
	}
	return s.task(s.current)
}

// TaskConfig carries the creation-time attributes of a task.
type TaskConfig struct {
	Name        string
	Priority    int
	Quantum     int
	Entry       uintptr
	KernelStack uintptr // top of the task's private kernel stack
	Kernel      bool
	Idle        bool
}

// NewTask creates a task in the Ready state but does not queue it;
// call Add to make it runnable. The saved context is built so that
// the first switch into the task starts executing at Entry on its own
// stack with interrupts enabled.
func (s *Scheduler) NewTask(cfg TaskConfig) TaskID {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	if cfg.Quantum <= 0 {
		cfg.Quantum = DefaultQuantum
	}
	if cfg.Priority < 0 {
		cfg.Priority = 0
	}
	if cfg.Priority >= NumPriorities {
		cfg.Priority = NumPriorities - 1
	}

	t := &Task{
		ID:             TaskID(len(s.tasks)),
		Name:           cfg.Name,
		Priority:       cfg.Priority,
		State:          Ready,
		Affinity:       1,
		Kernel:         cfg.Kernel,
		Idle:           cfg.Idle,
		Quantum:        cfg.Quantum,
		TimeSliceTicks: cfg.Quantum,
		KernelStack:    cfg.KernelStack,
	}
	t.runLink.reset()
	t.waitLink.reset()
	t.sleepLink.reset()

	t.Context.RIP = uint64(cfg.Entry)
	t.Context.RSP = uint64(cfg.KernelStack)
	t.Context.CS = segment.SelectorKernelCS
	t.Context.SS = segment.SelectorKernelDS
	t.Context.RFlags = initialRFlags

	s.tasks = append(s.tasks, t)
	return t.ID
}

// Add queues a Ready task onto the run queue. The idle task is held
// out of the buckets entirely; it is the fallback when every bucket
// is empty.
func (s *Scheduler) Add(id TaskID) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	t := s.task(id)
	if t.Idle {
		s.idle = id
		return
	}
	t.State = Ready
	s.run[t.Priority].pushBack(s, id)
}

// Start nominates the first task to run. It does not perform a
// context switch itself: the caller loads the chosen task's context
// and iretq's into it.
func (s *Scheduler) Start() *Task {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	id := s.pickNext()
	t := s.task(id)
	s.makeRunning(id)
	return t
}

// Tick is called from the timer interrupt with the frame the stub
// pushed. It advances the global tick count, wakes expired sleepers,
// charges the current task's slice, and preempts on expiry. If the
// idle task is running and a real task became Ready, the switch
// happens immediately rather than waiting out idle's slice.
func (s *Scheduler) Tick(frame *interrupt.State) {
	s.ticks++
	s.wakeExpired()

	if s.current == noTask {
		return
	}
	cur := s.task(s.current)

	if cur.Idle {
		if s.runnableExists() {
			s.requeueCurrent()
			s.switchTo(frame, s.pickNext())
		}
		return
	}

	cur.TimeSliceTicks--
	if cur.TimeSliceTicks > 0 {
		return
	}
	s.requeueCurrent()
	s.switchTo(frame, s.pickNext())
}

// BlockCurrent moves the running task onto the wait queue and
// switches away. It wakes only via WakeTask.
func (s *Scheduler) BlockCurrent(frame *interrupt.State) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	cur := s.task(s.current)
	cur.State = Blocked
	s.wait.pushBack(s, s.current)
	s.switchTo(frame, s.pickNext())
}

// WakeTask moves a Blocked task back to the run queue. Waking a task
// that is not blocked is a no-op.
func (s *Scheduler) WakeTask(id TaskID) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	t := s.task(id)
	if t.State != Blocked {
		return
	}
	s.wait.remove(s, id)
	t.State = Ready
	t.TimeSliceTicks = t.Quantum
	s.run[t.Priority].pushBack(s, id)
}

// SleepCurrent puts the running task on the sleep queue for at least
// ticks timer periods and switches away. The queue is kept sorted by
// wake time so the per-tick expiry sweep stops at the first
// still-sleeping entry.
func (s *Scheduler) SleepCurrent(frame *interrupt.State, ticks uint64) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	cur := s.task(s.current)
	cur.State = Sleeping
	cur.WakeTimeTicks = s.ticks + ticks

	pos := s.sleep.head
	for pos != noTask && s.task(pos).WakeTimeTicks <= cur.WakeTimeTicks {
		pos = s.task(pos).sleepLink.next
	}
	s.sleep.insertBefore(s, s.current, pos)
	s.switchTo(frame, s.pickNext())
}

// ExitCurrent marks the running task Zombie and switches away. The
// task stays in the arena until Reap collects it.
func (s *Scheduler) ExitCurrent(frame *interrupt.State) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	cur := s.task(s.current)
	cur.State = Zombie
	klog.Infof("sched", "task %d (%s) exited", cur.ID, cur.Name)
	s.switchTo(frame, s.pickNext())
}

// Reap releases a Zombie task's arena slot. A task off every queue
// and reaped is fully reclaimable; its kernel stack is the caller's
// to free.
func (s *Scheduler) Reap(id TaskID) (kernelStack uintptr, ok bool) {
	restore := cpu.IRQDisable()
	defer cpu.IRQRestore(restore)

	t := s.task(id)
	if t == nil || t.State != Zombie {
		return 0, false
	}
	s.tasks[id] = nil
	return t.KernelStack, true
}

// wakeExpired moves every sleeper whose deadline has arrived to the
// run queue. The sleep queue is sorted ascending, so the sweep stops
// at the first unexpired entry.
func (s *Scheduler) wakeExpired() {
	for s.sleep.head != noTask {
		t := s.task(s.sleep.head)
		if t.WakeTimeTicks > s.ticks {
			return
		}
		s.sleep.remove(s, t.ID)
		t.State = Ready
		t.TimeSliceTicks = t.Quantum
		s.run[t.Priority].pushBack(s, t.ID)
	}
}

func (s *Scheduler) runnableExists() bool {
	for p := NumPriorities - 1; p >= 0; p-- {
		if !s.run[p].empty() {
			return true
		}
	}
	return false
}

// requeueCurrent returns the running task to the tail of its priority
// bucket with a fresh slice. The idle task never enters a bucket.
func (s *Scheduler) requeueCurrent() {
	cur := s.task(s.current)
	cur.TimeSliceTicks = cur.Quantum
	if cur.Idle {
		cur.State = Ready
		return
	}
	cur.State = Ready
	s.run[cur.Priority].pushBack(s, s.current)
}

// pickNext pops the head of the highest non-empty priority bucket,
// falling back to the idle task when nothing else is runnable.
func (s *Scheduler) pickNext() TaskID {
	for p := NumPriorities - 1; p >= 0; p-- {
		if id := s.run[p].popFront(s); id != noTask {
			return id
		}
	}
	return s.idle
}

func (s *Scheduler) makeRunning(id TaskID) {
	t := s.task(id)
	t.State = Running
	t.TimeSliceTicks = t.Quantum
	s.current = id
	if s.tss != nil {
		s.tss.SetKernelStack(t.KernelStack)
	}
}

// switchTo saves the interrupted task's context from the live frame,
// overwrites the frame with the incoming task's context, and
// retargets RSP0 at the incoming task's kernel stack. The iretq at
// the end of the interrupt path then resumes the incoming task.
func (s *Scheduler) switchTo(frame *interrupt.State, next TaskID) {
	if next == s.current {
		s.makeRunning(next)
		return
	}
	if s.current != noTask && frame != nil {
		s.task(s.current).Context = *frame
	}
	s.makeRunning(next)
	if frame != nil {
		*frame = s.task(next).Context
	}
}
