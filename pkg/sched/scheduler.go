// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sched

import (
	"fmt"
	"io"

	"github.com/mohae/deepcopy"

	"github.com/classos/sched/pkg/log"
	"github.com/classos/sched/pkg/sched/clock"
	"github.com/classos/sched/pkg/sched/config"
)

// bandQueue is the common shape of sortedQueue and fifoQueue, letting
// the dispatcher and aging engine operate on "whichever of L1/L2/L3" by
// Band without a type switch at every call site.
type bandQueue interface {
	insert(*Thread)
	remove(*Thread)
	removeFront() *Thread
	empty() bool
	len() int
	each(func(*Thread))
}

// SwitchFunc is the opaque context-switch primitive, SWITCH(old, new).
// The real kernel swaps stacks here; a simulation driver can leave this
// nil.
type SwitchFunc func(old, next *Thread)

// Scheduler is the dispatcher, preemption gate, aging engine, and burst
// estimator, bound to one logical CPU.
//
// Scheduler is NOT safe for concurrent use. The whole point of the
// design is that mutual exclusion comes from the caller's
// interrupt-disable discipline, not from locks: a scheduler path that
// blocked on a lock could recursively re-enter dispatch and loop
// forever. Every exported method must be called with interrupts
// conceptually disabled, i.e. from a single goroutine, never
// concurrently with another Scheduler method call.
type Scheduler struct {
	clock *clock.Clock
	cfg   config.Config
	trace *log.Trace

	l1 *sortedQueue // SJF, priority band [L1Min,L1Max]
	l2 *sortedQueue // static priority, band [L2Min,L2Max]
	l3 *fifoQueue   // round-robin, band [L3Min,L3Max]

	current       *Thread
	toBeDestroyed *Thread
	preemptReq    bool

	// Switch is the opaque SWITCH(old, new) primitive. Nil means no
	// external stack-switch side effect (the default for a pure
	// simulation, where "switching" is just updating current).
	Switch SwitchFunc

	// InterruptsDisabled reports whether the caller's interrupt level
	// is currently off. Run consults it on entry and panics if it
	// reports interrupts enabled; ReadyToRun, FindNextToRun, Aging and
	// UpdateBurstTime do not consult it. A nil hook trusts the caller
	// unconditionally, treating
	// interrupt-enable mechanics as an external collaborator.
	InterruptsDisabled func() bool

	// OnDestroy is called with a thread as it is released from
	// toBeDestroyed, giving the embedding kernel a chance to free it.
	// The deferred-delete protocol only guarantees *when* this may
	// happen, not how the thread object itself is reclaimed.
	OnDestroy func(*Thread)
}

// New constructs a Scheduler with empty ready queues. trace may be nil,
// in which case the six stable trace lines are discarded rather than
// logged; this is useful in unit tests that assert on
// queue/thread state directly instead of on trace output.
func New(c *clock.Clock, cfg config.Config, trace *log.Trace) *Scheduler {
	if trace == nil {
		trace = log.NewPlainTrace(io.Discard)
	}
	return &Scheduler{
		clock: c,
		cfg:   cfg,
		trace: trace,
		l1:    newSortedQueue(sjfLess),
		l2:    newSortedQueue(priorityLess),
		l3:    newFIFOQueue(),
	}
}

// Current returns the currently running thread, or nil if the CPU is idle.
func (s *Scheduler) Current() *Thread {
	return s.current
}

// Bootstrap installs t as the running thread without going through Run.
// It exists for the very first thread the surrounding kernel starts,
// which by definition has no predecessor to switch away from.
func (s *Scheduler) Bootstrap(t *Thread) {
	if s.current != nil {
		panic("sched: Bootstrap called with a thread already running")
	}
	t.Status = StatusRunning
	t.StartExeTime = s.clock.Ticks()
	s.current = t
}

func (s *Scheduler) assertInterruptsDisabled() {
	if s.InterruptsDisabled != nil && !s.InterruptsDisabled() {
		panic("sched: fatal assertion: interrupts enabled on entry to scheduler")
	}
}

func (s *Scheduler) bandOf(priority int) Band {
	b := s.cfg.Bands
	switch {
	case priority >= b.L1Min && priority <= b.L1Max:
		return BandL1
	case priority >= b.L2Min && priority <= b.L2Max:
		return BandL2
	case priority >= b.L3Min && priority <= b.L3Max:
		return BandL3
	default:
		panic(fmt.Sprintf("sched: fatal assertion: priority %d is in no configured band", priority))
	}
}

func (s *Scheduler) queueFor(band Band) bandQueue {
	switch band {
	case BandL1:
		return s.l1
	case BandL2:
		return s.l2
	case BandL3:
		return s.l3
	default:
		panic(fmt.Sprintf("sched: fatal assertion: no ready queue for band %v", band))
	}
}

func bandNumber(b Band) int {
	switch b {
	case BandL1:
		return 1
	case BandL2:
		return 2
	case BandL3:
		return 3
	default:
		return 0
	}
}

// clampPriority bounds a post-aging priority at the global ceiling of
// 149. It does not clamp at interior band boundaries: a bump that
// crosses one moves the thread into the next band, and Aging re-admits
// it there.
func (s *Scheduler) clampPriority(p int) int {
	if p > s.cfg.Bands.L1Max {
		return s.cfg.Bands.L1Max
	}
	return p
}

// ReadyToRun implements the preemption gate. thread must not currently
// be in any ready queue or RUNNING.
//
// Preemption is implemented as a should-preempt flag rather than a
// synchronous re-entrant call into Yield/Run (see DESIGN.md for why the
// flag was chosen over the reentrant-call alternative). The caller must
// check ShouldPreempt after every ReadyToRun and, if true, requeue the
// current thread and dispatch.
func (s *Scheduler) ReadyToRun(thread *Thread) {
	if thread.Status == StatusRunning {
		panic(fmt.Sprintf("sched: fatal assertion: thread %d is RUNNING, cannot be admitted to a ready queue", thread.ID))
	}
	if thread.band != BandNone {
		panic(fmt.Sprintf("sched: fatal assertion: thread %d is already a member of queue %v", thread.ID, thread.band))
	}

	now := s.clock.Ticks()
	thread.Status = StatusReady
	thread.ArrivalTime = now

	band := s.bandOf(thread.Priority)
	s.queueFor(band).insert(thread)
	thread.band = band
	s.trace.Inserted(now, int64(thread.ID), bandNumber(band))

	if band != BandL1 {
		// Only L1 (SJF) admissions can preempt; L2/L3 gain the CPU only
		// through the normal dispatch loop.
		return
	}
	if s.current == nil {
		// No thread runs on an idle CPU to preempt.
		return
	}
	if thread.BurstTime < s.current.BurstTime {
		s.current.TmpBurstTime += float64(now - s.current.StartExeTime)
		s.preemptReq = true
	}
}

// ShouldPreempt reports and clears whether the most recent ReadyToRun
// requested that the running thread yield.
func (s *Scheduler) ShouldPreempt() bool {
	v := s.preemptReq
	s.preemptReq = false
	return v
}

// FindNextToRun implements the dispatcher's selection rule: the
// comparator-minimum of L1 if non-empty, else the front of L2, else the
// front of L3, else nil. The returned thread is removed from its queue.
func (s *Scheduler) FindNextToRun() *Thread {
	now := s.clock.Ticks()
	for _, band := range [3]Band{BandL1, BandL2, BandL3} {
		q := s.queueFor(band)
		if q.empty() {
			continue
		}
		t := q.removeFront()
		t.band = BandNone
		s.trace.Removed(now, int64(t.ID), bandNumber(band))
		return t
	}
	return nil
}

// Run dispatches the CPU to next. The caller is responsible for having
// already updated the outgoing thread's Status (to BLOCKED, READY, or
// ZOMBIE) and, if READY, having re-queued it via ReadyToRun before
// calling Run.
//
// finishing marks that the outgoing thread is exiting and must be
// parked in toBeDestroyed until CheckToBeDestroyed runs after the next
// successful dispatch, per the deferred-delete protocol.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	s.assertInterruptsDisabled()

	// This call is "the next dispatch step" invariant 4 refers to: if
	// some earlier finishing thread is still parked in toBeDestroyed,
	// release it now. In a real kernel this cleanup is the tail of the
	// Run() call that switched away from the destroyed thread, resumed
	// only once another switch brings that exact stack back; collapsed
	// onto a single goroutine, the next call to Run is that moment.
	s.CheckToBeDestroyed()

	outgoing := s.current

	if finishing {
		if s.toBeDestroyed != nil {
			panic("sched: fatal assertion: Run(finishing=true) called with toBeDestroyed already occupied")
		}
		s.toBeDestroyed = outgoing
	}

	if outgoing != nil {
		if outgoing.Space != nil {
			if outgoing.SaveUserState != nil {
				outgoing.SaveUserState()
			}
			outgoing.Space.SaveState()
		}
		if outgoing.CheckOverflow != nil && outgoing.CheckOverflow() {
			panic(fmt.Sprintf("sched: fatal: stack overflow detected on thread %d", outgoing.ID))
		}
	}

	now := s.clock.Ticks()
	next.StartExeTime = now
	if outgoing != nil {
		next.LastBurstTime = now - outgoing.StartExeTime
	} else {
		next.LastBurstTime = 0
	}

	s.current = next
	next.Status = StatusRunning

	s.trace.Selected(now, int64(next.ID))
	if outgoing != nil {
		s.trace.Replaced(now, int64(outgoing.ID), now-outgoing.StartExeTime)
	}

	if s.Switch != nil {
		s.Switch(outgoing, next)
	}

	// In a real kernel, restoring the newly-current thread's address
	// space happens once some later switch brings its stack back to
	// the point just after SWITCH. This simulation's SWITCH is an
	// opaque marker call rather than a real coroutine hand-off, since
	// the real context switch is treated as external, so next's state
	// is restored immediately instead of on a later resume.
	if next.Space != nil {
		if next.RestoreUserState != nil {
			next.RestoreUserState()
		}
		next.Space.RestoreState()
	}
}

// QueueSnapshot is an independently-owned, point-in-time copy of the
// running thread (if any) and each ready queue's contents, in dispatch
// order.
type QueueSnapshot struct {
	Current *Thread
	L1, L2, L3 []Thread
}

// Snapshot returns a QueueSnapshot of the scheduler's current state. It
// exists for observers like cmd/schedsim watch's terminal renderer,
// which run on a different goroutine than the one driving
// ReadyToRun/Run; deep-copying here, rather than handing back live
// *Thread pointers, is what makes reading a snapshot safe despite
// Scheduler itself being documented as not safe for concurrent use:
// once returned, the snapshot shares no memory with the live queues.
func (s *Scheduler) Snapshot() QueueSnapshot {
	snap := QueueSnapshot{
		L1: snapshotQueue(s.l1),
		L2: snapshotQueue(s.l2),
		L3: snapshotQueue(s.l3),
	}
	if s.current != nil {
		snap.Current = deepcopy.Copy(s.current).(*Thread)
	}
	return snap
}

func snapshotQueue(q bandQueue) []Thread {
	out := make([]Thread, 0, q.len())
	q.each(func(t *Thread) {
		out = append(out, *deepcopy.Copy(t).(*Thread))
	})
	return out
}

// Idle marks the CPU as running nothing. It exists for embedding
// drivers that don't model an always-runnable idle thread: when
// FindNextToRun returns nil after the current thread blocks or exits,
// there is no successor to pass to Run, so the driver calls Idle
// directly instead. A real Nachos-style kernel avoids this case
// entirely by always keeping an idle thread on L3; see DESIGN.md.
func (s *Scheduler) Idle() {
	s.current = nil
}

// Finish marks t as a finishing thread when FindNextToRun found no
// successor to dispatch to. Since Run's deferred-delete protocol needs
// a next thread to switch to, Finish instead parks and immediately
// releases t, skipping the usual one-dispatch delay; this only differs
// from the normal path in how soon OnDestroy fires; t has already been
// removed from every ready queue by the caller. A thread that an earlier
// finishing Run parked is released first, as Run itself would.
func (s *Scheduler) Finish(t *Thread) {
	s.CheckToBeDestroyed()
	if s.toBeDestroyed != nil {
		panic("sched: fatal assertion: Finish called with toBeDestroyed already occupied")
	}
	s.current = nil
	if s.OnDestroy != nil {
		s.OnDestroy(t)
	}
}

// ToBeDestroyed returns the thread currently parked for deferred
// deletion, or nil. It exists for tests and diagnostics; ordinary
// dispatch logic never needs to inspect it directly.
func (s *Scheduler) ToBeDestroyed() *Thread {
	return s.toBeDestroyed
}

// CheckToBeDestroyed releases the toBeDestroyed slot if occupied.
func (s *Scheduler) CheckToBeDestroyed() {
	if s.toBeDestroyed == nil {
		return
	}
	dead := s.toBeDestroyed
	s.toBeDestroyed = nil
	if s.OnDestroy != nil {
		s.OnDestroy(dead)
	}
}

// Aging implements the aging engine for a single queue. Threads that
// have waited at least the configured threshold have their priority
// bumped; threads whose new priority crosses into a higher band are
// removed and re-admitted through ReadyToRun, which may itself request
// a preemption.
//
// Aging enumerates member identities into a snapshot first, then
// mutates, so in-place removal during the scan cannot invalidate
// iteration.
func (s *Scheduler) Aging(band Band) {
	q := s.queueFor(band)
	members := make([]*Thread, 0, q.len())
	q.each(func(t *Thread) { members = append(members, t) })

	now := s.clock.Ticks()
	for _, t := range members {
		if now-t.ArrivalTime < s.cfg.Aging.WaitThresholdTicks {
			continue
		}
		old := t.Priority
		newPriority := s.clampPriority(old + s.cfg.Aging.Step)
		newBand := s.bandOf(newPriority)
		crossing := newBand != band
		repositioning := !crossing && band == BandL2 && newPriority != old

		// L2 (and, on crossing, L2 or L3) is keyed in the ready queue
		// by the very field Aging is about to change, so the removal
		// must happen while the thread's position still matches its
		// pre-bump priority. Mutating first and removing after would
		// make the B-tree look for a key that was never stored.
		if crossing || repositioning {
			q.remove(t)
		}

		t.Priority = newPriority
		t.ArrivalTime = now
		s.trace.PriorityChanged(now, int64(t.ID), old, newPriority)

		if newPriority == old {
			continue // already at the ceiling; nothing moved
		}

		if crossing {
			s.trace.Removed(now, int64(t.ID), bandNumber(band))
			t.band = BandNone
			s.ReadyToRun(t)
			continue
		}

		if repositioning {
			s.l2.insert(t)
		}
	}
}

// UpdateBurstTime implements the burst estimator: an exponential
// average of the previous prediction and the most recently observed
// slice, with smoothing factor cfg.Burst.Alpha (0.5 by default,
// matching the classic 0.5*(burst+tmp) formula). TmpBurstTime is reset
// to 0 immediately after, so the caller (here, the estimator itself)
// begins accumulating the next slice from zero.
func (s *Scheduler) UpdateBurstTime(t *Thread) {
	now := s.clock.Ticks()
	alpha := s.cfg.Burst.Alpha
	t.BurstTime = alpha*t.BurstTime + (1-alpha)*t.TmpBurstTime
	t.TmpBurstTime = 0
	s.trace.BurstUpdated(now, int64(t.ID), t.BurstTime)
}
