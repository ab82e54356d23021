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

// Package sched implements the three-level feedback scheduler: an L1
// shortest-job-first queue, an L2 static-priority queue, and an L3
// round-robin queue, with aging and exponentially-smoothed burst
// estimation. See the package-level scheduler.go for the dispatch loop.
package sched

import "fmt"

// ThreadID is a stable identity for a Thread, unique within a Scheduler.
type ThreadID int64

// Status is the lifecycle state of a Thread, mirroring the states a
// classroom kernel's thread control block can be in.
type Status int

const (
	// StatusNew is a thread that has not yet been admitted to a ready queue.
	StatusNew Status = iota
	// StatusReady is a thread sitting in L1, L2, or L3.
	StatusReady
	// StatusRunning is the thread currently owning the CPU.
	StatusRunning
	// StatusBlocked is a thread waiting on an event outside the scheduler's view.
	StatusBlocked
	// StatusZombie is a thread that has finished but not yet been destroyed.
	StatusZombie
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusBlocked:
		return "BLOCKED"
	case StatusZombie:
		return "ZOMBIE"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Band is the priority band a thread's current priority maps to, and
// correspondingly the queue it belongs to while ready.
type Band int

const (
	// BandNone is the band of a thread that is not in any ready queue
	// (new, running, blocked, or zombie).
	BandNone Band = iota
	// BandL1 is the SJF band, priority [100,149] by default.
	BandL1
	// BandL2 is the static-priority band, priority [50,99] by default.
	BandL2
	// BandL3 is the round-robin band, priority [0,49] by default.
	BandL3
)

// String implements fmt.Stringer.
func (b Band) String() string {
	switch b {
	case BandL1:
		return "L1"
	case BandL2:
		return "L2"
	case BandL3:
		return "L3"
	default:
		return "none"
	}
}

// AddressSpace is the opaque per-thread user address-space handle. A
// thread with no user mapping (e.g. a pure kernel thread) leaves this nil.
type AddressSpace interface {
	// SaveState persists address-space state before the owning thread
	// is switched out.
	SaveState()
	// RestoreState reloads address-space state after the owning thread
	// is switched back in.
	RestoreState()
}

// Thread is the external entity the scheduler consumes. Thread creation,
// stack allocation, and the real context switch live outside this
// package; the scheduler only reads and writes the fields below, and
// only while holding the single-threaded, interrupts-disabled
// discipline described on Scheduler.
type Thread struct {
	// ID is a stable integer identity, unique per thread.
	ID ThreadID

	// Name is a human-readable label used only in diagnostics.
	Name string

	// Priority is in [0,149]; it classifies the thread into one of the
	// three bands.
	Priority int

	// BurstTime is the predicted next CPU burst, used only for L1
	// ordering. It is produced by UpdateBurstTime.
	BurstTime float64

	// TmpBurstTime accumulates ticks consumed since the last dispatch
	// while the thread has not yet completed its slice. Reset by
	// UpdateBurstTime.
	TmpBurstTime float64

	// ArrivalTime is the tick at which the thread most recently entered
	// a ready queue; consumed by the aging engine.
	ArrivalTime int64

	// StartExeTime is the tick at which the thread most recently began
	// running.
	StartExeTime int64

	// LastBurstTime is the number of ticks consumed during the last
	// completed dispatch interval.
	LastBurstTime int64

	// Status is the current lifecycle state.
	Status Status

	// Space is the opaque user address-space handle; nil for threads
	// with no user mapping.
	Space AddressSpace

	// SaveUserState and RestoreUserState are the per-thread register
	// save/restore hooks invoked by Run around a context switch, when
	// Space is non-nil. A nil hook is a no-op.
	SaveUserState    func()
	RestoreUserState func()

	// CheckOverflow is the stack-overflow detection hook invoked on a
	// thread as it is switched out. A nil hook is treated as "no
	// overflow detected".
	CheckOverflow func() bool

	// band is the queue this thread currently belongs to, or BandNone
	// if it is not enqueued (new, running, blocked, or a zombie). It
	// lets the scheduler check invariant 1 (exactly one queue
	// membership) in O(1) instead of scanning all three queues.
	band Band
}

// NewThread constructs a Thread in the NEW state with the given identity,
// initial priority, and initial burst-time estimate.
func NewThread(id ThreadID, name string, priority int, initialBurst float64) *Thread {
	return &Thread{
		ID:        id,
		Name:      name,
		Priority:  priority,
		BurstTime: initialBurst,
		Status:    StatusNew,
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread{id=%d name=%q pri=%d burst=%v status=%s}", t.ID, t.Name, t.Priority, t.BurstTime, t.Status)
}

// sjfLess implements the SJF comparator: A precedes B iff A.BurstTime <
// B.BurstTime, or equal burst and A.ID > B.ID (larger id first on ties,
// deliberately).
func sjfLess(a, b *Thread) bool {
	if a.BurstTime != b.BurstTime {
		return a.BurstTime < b.BurstTime
	}
	return a.ID > b.ID
}

// priorityLess implements the Priority comparator: A precedes B iff
// A.Priority > B.Priority, or equal priority and A.ID > B.ID.
func priorityLess(a, b *Thread) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID > b.ID
}
