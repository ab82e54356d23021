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
	"testing"

	"github.com/classos/sched/pkg/sched/clock"
	"github.com/classos/sched/pkg/sched/config"
)

func newTestScheduler() (*Scheduler, *clock.Clock) {
	c := &clock.Clock{}
	return New(c, config.Default(), nil), c
}

// S1 — SJF ordering in L1.
func TestSJFOrderingInL1(t *testing.T) {
	s, _ := newTestScheduler()

	t1 := NewThread(1, "T1", 120, 10)
	t2 := NewThread(2, "T2", 120, 5)
	t3 := NewThread(3, "T3", 120, 5) // same burst as t2, larger id

	s.ReadyToRun(t1)
	s.ReadyToRun(t2)
	s.ReadyToRun(t3)

	if got := s.FindNextToRun(); got != t2 {
		t.Fatalf("1st dispatch = %v, want T2 (shorter burst)", got)
	}
	if got := s.FindNextToRun(); got != t3 {
		t.Fatalf("2nd dispatch = %v, want T3 (tie broken by larger id)", got)
	}
	if got := s.FindNextToRun(); got != t1 {
		t.Fatalf("3rd dispatch = %v, want T1", got)
	}
	if got := s.FindNextToRun(); got != nil {
		t.Fatalf("4th dispatch = %v, want nil", got)
	}
}

// S2 — Preemption on L1 admission.
func TestPreemptionOnL1Admission(t *testing.T) {
	s, c := newTestScheduler()

	r := NewThread(1, "R", 110, 8)
	s.Bootstrap(r)

	c.Set(100)
	incoming := NewThread(2, "T", 110, 3)
	s.ReadyToRun(incoming)

	if !s.ShouldPreempt() {
		t.Fatal("expected ReadyToRun to request preemption for a shorter L1 burst")
	}
	if r.TmpBurstTime != 100 {
		t.Fatalf("R.TmpBurstTime = %v, want 100 (100 - startExeTime 0)", r.TmpBurstTime)
	}

	// The yielding thread's burst accounting must happen before it
	// re-enters a ready queue.
	r.Status = StatusReady
	s.ReadyToRun(r)

	next := s.FindNextToRun()
	if next != incoming {
		t.Fatalf("FindNextToRun() = %v, want the preempting thread", next)
	}
	s.Run(next, false)
	if s.Current() != incoming {
		t.Fatalf("Current() = %v, want the preempting thread selected for execution", s.Current())
	}
}

// S3 — Queue precedence.
func TestQueuePrecedence(t *testing.T) {
	s, _ := newTestScheduler()

	a := NewThread(1, "A", 120, 1)
	b := NewThread(2, "B", 90, 0)
	c := NewThread(3, "C", 10, 0)

	s.ReadyToRun(a)
	s.ReadyToRun(b)
	s.ReadyToRun(c)

	if got := s.FindNextToRun(); got != a {
		t.Fatalf("1st = %v, want A (L1 precedence)", got)
	}
	if got := s.FindNextToRun(); got != b {
		t.Fatalf("2nd = %v, want B (L2 precedence)", got)
	}
	if got := s.FindNextToRun(); got != c {
		t.Fatalf("3rd = %v, want C (L3)", got)
	}
}

// S4 — Aging promotion across bands.
func TestAgingPromotionAcrossBands(t *testing.T) {
	s, c := newTestScheduler()

	x := NewThread(7, "X", 49, 0)
	s.ReadyToRun(x) // arrivalTime = 0, in L3

	c.Set(1500)
	s.Aging(BandL3)

	if x.Priority != 59 {
		t.Fatalf("X.Priority = %d, want 59 after one aging step", x.Priority)
	}
	if x.band != BandL2 {
		t.Fatalf("X.band = %v, want BandL2 after promotion", x.band)
	}
	if !s.l3.empty() {
		t.Fatal("L3 should no longer contain X")
	}
	if s.l2.empty() {
		t.Fatal("L2 should contain the promoted X")
	}
}

// S5 — Burst estimator convergence.
func TestBurstEstimatorConvergence(t *testing.T) {
	s, _ := newTestScheduler()

	th := NewThread(1, "T", 100, 20)
	want := []float64{15, 12.5, 11.25}
	for i, w := range want {
		th.TmpBurstTime = 10
		s.UpdateBurstTime(th)
		if th.BurstTime != w {
			t.Fatalf("iteration %d: BurstTime = %v, want %v", i, th.BurstTime, w)
		}
		if th.TmpBurstTime != 0 {
			t.Fatalf("iteration %d: TmpBurstTime = %v, want 0 after reset", i, th.TmpBurstTime)
		}
	}
}

// S6 — Deferred delete.
func TestDeferredDelete(t *testing.T) {
	s, _ := newTestScheduler()

	e := NewThread(1, "E", 120, 1)
	s.Bootstrap(e)

	f := NewThread(2, "F", 120, 1)
	e.Status = StatusZombie
	s.Run(f, true)

	if s.ToBeDestroyed() != e {
		t.Fatalf("ToBeDestroyed() = %v, want E immediately after Run(_, finishing=true)", s.ToBeDestroyed())
	}

	var destroyed *Thread
	s.OnDestroy = func(th *Thread) { destroyed = th }

	g := NewThread(3, "G", 120, 1)
	s.Run(g, false) // the next dispatch step

	if destroyed != e {
		t.Fatalf("OnDestroy fired with %v, want E", destroyed)
	}
	if s.ToBeDestroyed() != nil {
		t.Fatalf("ToBeDestroyed() = %v, want nil after the next dispatch", s.ToBeDestroyed())
	}

	// A subsequent finishing Run must succeed since the slot is empty.
	g.Status = StatusZombie
	h := NewThread(4, "H", 120, 1)
	s.Run(h, true)
	if s.ToBeDestroyed() != g {
		t.Fatalf("ToBeDestroyed() = %v, want G", s.ToBeDestroyed())
	}
}

// Invariant: L1 order is non-decreasing burst, ties by decreasing id.
func TestInvariantL1Order(t *testing.T) {
	s, _ := newTestScheduler()
	threads := []*Thread{
		NewThread(1, "", 100, 7),
		NewThread(2, "", 100, 3),
		NewThread(3, "", 100, 3),
		NewThread(4, "", 100, 9),
	}
	for _, th := range threads {
		s.ReadyToRun(th)
	}

	var last *Thread
	for {
		th := s.FindNextToRun()
		if th == nil {
			break
		}
		if last != nil {
			if th.BurstTime < last.BurstTime {
				t.Fatalf("L1 order violated: %v before %v", last, th)
			}
			if th.BurstTime == last.BurstTime && th.ID > last.ID {
				t.Fatalf("L1 tie-break violated: %v before %v", last, th)
			}
		}
		last = th
	}
}

// Invariant: UpdateBurstTime is a contraction on [0, M].
func TestInvariantBurstEstimatorContraction(t *testing.T) {
	s, _ := newTestScheduler()
	const m = 100.0
	cases := []struct{ burst, tmp float64 }{
		{0, 0}, {m, m}, {0, m}, {m, 0}, {37.5, 61.2},
	}
	for _, c := range cases {
		th := NewThread(1, "", 100, c.burst)
		th.TmpBurstTime = c.tmp
		s.UpdateBurstTime(th)
		if th.BurstTime < 0 || th.BurstTime > m {
			t.Fatalf("UpdateBurstTime(%v, %v) = %v, want in [0,%v]", c.burst, c.tmp, th.BurstTime, m)
		}
	}
}

// Invariant: aging never decreases priority.
func TestInvariantAgingMonotone(t *testing.T) {
	s, c := newTestScheduler()
	th := NewThread(1, "", 0, 0)
	s.ReadyToRun(th)

	priorities := []int{th.Priority}
	for i := 0; i < 5; i++ {
		c.Advance(1500)
		band := th.band
		if band == BandNone {
			break
		}
		s.Aging(band)
		priorities = append(priorities, th.Priority)
	}
	for i := 1; i < len(priorities); i++ {
		if priorities[i] < priorities[i-1] {
			t.Fatalf("priority decreased: %v", priorities)
		}
	}
}
