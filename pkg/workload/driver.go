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

package workload

import (
	"context"
	"fmt"

	"github.com/classos/sched/pkg/sched"
	"github.com/classos/sched/pkg/sched/clock"
	"golang.org/x/time/rate"
)

// bands lists the three priority bands in dispatch precedence order;
// Driver ages all of them on every tick, matching the periodic,
// once-per-timer-tick cadence the aging engine expects.
var bands = [3]sched.Band{sched.BandL1, sched.BandL2, sched.BandL3}

// Driver replays a Workload's events against a Scheduler, tick by tick.
// It is the bridge between an externally-authored trace file and the
// scheduler core's imperative API: every event is translated into the
// exact sequence of ReadyToRun/FindNextToRun/Run/UpdateBurstTime calls
// that stimulus requires.
type Driver struct {
	Sched *sched.Scheduler
	Clock *clock.Clock

	// Pace, if non-nil, is waited on before advancing each tick, turning
	// an otherwise instantaneous replay into a real-time-paced one. This
	// is how cmd/schedsim's "watch" subcommand drives a human-legible
	// animation instead of a batch run.
	Pace *rate.Limiter

	// OnTick, if non-nil, is called once per tick after that tick's
	// events and dispatch have been processed, with a deep-copied
	// snapshot of the ready queues. cmd/schedsim's "watch" command uses
	// this to hand a terminal-rendering goroutine something to read
	// that is disconnected from the live scheduler state.
	OnTick func(tick int64, snap sched.QueueSnapshot)

	threads map[sched.ThreadID]*sched.Thread
	stats   *statsCollector
}

// NewDriver constructs a Driver over w's thread population, bound to s
// and c. c must be the same clock s was constructed with. It chains
// onto any Switch hook already set on s rather than replacing it, so
// dispatch statistics are always collected regardless of what else
// observes switches.
func NewDriver(w *Workload, s *sched.Scheduler, c *clock.Clock) *Driver {
	threads := make(map[sched.ThreadID]*sched.Thread, len(w.Threads))
	for _, ts := range w.Threads {
		threads[ts.ID] = sched.NewThread(ts.ID, ts.Name, ts.Priority, ts.InitialBurst)
	}
	d := &Driver{Sched: s, Clock: c, threads: threads, stats: newStatsCollector()}

	prev := s.Switch
	s.Switch = func(old, next *sched.Thread) {
		d.stats.onSwitch(old, next)
		if prev != nil {
			prev(old, next)
		}
	}
	return d
}

// Thread returns the live Thread for a declared thread id, or nil.
func (d *Driver) Thread(id sched.ThreadID) *sched.Thread {
	return d.threads[id]
}

// Run replays w's timeline to completion. Every thread, the first one
// included, reaches the CPU through the normal ReadyToRun/FindNextToRun/
// Run path; whenever the CPU is idle at the end of a tick, the next
// ready thread is dispatched.
func (d *Driver) Run(ctx context.Context, w *Workload) error {
	evs := w.sortedEvents()
	last := w.lastTick()

	idx := 0
	for tick := int64(0); tick <= last; tick++ {
		if d.Pace != nil {
			if err := d.Pace.Wait(ctx); err != nil {
				return fmt.Errorf("workload: pacing: %w", err)
			}
		}
		d.Clock.Set(tick)

		for _, b := range bands {
			d.Sched.Aging(b)
		}
		d.preemptIfRequested()

		for idx < len(evs) && evs[idx].Tick == tick {
			if err := d.apply(evs[idx]); err != nil {
				return fmt.Errorf("workload: tick %d: %w", tick, err)
			}
			idx++
		}

		if d.Sched.Current() == nil {
			if next := d.Sched.FindNextToRun(); next != nil {
				d.Sched.Run(next, false)
			}
		}

		if d.OnTick != nil {
			d.OnTick(tick, d.Sched.Snapshot())
		}
	}
	return nil
}

func (d *Driver) apply(ev Event) error {
	th := d.threads[ev.ThreadID]
	if th == nil {
		return fmt.Errorf("event for undeclared thread %d", ev.ThreadID)
	}

	switch ev.Type {
	case Arrive:
		return d.applyArrive(th)
	case Yield:
		return d.applyYield(th)
	case Block:
		return d.applyBlock(th)
	case Exit:
		return d.applyExit(th)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// applyArrive admits th to a ready queue. If its admission preempts the
// running thread, the outgoing thread's burst estimate is folded in
// before it re-joins a ready queue and the CPU is redispatched to th.
func (d *Driver) applyArrive(th *sched.Thread) error {
	if th.Status == sched.StatusRunning || th.Status == sched.StatusReady {
		return fmt.Errorf("thread %d: arrive event but thread is already %s", th.ID, th.Status)
	}
	d.Sched.ReadyToRun(th)
	d.preemptIfRequested()
	return nil
}

// preemptIfRequested requeues the running thread and redispatches if the
// most recent ReadyToRun asked for a preemption. It must be checked
// after every ReadyToRun call that could admit into L1 — both the
// direct admission in applyArrive and the band-crossing re-admission
// Aging performs each tick — since ReadyToRun only records the request
// and leaves acting on it to the caller.
func (d *Driver) preemptIfRequested() {
	if !d.Sched.ShouldPreempt() {
		return
	}
	// ReadyToRun already folded the consumed slice into cur.TmpBurstTime
	// when it set the preemption flag; UpdateBurstTime just blends it in.
	cur := d.Sched.Current()
	d.Sched.UpdateBurstTime(cur)
	cur.Status = sched.StatusReady
	d.Sched.ReadyToRun(cur)
	next := d.Sched.FindNextToRun()
	d.Sched.Run(next, false)
}

// applyYield takes th, which must be the running thread, off the CPU
// and back into a ready queue.
func (d *Driver) applyYield(th *sched.Thread) error {
	if d.Sched.Current() != th {
		return fmt.Errorf("thread %d: yield event but it is not the running thread", th.ID)
	}
	th.TmpBurstTime += float64(d.Clock.Ticks() - th.StartExeTime)
	d.Sched.UpdateBurstTime(th)
	th.Status = sched.StatusReady
	d.Sched.Idle()
	d.Sched.ReadyToRun(th)
	if next := d.Sched.FindNextToRun(); next != nil {
		d.Sched.Run(next, false)
	}
	return nil
}

// applyBlock takes th, which must be the running thread, off the CPU to
// wait on some event outside the scheduler's view. It does not re-enter
// any ready queue until a later Arrive names it again.
func (d *Driver) applyBlock(th *sched.Thread) error {
	if d.Sched.Current() != th {
		return fmt.Errorf("thread %d: block event but it is not the running thread", th.ID)
	}
	th.TmpBurstTime += float64(d.Clock.Ticks() - th.StartExeTime)
	d.Sched.UpdateBurstTime(th)
	th.Status = sched.StatusBlocked
	d.Sched.Idle()
	if next := d.Sched.FindNextToRun(); next != nil {
		d.Sched.Run(next, false)
	}
	return nil
}

// applyExit retires th, which must be the running thread, through the
// deferred-delete protocol. Its burst estimate is still folded in on the
// way out, for consistency and for any stats/trace consumer that reads
// BurstTime after the fact, even though a zombie thread never competes
// for L1 again.
func (d *Driver) applyExit(th *sched.Thread) error {
	if d.Sched.Current() != th {
		return fmt.Errorf("thread %d: exit event but it is not the running thread", th.ID)
	}
	th.TmpBurstTime += float64(d.Clock.Ticks() - th.StartExeTime)
	d.Sched.UpdateBurstTime(th)
	th.Status = sched.StatusZombie
	if next := d.Sched.FindNextToRun(); next != nil {
		d.Sched.Run(next, true)
		return nil
	}
	// No other thread is runnable; there is no successor to hand the CPU
	// to, so the usual one-dispatch delay has nothing to wait for.
	d.Sched.Finish(th)
	return nil
}
