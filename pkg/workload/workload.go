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

// Package workload ingests a JSON description of threads and the
// external events that arrive for them (new admission, wake-from-block,
// voluntary yield, block, exit), and drives package sched's Scheduler
// through those events tick by tick. It plays the same role for this
// simulator that a recorded syscall trace plays for runsc: an
// independently-authored input that exercises the core without the
// caller hand-writing Go for every scenario.
package workload

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/classos/sched/pkg/sched"
)

// EventType names the external stimulus an Event represents.
type EventType string

const (
	// Arrive admits a thread to a ready queue: either a brand-new
	// thread's first admission, or a previously blocked thread waking up.
	Arrive EventType = "arrive"
	// Yield voluntarily relinquishes the CPU; the thread must be the one
	// currently running, and it re-enters a ready queue.
	Yield EventType = "yield"
	// Block takes the currently running thread off the CPU to wait on
	// some event the scheduler itself has no visibility into.
	Block EventType = "block"
	// Exit retires the currently running thread for good.
	Exit EventType = "exit"
)

// ThreadSpec describes one thread's static identity and initial state.
type ThreadSpec struct {
	ID           sched.ThreadID `json:"id"`
	Name         string         `json:"name"`
	Priority     int            `json:"priority"`
	InitialBurst float64        `json:"initial_burst"`
}

// Event is one entry in a workload's timeline.
type Event struct {
	Tick     int64          `json:"tick"`
	Type     EventType      `json:"type"`
	ThreadID sched.ThreadID `json:"thread_id"`
}

// Workload is the full JSON document: the thread population plus the
// timeline of events to play against them.
type Workload struct {
	Threads []ThreadSpec `json:"threads"`
	Events  []Event      `json:"events"`
}

// Load decodes a workload document from path.
func Load(path string) (*Workload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workload: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a workload document from r.
func Decode(r io.Reader) (*Workload, error) {
	var w Workload
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("workload: decode: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}
	return &w, nil
}

// Validate checks internal consistency: every event names a declared
// thread, and the timeline is processable (ticks need not be sorted in
// the file; Validate does not require it).
func (w *Workload) Validate() error {
	ids := make(map[sched.ThreadID]bool, len(w.Threads))
	for _, ts := range w.Threads {
		if ids[ts.ID] {
			return fmt.Errorf("duplicate thread id %d", ts.ID)
		}
		ids[ts.ID] = true
	}
	for i, ev := range w.Events {
		if !ids[ev.ThreadID] {
			return fmt.Errorf("event %d: thread id %d is not declared", i, ev.ThreadID)
		}
		switch ev.Type {
		case Arrive, Yield, Block, Exit:
		default:
			return fmt.Errorf("event %d: unknown event type %q", i, ev.Type)
		}
		if ev.Tick < 0 {
			return fmt.Errorf("event %d: negative tick %d", i, ev.Tick)
		}
	}
	return nil
}

// sortedEvents returns w.Events grouped by tick, in ascending tick
// order, preserving each tick's original relative order (so a workload
// author controls same-tick sequencing, e.g. a block before an arrive).
func (w *Workload) sortedEvents() []Event {
	evs := make([]Event, len(w.Events))
	copy(evs, w.Events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Tick < evs[j].Tick })
	return evs
}

// lastTick returns the highest tick any event occurs at, or -1 if the
// workload has no events.
func (w *Workload) lastTick() int64 {
	last := int64(-1)
	for _, ev := range w.Events {
		if ev.Tick > last {
			last = ev.Tick
		}
	}
	return last
}
