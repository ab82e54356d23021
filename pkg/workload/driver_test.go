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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/classos/sched/pkg/log"
	"github.com/classos/sched/pkg/sched"
	"github.com/classos/sched/pkg/sched/clock"
	"github.com/classos/sched/pkg/sched/config"
)

func newTestDriver(t *testing.T, w *Workload, trace *bytes.Buffer) *Driver {
	t.Helper()
	c := &clock.Clock{}
	tr := log.NewPlainTrace(trace)
	s := sched.New(c, config.Default(), tr)
	return NewDriver(w, s, c)
}

func TestDriverPreemptionOnArrival(t *testing.T) {
	w := &Workload{
		Threads: []ThreadSpec{
			{ID: 1, Name: "R", Priority: 110, InitialBurst: 8},
			{ID: 2, Name: "T", Priority: 110, InitialBurst: 3},
		},
		Events: []Event{
			{Tick: 0, Type: Arrive, ThreadID: 1},
			{Tick: 100, Type: Arrive, ThreadID: 2},
		},
	}
	var buf bytes.Buffer
	d := newTestDriver(t, w, &buf)

	if err := d.Run(context.Background(), w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.Sched.Current(); got != d.Thread(2) {
		t.Fatalf("Current() = %v, want T (the preempting thread)", got)
	}
	if !strings.Contains(buf.String(), "Thread [1] is replaced") {
		t.Fatalf("trace missing replacement of R:\n%s", buf.String())
	}
}

func TestDriverBlockThenWake(t *testing.T) {
	w := &Workload{
		Threads: []ThreadSpec{
			{ID: 1, Name: "A", Priority: 120, InitialBurst: 5},
			{ID: 2, Name: "B", Priority: 120, InitialBurst: 3},
		},
		Events: []Event{
			{Tick: 0, Type: Arrive, ThreadID: 1},
			{Tick: 10, Type: Block, ThreadID: 1},
			{Tick: 10, Type: Arrive, ThreadID: 2},
			{Tick: 20, Type: Arrive, ThreadID: 1},
			{Tick: 30, Type: Exit, ThreadID: 2},
		},
	}
	var buf bytes.Buffer
	d := newTestDriver(t, w, &buf)

	if err := d.Run(context.Background(), w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.Sched.Current(); got != d.Thread(1) {
		t.Fatalf("Current() = %v, want A after B exits", got)
	}
	if got := d.Sched.ToBeDestroyed(); got != d.Thread(2) {
		t.Fatalf("ToBeDestroyed() = %v, want B immediately after its exit", got)
	}
}

func TestDriverExitWithNoSuccessor(t *testing.T) {
	w := &Workload{
		Threads: []ThreadSpec{
			{ID: 1, Name: "Solo", Priority: 100, InitialBurst: 1},
		},
		Events: []Event{
			{Tick: 0, Type: Arrive, ThreadID: 1},
			{Tick: 5, Type: Exit, ThreadID: 1},
		},
	}
	var buf bytes.Buffer
	d := newTestDriver(t, w, &buf)

	var destroyed *sched.Thread
	d.Sched.OnDestroy = func(th *sched.Thread) { destroyed = th }

	if err := d.Run(context.Background(), w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if destroyed != d.Thread(1) {
		t.Fatalf("OnDestroy fired with %v, want Solo", destroyed)
	}
	if d.Sched.Current() != nil {
		t.Fatalf("Current() = %v, want nil (idle CPU)", d.Sched.Current())
	}
}

func TestWorkloadValidateRejectsUnknownThread(t *testing.T) {
	w := &Workload{
		Threads: []ThreadSpec{{ID: 1, Name: "A", Priority: 100, InitialBurst: 1}},
		Events:  []Event{{Tick: 0, Type: Arrive, ThreadID: 99}},
	}
	if err := w.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for undeclared thread id")
	}
}

func TestWorkloadValidateRejectsUnknownEventType(t *testing.T) {
	w := &Workload{
		Threads: []ThreadSpec{{ID: 1, Name: "A", Priority: 100, InitialBurst: 1}},
		Events:  []Event{{Tick: 0, Type: "detonate", ThreadID: 1}},
	}
	if err := w.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for unknown event type")
	}
}

func TestDecodeParsesThreadsAndEvents(t *testing.T) {
	const doc = `{
		"threads": [{"id":1,"name":"A","priority":120,"initial_burst":10}],
		"events": [{"tick":0,"type":"arrive","thread_id":1},{"tick":50,"type":"exit","thread_id":1}]
	}`
	w, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(w.Threads) != 1 || len(w.Events) != 2 {
		t.Fatalf("got %d threads, %d events; want 1, 2", len(w.Threads), len(w.Events))
	}
	if got := w.lastTick(); got != 50 {
		t.Fatalf("lastTick() = %d, want 50", got)
	}
}
