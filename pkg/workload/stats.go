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
	"sort"

	"github.com/classos/sched/pkg/sched"
)

// ThreadStats summarizes one thread's dispatch history over a run.
type ThreadStats struct {
	ID                 sched.ThreadID `json:"id"`
	Name               string         `json:"name"`
	Dispatches         int            `json:"dispatches"`
	TicksExecuted      int64          `json:"ticks_executed"`
	FinalPriority      int            `json:"final_priority"`
	FinalBurstEstimate float64        `json:"final_burst_estimate"`
}

// Stats is the JSON-serializable summary cmd/schedsim's "run" command
// writes to stats.json and "stats" reads back.
type Stats struct {
	TotalTicks int64         `json:"total_ticks"`
	Threads    []ThreadStats `json:"threads"`
}

// statsCollector derives dispatch counts and executed-tick totals from
// Scheduler.Switch calls, rather than from parsing trace text: next's
// StartExeTime and old's StartExeTime are both already stamped by Run
// before Switch is invoked, so the executed interval is exactly
// next.StartExeTime - old.StartExeTime, the same arithmetic Run itself
// used for the "Replaced" trace line.
type statsCollector struct {
	byID map[sched.ThreadID]*ThreadStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{byID: make(map[sched.ThreadID]*ThreadStats)}
}

func (c *statsCollector) entry(t *sched.Thread) *ThreadStats {
	e, ok := c.byID[t.ID]
	if !ok {
		e = &ThreadStats{ID: t.ID, Name: t.Name}
		c.byID[t.ID] = e
	}
	return e
}

func (c *statsCollector) onSwitch(old, next *sched.Thread) {
	if old != nil {
		c.entry(old).TicksExecuted += next.StartExeTime - old.StartExeTime
	}
	c.entry(next).Dispatches++
}

// Stats returns the accumulated summary. It may be called mid-run.
func (d *Driver) Stats() *Stats {
	s := &Stats{TotalTicks: d.Clock.Ticks()}
	for _, th := range d.threads {
		e, ok := d.stats.byID[th.ID]
		if !ok {
			e = &ThreadStats{ID: th.ID, Name: th.Name}
		}
		cp := *e
		cp.FinalPriority = th.Priority
		cp.FinalBurstEstimate = th.BurstTime
		s.Threads = append(s.Threads, cp)
	}
	sort.Slice(s.Threads, func(i, j int) bool { return s.Threads[i].ID < s.Threads[j].ID })
	return s
}
