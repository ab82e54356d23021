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

// Package clock implements the tick-counter collaborator, analogous to
// kernel.stats.totalTicks in a real kernel: a monotonic, non-decreasing
// integer tick count driven by the surrounding simulation, never by
// wall time.
package clock

import "sync/atomic"

// Clock is the tick source the scheduler core reads from. It is
// intentionally not a time.Time wrapper: ticks are logical units
// advanced by a workload driver, not real seconds.
type Clock struct {
	ticks int64
}

// Ticks returns the current tick count.
func (c *Clock) Ticks() int64 {
	return atomic.LoadInt64(&c.ticks)
}

// Advance moves the clock forward by n ticks (n must be >= 0) and
// returns the new tick count.
func (c *Clock) Advance(n int64) int64 {
	if n < 0 {
		panic("clock: Advance called with negative n")
	}
	return atomic.AddInt64(&c.ticks, n)
}

// Set forces the clock to an absolute tick value. It exists for test
// setup and for replaying workload traces that carry their own
// timestamps; it must never be used to move the clock backwards.
func (c *Clock) Set(tick int64) {
	if tick < c.Ticks() {
		panic("clock: Set called with a tick in the past")
	}
	atomic.StoreInt64(&c.ticks, tick)
}
