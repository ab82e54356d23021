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

// Package log is a thin façade over github.com/containerd/log so the
// rest of this module never imports logrus directly. It adds the six
// stable scheduler trace lines as typed helpers instead of ad-hoc
// Printf call sites, so the exact phrasing only needs to be gotten
// right once.
package log

import (
	"context"
	"fmt"

	clog "github.com/containerd/log"
)

// Trace emits the stable, test-matched scheduler trace lines at Info
// level. All formatting happens here so call sites can't drift from
// the pinned phrasing.
type Trace struct {
	ctx context.Context
}

// NewTrace returns a Trace that logs through containerd/log's
// context-scoped logger.
func NewTrace(ctx context.Context) *Trace {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Trace{ctx: ctx}
}

func (t *Trace) entry() *clog.Entry {
	return clog.G(t.ctx)
}

// Inserted logs: "Tick [T]: Thread [id] is inserted into queue L[k]"
func (t *Trace) Inserted(tick int64, threadID int64, band int) {
	t.entry().Infof("Tick [%d]: Thread [%d] is inserted into queue L[%d]", tick, threadID, band)
}

// Removed logs: "Tick [T]: Thread [id] is removed from queue L[k]"
func (t *Trace) Removed(tick int64, threadID int64, band int) {
	t.entry().Infof("Tick [%d]: Thread [%d] is removed from queue L[%d]", tick, threadID, band)
}

// Selected logs: "Tick [T]: Thread [id] is now selected for execution"
func (t *Trace) Selected(tick int64, threadID int64) {
	t.entry().Infof("Tick [%d]: Thread [%d] is now selected for execution", tick, threadID)
}

// Replaced logs: "Tick [T]: Thread [id] is replaced, and it has executed [d] ticks"
func (t *Trace) Replaced(tick int64, threadID int64, executedTicks int64) {
	t.entry().Infof("Tick [%d]: Thread [%d] is replaced, and it has executed [%d] ticks", tick, threadID, executedTicks)
}

// PriorityChanged logs: "Tick [T]: Thread [id] changes its priority from [p1] to [p2]"
func (t *Trace) PriorityChanged(tick int64, threadID int64, from, to int) {
	t.entry().Infof("Tick [%d]: Thread [%d] changes its priority from [%d] to [%d]", tick, threadID, from, to)
}

// BurstUpdated logs: "Tick [T]: Thread [id] UpdateBurstTime to [b]"
func (t *Trace) BurstUpdated(tick int64, threadID int64, burst float64) {
	t.entry().Infof("Tick [%d]: Thread [%d] UpdateBurstTime to [%s]", tick, threadID, formatBurst(burst))
}

// formatBurst renders a burst estimate with %g: shortest form, no
// trailing zeros, and exponent notation for magnitudes below 1e-4 or
// at least 1e6.
func formatBurst(b float64) string {
	return fmt.Sprintf("%g", b)
}

// Debugf logs an ambient diagnostic that is not part of the stable
// trace contract: malformed workloads, lock contention, config parse
// errors.
func Debugf(ctx context.Context, format string, args ...any) {
	clog.G(ctx).Debugf(format, args...)
}

// Warnf logs an ambient warning, same caveat as Debugf.
func Warnf(ctx context.Context, format string, args ...any) {
	clog.G(ctx).Warnf(format, args...)
}
