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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/classos/sched/pkg/log"
	"github.com/classos/sched/pkg/sched"
	"github.com/classos/sched/pkg/sched/clock"
	"github.com/classos/sched/pkg/sched/config"
	"github.com/classos/sched/pkg/workload"
)

// watchCommand implements subcommands.Command for the "watch" command.
type watchCommand struct {
	workloadPath string
	ticksPerSec  float64
}

// Name implements subcommands.Command.Name.
func (*watchCommand) Name() string { return "watch" }

// Synopsis implements subcommands.Command.Synopsis.
func (*watchCommand) Synopsis() string {
	return "replay a workload with a live terminal view of L1/L2/L3"
}

// Usage implements subcommands.Command.Usage.
func (*watchCommand) Usage() string {
	return "watch --workload <file> [--rate <ticks/sec>]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (w *watchCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&w.workloadPath, "workload", "", "path to a workload JSON file")
	f.Float64Var(&w.ticksPerSec, "rate", 4, "ticks to advance per second")
}

// Execute implements subcommands.Command.Execute.
func (w *watchCommand) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if w.workloadPath == "" {
		fmt.Fprintln(os.Stderr, "schedsim watch: -workload is required")
		return subcommands.ExitUsageError
	}
	cfg := args[0].(config.Config)

	wl, err := workload.Load(w.workloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedsim watch: %v\n", err)
		return subcommands.ExitFailure
	}

	c := &clock.Clock{}
	// The trace lines still matter for debugging, but the point of this
	// command is the live queue view, not the scrolling log; send trace
	// output to the void instead of interleaving it with the animation.
	s := sched.New(c, cfg, log.NewPlainTrace(io.Discard))
	d := workload.NewDriver(wl, s, c)
	d.Pace = rate.NewLimiter(rate.Limit(w.ticksPerSec), 1)

	restore := enterRawMode(os.Stdout.Fd())
	defer restore()

	frames := make(chan sched.QueueSnapshot, 1)
	d.OnTick = func(_ int64, snap sched.QueueSnapshot) {
		select {
		case frames <- snap:
		default:
			// Renderer is behind; drop this frame rather than block the
			// simulation goroutine on a slow terminal.
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return d.Run(gctx, wl)
	})
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)

	g.Go(func() error {
		renderLoop(os.Stdout, frames, winch)
		return nil
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "schedsim watch: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// enterRawMode puts the terminal at fd into raw mode so the view can
// redraw in place instead of scrolling, returning a restore function
// that is always safe to call (including when fd isn't a terminal, in
// which case it is a no-op).
func enterRawMode(fd uintptr) func() {
	if !term.IsTerminal(int(fd)) {
		return func() {}
	}
	state, err := term.MakeRaw(int(fd))
	if err != nil {
		return func() {}
	}
	return func() { term.Restore(int(fd), state) }
}

// renderLoop redraws on every new frame, and also immediately on
// SIGWINCH (terminal resize) by repainting the last frame seen, so the
// view doesn't sit stale at the old width until the next tick arrives.
func renderLoop(w io.Writer, frames <-chan sched.QueueSnapshot, winch <-chan os.Signal) {
	var last sched.QueueSnapshot
	haveFrame := false
	for {
		select {
		case snap, ok := <-frames:
			if !ok {
				return
			}
			last, haveFrame = snap, true
			renderFrame(w, last)
		case <-winch:
			if haveFrame {
				renderFrame(w, last)
			}
		}
	}
}

// renderFrame draws the three-column L1/L2/L3 view, clearing the
// screen first so each tick overwrites the last instead of scrolling.
func renderFrame(w io.Writer, snap sched.QueueSnapshot) {
	fmt.Fprint(w, "\x1b[H\x1b[2J")
	if snap.Current != nil {
		fmt.Fprintf(w, "running: %s\r\n\r\n", snap.Current)
	} else {
		fmt.Fprintf(w, "running: (idle)\r\n\r\n")
	}
	fmt.Fprintf(w, "%-26s %-26s %-26s\r\n", "L1 (SJF)", "L2 (priority)", "L3 (round-robin)")
	fmt.Fprintf(w, "%-26s %-26s %-26s\r\n", strings.Repeat("-", 8), strings.Repeat("-", 13), strings.Repeat("-", 16))
	rows := max3(len(snap.L1), len(snap.L2), len(snap.L3))
	for i := 0; i < rows; i++ {
		fmt.Fprintf(w, "%-26s %-26s %-26s\r\n", cellFor(snap.L1, i), cellFor(snap.L2, i), cellFor(snap.L3, i))
	}
}

func cellFor(threads []sched.Thread, i int) string {
	if i >= len(threads) {
		return ""
	}
	t := threads[i]
	return fmt.Sprintf("#%d %s (b=%.1f)", t.ID, t.Name, t.BurstTime)
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
