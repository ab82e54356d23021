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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/subcommands"

	"github.com/classos/sched/pkg/log"
	"github.com/classos/sched/pkg/runlock"
	"github.com/classos/sched/pkg/sched"
	"github.com/classos/sched/pkg/sched/clock"
	"github.com/classos/sched/pkg/sched/config"
	"github.com/classos/sched/pkg/workload"
)

// runCommand implements subcommands.Command for the "run" command.
type runCommand struct {
	workloadPath string
	outDir       string
}

// Name implements subcommands.Command.Name.
func (*runCommand) Name() string { return "run" }

// Synopsis implements subcommands.Command.Synopsis.
func (*runCommand) Synopsis() string {
	return "replay a workload trace through the scheduler core headlessly"
}

// Usage implements subcommands.Command.Usage.
func (*runCommand) Usage() string {
	return "[-config <file>] run --workload <file> --out <dir>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.workloadPath, "workload", "", "path to a workload JSON file")
	f.StringVar(&r.outDir, "out", ".", "directory to write trace.log and stats.json into")
}

// Execute implements subcommands.Command.Execute.
func (r *runCommand) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if r.workloadPath == "" {
		fmt.Fprintln(os.Stderr, "schedsim run: -workload is required")
		return subcommands.ExitUsageError
	}
	cfg := args[0].(config.Config)

	lock, err := runlock.Acquire(ctx, r.outDir, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedsim run: %v\n", err)
		return subcommands.ExitFailure
	}
	defer lock.Unlock()

	w, err := workload.Load(r.workloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedsim run: %v\n", err)
		return subcommands.ExitFailure
	}

	traceFile, err := os.Create(filepath.Join(r.outDir, "trace.log"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedsim run: %v\n", err)
		return subcommands.ExitFailure
	}
	defer traceFile.Close()

	c := &clock.Clock{}
	s := sched.New(c, cfg, log.NewPlainTrace(traceFile))
	d := workload.NewDriver(w, s, c)

	if err := d.Run(ctx, w); err != nil {
		fmt.Fprintf(os.Stderr, "schedsim run: %v\n", err)
		return subcommands.ExitFailure
	}

	statsFile, err := os.Create(filepath.Join(r.outDir, "stats.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedsim run: %v\n", err)
		return subcommands.ExitFailure
	}
	defer statsFile.Close()

	enc := json.NewEncoder(statsFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.Stats()); err != nil {
		fmt.Fprintf(os.Stderr, "schedsim run: writing stats.json: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(os.Stdout, "wrote %s and %s\n",
		filepath.Join(r.outDir, "trace.log"), filepath.Join(r.outDir, "stats.json"))
	return subcommands.ExitSuccess
}
