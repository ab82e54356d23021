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
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/classos/sched/pkg/workload"
)

// statsCommand implements subcommands.Command for the "stats" command.
type statsCommand struct {
	outDir string
}

// Name implements subcommands.Command.Name.
func (*statsCommand) Name() string { return "stats" }

// Synopsis implements subcommands.Command.Synopsis.
func (*statsCommand) Synopsis() string {
	return "print summary counters from a previous run's stats.json"
}

// Usage implements subcommands.Command.Usage.
func (*statsCommand) Usage() string {
	return "stats --out <dir>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *statsCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outDir, "out", ".", "directory a previous run wrote stats.json into")
}

// Execute implements subcommands.Command.Execute.
func (c *statsCommand) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	path := filepath.Join(c.outDir, "stats.json")
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedsim stats: %v\n", err)
		return subcommands.ExitFailure
	}
	defer f.Close()

	var st workload.Stats
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		fmt.Fprintf(os.Stderr, "schedsim stats: decoding %s: %v\n", path, err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(os.Stdout, "total ticks: %d\n\n", st.TotalTicks)
	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDISPATCHES\tTICKS EXECUTED\tFINAL PRIORITY\tFINAL BURST")
	for _, th := range st.Threads {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%.2f\n",
			th.ID, th.Name, th.Dispatches, th.TicksExecuted, th.FinalPriority, th.FinalBurstEstimate)
	}
	tw.Flush()
	return subcommands.ExitSuccess
}
