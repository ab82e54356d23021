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

// Binary schedsim replays a workload trace against the three-level
// feedback scheduler in package sched and reports what the dispatcher
// did: run it headless for a trace log and final statistics, or watch
// it animate tick by tick in a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/classos/sched/pkg/sched/config"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCommand{}, "")
	subcommands.Register(&watchCommand{}, "")
	subcommands.Register(&statsCommand{}, "")
	subcommands.Register(&versionCommand{}, "")

	configPath := flag.String("config", "", "path to a TOML scheduler configuration file; defaults to the built-in band/aging/burst constants")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schedsim: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	os.Exit(int(subcommands.Execute(context.Background(), cfg)))
}
