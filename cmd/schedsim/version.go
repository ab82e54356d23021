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
	"os"

	"github.com/google/subcommands"
)

// version is overridden at link time via -ldflags "-X main.version=...".
var version = "dev"

// versionCommand implements subcommands.Command for the "version" command.
type versionCommand struct{}

// Name implements subcommands.Command.Name.
func (*versionCommand) Name() string { return "version" }

// Synopsis implements subcommands.Command.Synopsis.
func (*versionCommand) Synopsis() string { return "print the schedsim version" }

// Usage implements subcommands.Command.Usage.
func (*versionCommand) Usage() string { return "version\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (*versionCommand) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*versionCommand) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stdout, "schedsim version %s\n", version)
	return subcommands.ExitSuccess
}
