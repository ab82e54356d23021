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

package log

import (
	"context"
	"io"

	clog "github.com/containerd/log"
	"github.com/sirupsen/logrus"
)

// plainFormatter renders only the log message, with no level, time, or
// field decoration, so trace output matches the stable phrasing exactly
// instead of a logrus-prefixed line.
type plainFormatter struct{}

func (plainFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return []byte(e.Message + "\n"), nil
}

// NewPlainTrace returns a Trace whose six stable trace lines are
// written verbatim to w, with no logrus decoration. cmd/schedsim's
// "run" and "watch" commands use it to write trace.log; package
// workload's scenario tests use it to assert on trace output directly.
func NewPlainTrace(w io.Writer) *Trace {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(plainFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	ctx := clog.WithLogger(context.Background(), logrus.NewEntry(logger))
	return NewTrace(ctx)
}
