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

// Package runlock serializes access to a simulation's run directory (the
// trace.log and stats.json files a schedsim run writes) so two invocations of cmd/schedsim against the same directory
// don't interleave writes. It plays the role runsc's container run
// directory lock plays for sandboxes: one advisory flock per directory,
// acquired with a short bounded retry rather than failing immediately.
package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
)

const lockFileName = ".schedsim.lock"

// Lock is a held advisory lock on a run directory. Release it with Unlock.
type Lock struct {
	f *flock.Flock
}

// Acquire takes an exclusive lock on dir, retrying for up to timeout if
// another process already holds it. dir is created if it does not exist.
func Acquire(ctx context.Context, dir string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("runlock: create %s: %w", dir, err)
	}
	f := flock.New(filepath.Join(dir, lockFileName))

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	b := backoff.WithContext(backoff.NewConstantBackOff(50*time.Millisecond), cctx)

	op := func() error {
		ok, err := f.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("runlock: %s: %w", dir, err))
		}
		if !ok {
			return fmt.Errorf("runlock: %s: held by another process", dir)
		}
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Unlock releases the lock. Subsequent calls are a no-op.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Unlock()
}
