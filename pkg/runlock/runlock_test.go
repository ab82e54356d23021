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

package runlock

import (
	"context"
	"testing"
	"time"
)

func TestAcquireAndUnlock(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(context.Background(), dir, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestAcquireContendedTimesOut(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(context.Background(), dir, time.Second)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Unlock()

	_, err = Acquire(context.Background(), dir, 200*time.Millisecond)
	if err == nil {
		t.Fatal("second Acquire = nil, want error since the directory is already locked")
	}
}

func TestUnlockOnNilIsNoOp(t *testing.T) {
	var l *Lock
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock on nil Lock: %v", err)
	}
}
