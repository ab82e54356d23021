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

package sched

import (
	"container/list"

	"github.com/google/btree"
)

// sortedQueue is the ordered-collection abstraction used for L1 and L2:
// a single generic container parameterized by a comparator, per the
// "heterogeneous queues" design note. It is backed by a B-tree so
// insert, remove, and comparator-minimum are all O(log n) regardless of
// which comparator is plugged in, rather than hand-rolling a sorted
// slice per discipline.
type sortedQueue struct {
	tree *btree.BTree
	less func(a, b *Thread) bool
}

func newSortedQueue(less func(a, b *Thread) bool) *sortedQueue {
	return &sortedQueue{
		tree: btree.New(32),
		less: less,
	}
}

// queueItem adapts a *Thread to btree.Item using the queue's comparator.
type queueItem struct {
	t    *Thread
	less func(a, b *Thread) bool
}

func (i queueItem) Less(than btree.Item) bool {
	return i.less(i.t, than.(queueItem).t)
}

func (q *sortedQueue) item(t *Thread) queueItem {
	return queueItem{t: t, less: q.less}
}

// insert adds t, maintaining sort order. t must not already be a member.
func (q *sortedQueue) insert(t *Thread) {
	q.tree.ReplaceOrInsert(q.item(t))
}

// remove removes t. It is a no-op if t is not a member.
func (q *sortedQueue) remove(t *Thread) {
	q.tree.Delete(q.item(t))
}

// removeFront removes and returns the comparator-minimum element, or nil
// if the queue is empty.
func (q *sortedQueue) removeFront() *Thread {
	min := q.tree.Min()
	if min == nil {
		return nil
	}
	t := min.(queueItem).t
	q.tree.Delete(min)
	return t
}

func (q *sortedQueue) empty() bool {
	return q.tree.Len() == 0
}

func (q *sortedQueue) len() int {
	return q.tree.Len()
}

// each calls fn for every member, in comparator order. fn must not
// mutate the queue; callers that need to remove-while-iterating should
// snapshot first (see Scheduler.Aging).
func (q *sortedQueue) each(fn func(*Thread)) {
	q.tree.Ascend(func(i btree.Item) bool {
		fn(i.(queueItem).t)
		return true
	})
}

// fifoQueue is L3: strictly insertion-ordered, append at the tail,
// remove at the head, but still supporting arbitrary-member removal for
// aging-driven migration.
type fifoQueue struct {
	l       *list.List
	members map[ThreadID]*list.Element
}

func newFIFOQueue() *fifoQueue {
	return &fifoQueue{
		l:       list.New(),
		members: make(map[ThreadID]*list.Element),
	}
}

func (q *fifoQueue) insert(t *Thread) {
	e := q.l.PushBack(t)
	q.members[t.ID] = e
}

func (q *fifoQueue) remove(t *Thread) {
	e, ok := q.members[t.ID]
	if !ok {
		return
	}
	q.l.Remove(e)
	delete(q.members, t.ID)
}

func (q *fifoQueue) removeFront() *Thread {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	t := e.Value.(*Thread)
	delete(q.members, t.ID)
	return t
}

func (q *fifoQueue) empty() bool {
	return q.l.Len() == 0
}

func (q *fifoQueue) len() int {
	return q.l.Len()
}

func (q *fifoQueue) each(fn func(*Thread)) {
	for e := q.l.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*Thread))
	}
}
