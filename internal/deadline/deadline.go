// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package deadline provides a queue of entries ordered by deadline, with
// entries that can be re-armed, removed or moved to another queue in
// logarithmic time. Entries with equal deadlines keep the order in which they
// were armed.
package deadline

import (
	"container/heap"
)

// Node is embedded in queue entries to carry their deadline and position.
type Node struct {
	deadline int64
	seq      uint64
	index    int // position+1; zero while not queued
}

func (n *Node) node() *Node {
	return n
}

// Deadline returns the deadline the entry was last armed with.
func (n *Node) Deadline() int64 {
	return n.deadline
}

// Queued reports whether the entry is in a queue.
func (n *Node) Queued() bool {
	return n.index != 0
}

// Entry is implemented by pointers to types that embed [Node].
type Entry interface {
	node() *Node
}

// Queue orders entries by deadline. The zero value is an empty queue. An
// entry belongs to at most one queue at a time.
type Queue[T Entry] struct {
	entries entries[T]
	seq     uint64
}

func (q *Queue[T]) Len() int {
	return len(q.entries)
}

// Arm queues e at deadline d, moving it if it is already queued.
func (q *Queue[T]) Arm(e T, d int64) {
	n := e.node()
	n.deadline = d
	q.seq++
	n.seq = q.seq
	if n.index == 0 {
		heap.Push(&q.entries, e)
	} else {
		heap.Fix(&q.entries, n.index-1)
	}
}

// Remove takes e out of the queue and reports whether it was queued.
func (q *Queue[T]) Remove(e T) bool {
	n := e.node()
	if n.index == 0 {
		return false
	}
	heap.Remove(&q.entries, n.index-1)
	return true
}

// Next returns the earliest deadline in the queue.
func (q *Queue[T]) Next() (int64, bool) {
	if len(q.entries) == 0 {
		return 0, false
	}
	return q.entries[0].node().deadline, true
}

// Expire removes every entry whose deadline is at or before now, calling fn
// for each in deadline order. fn may arm entries again, including in q; an
// entry re-armed at or before now is expired again.
func (q *Queue[T]) Expire(now int64, fn func(T)) {
	for len(q.entries) > 0 && q.entries[0].node().deadline <= now {
		fn(heap.Pop(&q.entries).(T))
	}
}

// Each calls fn for every entry in an unspecified order. fn must not modify
// the queue.
func (q *Queue[T]) Each(fn func(T)) {
	for _, e := range q.entries {
		fn(e)
	}
}

// MoveTo transfers every entry to dst, keeping its deadline, and calls fn for
// each moved entry. q is left empty.
func (q *Queue[T]) MoveTo(dst *Queue[T], fn func(T)) {
	moved := q.entries
	q.entries = nil
	for _, e := range moved {
		n := e.node()
		n.index = 0
		dst.Arm(e, n.deadline)
		if fn != nil {
			fn(e)
		}
	}
}

type entries[T Entry] []T

func (es entries[T]) Len() int {
	return len(es)
}

func (es entries[T]) Less(i, j int) bool {
	a, b := es[i].node(), es[j].node()
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq
}

func (es entries[T]) Swap(i, j int) {
	es[i], es[j] = es[j], es[i]
	es[i].node().index = i + 1
	es[j].node().index = j + 1
}

func (es *entries[T]) Push(x any) {
	e := x.(T)
	e.node().index = len(*es) + 1
	*es = append(*es, e)
}

func (es *entries[T]) Pop() any {
	old := *es
	n := len(old)
	e := old[n-1]
	old[n-1] = *new(T)
	*es = old[:n-1]
	e.node().index = 0
	return e
}
