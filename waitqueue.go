// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/petenewcomb/tpool-go/internal/clock"
	"github.com/petenewcomb/tpool-go/internal/deadline"
	"github.com/petenewcomb/tpool-go/internal/timerp"
	"go.uber.org/zap"
)

// waitService is the process-wide wait queue. Waits are spread across
// buckets of bounded capacity, each served by one goroutine that blocks on
// all of its armed handles at once.
type waitService struct {
	mu      sync.Mutex
	buckets []*bucket
	nextID  int
}

// A bucket owns up to capacity waits. Waits that are not armed are reserved;
// armed ones are waiting, ordered by deadline.
type bucket struct {
	id       int
	capacity int
	objcount int
	reserved map[*Wait]struct{}
	waiting  deadline.Queue[*waitEntry]
	update   *Event
}

type waitEntry struct {
	deadline.Node
	wait *Wait
}

var waitQueue waitService

func (q *waitService) register(w *Wait) error {
	cfg := config()
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.buckets {
		if b.objcount < b.capacity {
			b.add(w)
			return nil
		}
	}
	if cfg.MaxWaitBuckets > 0 && len(q.buckets) >= cfg.MaxWaitBuckets {
		return fmt.Errorf("%w: all %d wait buckets are full", ErrOutOfResources, len(q.buckets))
	}
	q.nextID++
	b := &bucket{
		id:       q.nextID,
		capacity: cfg.BucketCapacity,
		reserved: make(map[*Wait]struct{}),
		update:   NewEvent(false, false),
	}
	q.buckets = append(q.buckets, b)
	b.add(w)
	go q.serve(b)
	return nil
}

func (q *waitService) unregister(w *Wait) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := w.bucket
	if b == nil {
		return
	}
	b.unlink(w)
	w.bucket = nil
	b.objcount--
	b.update.Set()
}

func (b *bucket) add(w *Wait) {
	b.objcount++
	w.bucket = b
	b.reserved[w] = struct{}{}
}

// unlink removes w from whichever of the bucket's collections holds it.
func (b *bucket) unlink(w *Wait) {
	if w.waiting {
		b.waiting.Remove(&w.entry)
		w.waiting = false
	} else {
		delete(b.reserved, w)
	}
}

func (b *bucket) reserve(w *Wait) {
	w.waiting = false
	b.reserved[w] = struct{}{}
}

func poll(h Handle) bool {
	select {
	case <-h.Ready():
		return true
	default:
		return false
	}
}

func (q *waitService) set(w *Wait, h Handle, timeout *Timeout) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := w.bucket
	if b == nil {
		return
	}
	w.handle = h
	w.gen++
	if h == nil && !w.waiting {
		return
	}
	b.unlink(w)

	if h != nil && timeout != nil && *timeout == 0 {
		b.reserve(w)
		b.update.Set()
		w.submit(poll(h))
		return
	}

	if h != nil {
		due := clock.Never
		if timeout != nil {
			due = timeout.deadline(clock.Now())
		}
		w.waiting = true
		b.waiting.Arm(&w.entry, due)
	} else {
		b.reserve(w)
	}
	b.update.Set()
}

func recvCase[T any](ch <-chan T) reflect.SelectCase {
	return reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
}

func (q *waitService) serve(b *bucket) {
	log := logger().With(zap.Int("bucket", b.id))
	log.Debug("wait bucket started")

	var (
		round []*Wait
		gens  []uint64
		cases []reflect.SelectCase
	)

	q.mu.Lock()
	for {
		// Fire waits whose deadline has passed, unless their handle was
		// signaled in the meantime.
		b.waiting.Expire(clock.Now(), func(e *waitEntry) {
			w := e.wait
			b.reserve(w)
			w.submit(poll(w.handle))
		})

		if b.objcount == 0 {
			q.mu.Unlock()
			cfg, changed := watchConfig()
			timedOut := b.idle(cfg.BucketIdleTimeout, changed)
			q.mu.Lock()
			if timedOut && b.objcount == 0 {
				break
			}
			continue
		}

		round, gens, cases = round[:0], gens[:0], cases[:0]
		b.waiting.Each(func(e *waitEntry) {
			w := e.wait
			w.refs.Acquire()
			round = append(round, w)
			gens = append(gens, w.gen)
			cases = append(cases, recvCase(w.handle.Ready()))
		})
		cases = append(cases, recvCase(b.update.Ready()))
		var timer *time.Timer
		if due, ok := b.waiting.Next(); ok && due != clock.Never {
			timer = timerp.Get(clock.Until(due))
			cases = append(cases, recvCase(timer.C))
		}

		q.mu.Unlock()
		chosen, _, _ := reflect.Select(cases)
		if timer != nil {
			timerp.Put(timer)
		}
		q.mu.Lock()

		if chosen < len(round) {
			w := round[chosen]
			if w.bucket == b && w.waiting && w.gen == gens[chosen] {
				b.waiting.Remove(&w.entry)
				b.reserve(w)
				w.submit(true)
			} else {
				log.Debug("handle signaled for a wait that was re-armed or released")
			}
		}

		q.mu.Unlock()
		for _, w := range round {
			w.release()
		}
		clear(round)
		q.mu.Lock()

		q.mergeLocked(b)
	}

	if i := slices.Index(q.buckets, b); i >= 0 {
		q.buckets = slices.Delete(q.buckets, i, i+1)
	}
	q.mu.Unlock()
	log.Debug("wait bucket stopped")
}

// idle waits for an update, a configuration change or for d to pass and
// reports whether d passed.
func (b *bucket) idle(d time.Duration, changed <-chan struct{}) bool {
	t := timerp.Get(d)
	defer timerp.Put(t)
	select {
	case <-b.update.Ready():
		return false
	case <-changed:
		return false
	case <-t.C:
		return true
	}
}

// mergeLocked moves every wait of a lightly loaded bucket into another
// non-empty bucket with room for them all. The emptied bucket goes to the end
// of the list so that new waits fill other buckets first, letting it exit.
func (q *waitService) mergeLocked(b *bucket) {
	if len(q.buckets) < 2 || b.objcount == 0 || b.objcount*2 >= b.capacity {
		return
	}
	for _, other := range q.buckets {
		if other == b || other.objcount == 0 || other.objcount+b.objcount > other.capacity {
			continue
		}
		for w := range b.reserved {
			w.bucket = other
			other.reserved[w] = struct{}{}
		}
		clear(b.reserved)
		b.waiting.MoveTo(&other.waiting, func(e *waitEntry) {
			e.wait.bucket = other
		})
		moved := b.objcount
		other.objcount += moved
		b.objcount = 0

		if i := slices.Index(q.buckets, b); i >= 0 {
			q.buckets = append(slices.Delete(q.buckets, i, i+1), b)
		}
		other.update.Set()
		logger().Debug("merged wait buckets",
			zap.Int("from", b.id),
			zap.Int("into", other.id),
			zap.Int("waits", moved))
		return
	}
}

// BucketStats describes one wait bucket.
type BucketStats struct {
	ID       int
	Capacity int
	Waits    int
	Armed    int
}

// WaitQueueStats is a snapshot of the process-wide wait queue.
type WaitQueueStats struct {
	Buckets []BucketStats
}

// Waits returns the number of waits across all buckets.
func (s WaitQueueStats) Waits() int {
	n := 0
	for _, b := range s.Buckets {
		n += b.Waits
	}
	return n
}

func ReadWaitQueueStats() WaitQueueStats {
	q := &waitQueue
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := WaitQueueStats{Buckets: make([]BucketStats, 0, len(q.buckets))}
	for _, b := range q.buckets {
		stats.Buckets = append(stats.Buckets, BucketStats{
			ID:       b.id,
			Capacity: b.capacity,
			Waits:    b.objcount,
			Armed:    b.waiting.Len(),
		})
	}
	return stats
}
