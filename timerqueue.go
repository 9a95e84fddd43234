// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"cmp"
	"sync"
	"time"

	"github.com/addrummond/heap"
	"github.com/petenewcomb/tpool-go/internal/clock"
	"github.com/petenewcomb/tpool-go/internal/timerp"
)

// timerService is the process-wide timer queue. A single goroutine, started
// when the first timer is allocated, submits timers to their pools as they
// come due and exits after [Config.TimerQueueIdleTimeout] once no timers
// remain.
type timerService struct {
	mu       sync.Mutex
	running  bool
	objcount int
	pending  int
	seq      uint64

	// Entries are invalidated lazily: an entry is live only while its
	// timer is queued and its generation matches the timer's.
	timers heap.Heap[timerEntry, heap.Min]

	update chan struct{}
}

type timerEntry struct {
	deadline int64
	seq      uint64
	timer    *Timer
	gen      uint64
}

func (a *timerEntry) Cmp(b *timerEntry) int {
	if c := cmp.Compare(a.deadline, b.deadline); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

func (e *timerEntry) live() bool {
	return e.timer.queued && e.timer.gen == e.gen
}

var timerQueue = timerService{
	update: make(chan struct{}, 1),
}

func (q *timerService) wake() {
	select {
	case q.update <- struct{}{}:
	default:
	}
}

func (q *timerService) register(t *Timer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		q.running = true
		go q.run()
	}
	t.registered = true
	q.objcount++
}

func (q *timerService) unregister(t *Timer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !t.registered {
		return
	}
	q.dequeueLocked(t)
	t.registered = false
	q.objcount--
	if q.objcount == 0 {
		q.wake()
	}
}

func (q *timerService) enqueueLocked(t *Timer, deadline int64) {
	t.gen++
	t.deadline = deadline
	t.queued = true
	q.pending++
	q.seq++
	heap.PushOrderable(&q.timers, timerEntry{
		deadline: deadline,
		seq:      q.seq,
		timer:    t,
		gen:      t.gen,
	})
}

func (q *timerService) dequeueLocked(t *Timer) {
	if t.queued {
		t.queued = false
		t.gen++
		q.pending--
	}
}

// peekLocked returns the earliest live entry, discarding dead ones.
func (q *timerService) peekLocked() (timerEntry, bool) {
	for {
		e, ok := heap.Peek(&q.timers)
		if !ok || e.live() {
			return e, ok
		}
		_, _ = heap.PopOrderable(&q.timers)
	}
}

func (q *timerService) set(t *Timer, due *Timeout, period, window int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !t.registered {
		return
	}

	now := clock.Now()
	submit := false
	var deadline int64
	if due != nil {
		switch {
		case *due != 0:
			deadline = due.deadline(now)
		case period == 0:
			submit = true
			due = nil
		default:
			deadline = now + period
			submit = true
		}
	}

	// A one-shot timer due immediately is not left set.
	t.set = due != nil
	q.dequeueLocked(t)
	if due != nil {
		t.period = period
		t.window = window
		q.enqueueLocked(t, deadline)
		if head, ok := q.peekLocked(); ok && head.timer == t {
			q.wake()
		}
		logger().Debug("timer set", t.logFields()...)
	}
	if submit {
		t.submit(false)
	}
}

// nextWakeLocked picks when to wake next. Scanning pending timers in due
// order, each timer whose due time falls before the end of every earlier
// timer's window joins the batch; the batch is served at the latest due time
// among its members.
func (q *timerService) nextWakeLocked() (int64, bool) {
	lower, upper := clock.Never, clock.Never
	var scanned []timerEntry
	for {
		e, ok := heap.PopOrderable(&q.timers)
		if !ok {
			break
		}
		if !e.live() {
			continue
		}
		scanned = append(scanned, e)
		if e.deadline >= upper {
			break
		}
		lower = e.deadline
		upper = min(upper, e.deadline+e.timer.window)
	}
	for _, e := range scanned {
		heap.PushOrderable(&q.timers, e)
	}
	return lower, lower != clock.Never
}

// sleep waits for an update or for d to pass and reports whether d passed.
func (q *timerService) sleep(d time.Duration, changed <-chan struct{}) bool {
	t := timerp.Get(d)
	defer timerp.Put(t)
	select {
	case <-q.update:
		return false
	case <-changed:
		return false
	case <-t.C:
		return true
	}
}

func (q *timerService) run() {
	logger().Debug("timer queue started")
	q.mu.Lock()
	for {
		now := clock.Now()
		for {
			e, ok := q.peekLocked()
			if !ok || e.deadline > now {
				break
			}
			_, _ = heap.PopOrderable(&q.timers)
			t := e.timer
			q.dequeueLocked(t)
			t.submit(false)
			if t.period > 0 && t.registered {
				next := e.deadline + t.period
				if next <= now {
					next = now + 1
				}
				q.enqueueLocked(t, next)
			}
		}

		if q.objcount > 0 {
			wakeAt, ok := q.nextWakeLocked()
			q.mu.Unlock()
			if ok {
				q.sleep(clock.Until(wakeAt), nil)
			} else {
				<-q.update
			}
			q.mu.Lock()
			continue
		}

		// No timers are allocated. Linger in case new ones arrive.
		q.mu.Unlock()
		cfg, changed := watchConfig()
		timedOut := q.sleep(cfg.TimerQueueIdleTimeout, changed)
		q.mu.Lock()
		if timedOut && q.objcount == 0 {
			break
		}
	}
	q.running = false
	q.mu.Unlock()
	logger().Debug("timer queue stopped")
}

// TimerQueueStats is a snapshot of the process-wide timer queue.
type TimerQueueStats struct {
	Running bool
	Timers  int
	Pending int
}

func ReadTimerQueueStats() TimerQueueStats {
	q := &timerQueue
	q.mu.Lock()
	defer q.mu.Unlock()
	return TimerQueueStats{
		Running: q.running,
		Timers:  q.objcount,
		Pending: q.pending,
	}
}
