// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"time"

	"github.com/petenewcomb/tpool-go/internal/clock"
	"go.uber.org/zap"
)

// A Timer runs its callback when a due time passes and, if periodic, again
// every period after that.
type Timer struct {
	object
	callback TimerCallback

	// Guarded by timerQueue.mu.
	registered bool
	set        bool
	queued     bool
	deadline   int64
	period     int64
	window     int64
	gen        uint64
}

func NewTimer(callback TimerCallback, userdata any, env *Environment) (*Timer, error) {
	if callback == nil {
		return nil, ErrNilCallback
	}
	t := &Timer{callback: callback}
	if err := t.init(t, userdata, env); err != nil {
		return nil, err
	}
	timerQueue.register(t)
	t.link()
	return t, nil
}

// Set arms the timer to fire at due and then every period, if period is
// positive. A nil due disarms it. A zero due fires immediately; a periodic
// timer then fires again every period from now.
//
// window allows the timer to fire up to that much later than due so that
// timers with nearby due times can be served together.
func (t *Timer) Set(due *Timeout, period, window time.Duration) {
	if t.shutdown.Load() {
		logger().DPanic("timer set after release; ignoring")
		return
	}
	timerQueue.set(t, due, clock.FromDuration(max(period, 0)), clock.FromDuration(max(window, 0)))
}

// IsSet reports whether the most recent call to [Timer.Set] had a non-nil due
// time. A one-shot timer remains set after it fires, unless it was due
// immediately, in which case it is never left set.
func (t *Timer) IsSet() bool {
	timerQueue.mu.Lock()
	defer timerQueue.mu.Unlock()
	return t.set
}

// WaitForCallbacks blocks until no invocation is queued or running. If
// cancelPending is true, queued invocations are discarded first. It does not
// disarm the timer.
func (t *Timer) WaitForCallbacks(cancelPending bool) {
	t.waitForCallbacks(cancelPending)
}

// Release disarms the timer and drops the application's reference.
func (t *Timer) Release() {
	t.releaseByOwner()
}

func (t *Timer) logFields() []zap.Field {
	return []zap.Field{
		zap.Int64("deadline", t.deadline),
		zap.Duration("period", clock.ToDuration(t.period)),
		zap.Duration("window", clock.ToDuration(t.window)),
	}
}
