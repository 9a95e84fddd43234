// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"time"

	"github.com/petenewcomb/tpool-go/internal/clock"
)

// A Timeout is a due time in 100ns ticks. Negative values are relative to the
// moment the timeout is applied, positive values are absolute ticks since the
// Unix epoch, and zero means immediately. Operations that accept a *Timeout
// treat nil as "never".
type Timeout int64

// Relative returns a timeout d after it is applied.
func Relative(d time.Duration) *Timeout {
	t := Timeout(-clock.FromDuration(d))
	return &t
}

// Absolute returns a timeout due at the wall-clock time t.
func Absolute(t time.Time) *Timeout {
	v := Timeout(clock.FromTime(t))
	return &v
}

// Immediately returns the zero timeout.
func Immediately() *Timeout {
	var t Timeout
	return &t
}

// deadline resolves the timeout against now. Callers handle zero separately.
func (t Timeout) deadline(now int64) int64 {
	if t < 0 {
		return now - int64(t)
	}
	return int64(t)
}
