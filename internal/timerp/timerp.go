// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package timerp pools [time.Timer] values used for bounded waits.
package timerp

import (
	"sync"
	"time"
)

// This implementation relies on [Go 1.23+ behavior]: Stop and Reset discard
// any value left in the channel, so a recycled timer never delivers a stale
// expiry.
//
// [Go 1.23+ behavior]: https://pkg.go.dev/time#NewTimer

var pool = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t
	},
}

// Get returns a timer that fires once after d.
func Get(d time.Duration) *time.Timer {
	t := pool.Get().(*time.Timer)
	t.Reset(d)
	return t
}

// Put stops t and returns it to the pool.
func Put(t *time.Timer) {
	t.Stop()
	pool.Put(t)
}
