// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package clock measures time in 100ns ticks since the Unix epoch.
//
// Readings are anchored to a wall-clock sample taken at startup and advanced
// using the monotonic clock, so they never move backwards when the system
// clock is adjusted.
package clock

import "time"

const (
	TicksPerMillisecond = int64(time.Millisecond / 100)
	TicksPerSecond      = int64(time.Second / 100)

	// Never is a deadline later than any reachable tick value.
	Never = int64(^uint64(0) >> 1)
)

var (
	anchor      = time.Now()
	anchorTicks = anchor.UnixNano() / 100
)

// Now returns the current time in ticks.
func Now() int64 {
	return anchorTicks + int64(time.Since(anchor)/100)
}

func FromTime(t time.Time) int64 {
	return t.UnixNano() / 100
}

func FromDuration(d time.Duration) int64 {
	return int64(d / 100)
}

func ToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * 100
}

// Until returns the time remaining before the given deadline, or zero if it
// has already passed.
func Until(deadline int64) time.Duration {
	d := deadline - Now()
	if d <= 0 {
		return 0
	}
	if d > int64(time.Duration(1<<62)/100) {
		return time.Duration(1 << 62)
	}
	return ToDuration(d)
}
