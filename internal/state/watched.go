// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import "sync/atomic"

// Watched holds a value that is replaced wholesale and lets readers block
// until the next replacement. The zero value holds the zero T.
type Watched[T any] struct {
	current atomic.Pointer[snapshot[T]]
}

type snapshot[T any] struct {
	value   T
	changed chan struct{}
}

// Load returns the current value and a channel that is closed when it is
// next replaced.
func (w *Watched[T]) Load() (T, <-chan struct{}) {
	s := w.current.Load()
	if s == nil {
		s = &snapshot[T]{changed: make(chan struct{})}
		if !w.current.CompareAndSwap(nil, s) {
			s = w.current.Load()
		}
	}
	return s.value, s.changed
}

// Store replaces the value and wakes every reader of the previous one.
func (w *Watched[T]) Store(v T) {
	old := w.current.Swap(&snapshot[T]{
		value:   v,
		changed: make(chan struct{}),
	})
	if old != nil {
		close(old.changed)
	}
}
