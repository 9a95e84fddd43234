// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"context"
	"sync"
)

// A Handle is a waitable object that a [Wait] can watch.
//
// Ready returns a channel that becomes receivable when the handle is
// signaled. For handles that release a single waiter per signal, such as an
// auto-reset [Event], a [Semaphore] or a [Mutex], a successful receive
// consumes the signal. Ready may return a different channel on each call, so
// callers should call it each time they begin a wait.
type Handle interface {
	Ready() <-chan struct{}
}

// An Event is a waitable boolean. A manual-reset event stays signaled until
// [Event.Reset] and releases every waiter; an auto-reset event releases one
// waiter per [Event.Set] and then resets itself.
type Event struct {
	manual bool

	// Auto-reset events hold a token while signaled.
	token chan struct{}

	// Manual-reset events close the current channel while signaled.
	mu       sync.Mutex
	ch       chan struct{}
	signaled bool
}

func NewEvent(manualReset, initialState bool) *Event {
	e := &Event{manual: manualReset}
	if manualReset {
		e.ch = make(chan struct{})
		if initialState {
			close(e.ch)
			e.signaled = true
		}
	} else {
		e.token = make(chan struct{}, 1)
		if initialState {
			e.token <- struct{}{}
		}
	}
	return e
}

func (e *Event) Set() {
	if !e.manual {
		select {
		case e.token <- struct{}{}:
		default:
		}
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		close(e.ch)
		e.signaled = true
	}
}

func (e *Event) Reset() {
	if !e.manual {
		select {
		case <-e.token:
		default:
		}
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		e.ch = make(chan struct{})
		e.signaled = false
	}
}

// IsSet reports whether the event is signaled without consuming the signal.
func (e *Event) IsSet() bool {
	if !e.manual {
		return len(e.token) > 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

func (e *Event) Ready() <-chan struct{} {
	if !e.manual {
		return e.token
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// Wait blocks until the event is signaled or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// A Semaphore is a counting semaphore whose count never exceeds the maximum
// given to [NewSemaphore]. Receiving from Ready acquires one unit.
type Semaphore struct {
	mu     sync.Mutex
	tokens chan struct{}
}

func NewSemaphore(initial, maximum int) *Semaphore {
	if maximum < 1 {
		panic("semaphore maximum must be positive")
	}
	if initial < 0 || initial > maximum {
		panic("semaphore initial count out of range")
	}
	s := &Semaphore{tokens: make(chan struct{}, maximum)}
	for range initial {
		s.tokens <- struct{}{}
	}
	return s
}

// Release adds n units. It fails without changing the count if that would
// exceed the maximum.
func (s *Semaphore) Release(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || len(s.tokens)+n > cap(s.tokens) {
		return ErrSemaphoreLimit
	}
	for range n {
		s.tokens <- struct{}{}
	}
	return nil
}

func (s *Semaphore) Count() int {
	return len(s.tokens)
}

func (s *Semaphore) Ready() <-chan struct{} {
	return s.tokens
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// A Mutex is a waitable lock. Receiving from Ready acquires it. Ownership is
// not tied to a goroutine; releasing an unheld Mutex fails with [ErrNotOwner].
type Mutex struct {
	token chan struct{}
}

func NewMutex() *Mutex {
	m := &Mutex{token: make(chan struct{}, 1)}
	m.token <- struct{}{}
	return m
}

func (m *Mutex) Lock() {
	<-m.token
}

func (m *Mutex) TryLock() bool {
	select {
	case <-m.token:
		return true
	default:
		return false
	}
}

func (m *Mutex) Release() error {
	select {
	case m.token <- struct{}{}:
		return nil
	default:
		return ErrNotOwner
	}
}

func (m *Mutex) Ready() <-chan struct{} {
	return m.token
}
