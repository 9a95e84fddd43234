// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package waitq provides a FIFO of parked goroutines that can be woken one at
// a time, in the manner of a condition variable that supports timeouts.
//
// A Queue is not safe for concurrent use on its own. All methods, including
// those on [Waiter] except [Waiter.Done], must be called while holding the
// lock that guards the state being waited on.
package waitq

import "github.com/gammazero/deque"

type Queue struct {
	waiters deque.Deque[*Waiter]
}

// A Waiter has the following lifecycle:
//
// 1. [Queue.Add] returns a waiter with an empty notification channel of buffer
// length one that has been appended to the queue.
//
// 2a. [Queue.Notify] removes the waiter from the queue and fills the buffer.
//
// 3a. The owner receives from [Waiter.Done], then calls [Waiter.Close], which
// has nothing left to do.
//
// 3b. The owner stopped waiting for another reason (typically a timeout)
// without receiving the notification. [Waiter.Close] passes the notification
// on to the next waiter in the queue so that it is not lost.
//
// 2b. The owner stopped waiting before being notified. [Waiter.Close] removes
// the waiter from the queue.
type Waiter struct {
	q          *Queue
	notifyChan chan struct{}
	notified   bool
}

func (q *Queue) Len() int {
	return q.waiters.Len()
}

func (q *Queue) Add() *Waiter {
	w := &Waiter{
		q:          q,
		notifyChan: make(chan struct{}, 1),
	}
	q.waiters.PushBack(w)
	return w
}

// Notify wakes the longest-waiting waiter, if any, and reports whether one was
// woken.
func (q *Queue) Notify() bool {
	if q.waiters.Len() == 0 {
		return false
	}
	w := q.waiters.PopFront()
	w.notified = true
	w.notifyChan <- struct{}{}
	return true
}

// NotifyAll wakes every waiter currently in the queue.
func (q *Queue) NotifyAll() {
	for q.Notify() {
	}
}

// Done may be called without holding the lock.
func (w *Waiter) Done() <-chan struct{} {
	return w.notifyChan
}

// Close ends the wait. It reports whether the waiter had been notified,
// whether or not the notification was received from [Waiter.Done].
func (w *Waiter) Close() bool {
	if !w.notified {
		if i := w.q.waiters.Index(func(x *Waiter) bool { return x == w }); i >= 0 {
			w.q.waiters.Remove(i)
		}
		return false
	}
	select {
	case <-w.notifyChan:
		// Notified but the owner gave up first; hand the wakeup on.
		w.q.Notify()
	default:
	}
	return true
}
