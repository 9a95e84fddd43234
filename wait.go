// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

// A Wait runs its callback when a [Handle] is signaled or a timeout passes,
// whichever happens first. Each call to [Wait.Set] arms it for one firing.
type Wait struct {
	object
	callback WaitCallback

	// Guarded by pool.mu.
	signaled int

	// Guarded by waitQueue.mu.
	bucket  *bucket
	entry   waitEntry
	waiting bool
	handle  Handle
	gen     uint64
}

// NewWait allocates a wait. Besides the errors of [NewWork], it fails with
// [ErrOutOfResources] if every wait bucket is full and no more may be created.
func NewWait(callback WaitCallback, userdata any, env *Environment) (*Wait, error) {
	if callback == nil {
		return nil, ErrNilCallback
	}
	w := &Wait{callback: callback}
	w.entry.wait = w
	if err := w.init(w, userdata, env); err != nil {
		return nil, err
	}
	if err := waitQueue.register(w); err != nil {
		w.unwind()
		return nil, err
	}
	w.link()
	return w, nil
}

// Set arms the wait to fire once when h is signaled, reporting
// [WaitSignaled], or when timeout passes, reporting [WaitTimedOut]. A nil
// timeout never passes. A zero timeout checks h and fires immediately. A nil
// h disarms a wait that has not fired yet without running the callback.
func (w *Wait) Set(h Handle, timeout *Timeout) {
	if w.shutdown.Load() {
		logger().DPanic("wait set after release; ignoring")
		return
	}
	waitQueue.set(w, h, timeout)
}

// WaitForCallbacks blocks until no invocation is queued or running. If
// cancelPending is true, queued invocations are discarded first. It does not
// disarm the wait.
func (w *Wait) WaitForCallbacks(cancelPending bool) {
	w.waitForCallbacks(cancelPending)
}

// Release disarms the wait and drops the application's reference.
func (w *Wait) Release() {
	w.releaseByOwner()
}
