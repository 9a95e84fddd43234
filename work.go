// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

// A Work object runs its callback once per call to [Work.Post]. Posts made
// while earlier ones are still queued are counted, not queued separately, so
// the callback runs exactly once per post but the invocations of one Work may
// interleave with those of other objects in any order.
type Work struct {
	object
	callback WorkCallback
}

// NewWork allocates a work object. It fails with [ErrPoolShutdown] if the
// environment's pool has been released and with [ErrOutOfResources] if no
// worker can be started for it.
func NewWork(callback WorkCallback, userdata any, env *Environment) (*Work, error) {
	if callback == nil {
		return nil, ErrNilCallback
	}
	w := &Work{callback: callback}
	if err := w.init(w, userdata, env); err != nil {
		return nil, err
	}
	w.link()
	return w, nil
}

// Post queues one invocation of the callback.
func (w *Work) Post() {
	w.submit(false)
}

// WaitForCallbacks blocks until no invocation is queued or running. If
// cancelPending is true, queued invocations are discarded first.
func (w *Work) WaitForCallbacks(cancelPending bool) {
	w.waitForCallbacks(cancelPending)
}

// Release drops the application's reference. Queued invocations still run.
func (w *Work) Release() {
	w.releaseByOwner()
}

type simpleCallback struct {
	object
	callback SimpleCallback
}

// TrySubmitCallback runs callback once on a worker of the environment's pool.
// The runtime owns the underlying object and releases it after the callback
// returns. It fails with [ErrPoolShutdown] if the pool is released before the
// callback could be queued.
func TrySubmitCallback(callback SimpleCallback, userdata any, env *Environment) error {
	if callback == nil {
		return ErrNilCallback
	}
	s := &simpleCallback{callback: callback}
	if err := s.init(s, userdata, env); err != nil {
		return err
	}
	if !s.trySubmit(false) {
		// The pool was released after the object was bound to it. The
		// object never joined its group.
		s.group = nil
		s.shutdown.Store(true)
		s.release()
		return ErrPoolShutdown
	}
	s.link()
	s.release()
	return nil
}
