// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petenewcomb/tpool-go/internal/state"
	"go.uber.org/zap"
)

const errDestroyedLive = constError("object destroyed before it was shut down")
const errDestroyedBusy = constError("object destroyed with callbacks outstanding")

// variant is implemented only by the four object kinds: *simpleCallback,
// *Work, *Timer and *Wait.
type variant interface {
	base() *object
}

// object is the state shared by every kind of callback object.
//
// An object is torn down when its last reference is dropped. References are
// held by the application (from allocation until Release), by every pending
// invocation, and temporarily by the wait queue and by cleanup groups while
// they operate on it.
type object struct {
	refs     state.RefCount
	released atomic.Bool
	shutdown atomic.Bool

	self        variant
	pool        *Pool
	group       *CleanupGroup
	userdata    any
	groupCancel GroupCancelCallback
	finalize    SimpleCallback
	runsLong    bool
	library     Library

	// Guarded by group.mu.
	isGroupMember bool

	// Guarded by pool.mu.
	pending       int
	running       int
	associated    int
	finished      sync.Cond
	groupFinished sync.Cond
}

func (o *object) base() *object {
	return o
}

func (o *object) kind() string {
	switch o.self.(type) {
	case *simpleCallback:
		return "simple"
	case *Work:
		return "work"
	case *Timer:
		return "timer"
	case *Wait:
		return "wait"
	}
	return "unknown"
}

// init binds the object to its pool and pins its library. On success the
// object holds one reference on behalf of its creator. Kind-specific
// registration follows, then [object.link] as the last construction step.
func (o *object) init(self variant, userdata any, env *Environment) error {
	env.check()
	if env == nil {
		env = &Environment{}
	}
	pool := env.Pool
	if pool == nil {
		pool = DefaultPool()
	}
	if g := env.CleanupGroup; g != nil && g.shutdown.Load() {
		return ErrGroupShutdown
	}
	if err := pool.lockObject(); err != nil {
		return err
	}
	if lib := env.Library; lib != nil {
		if err := lib.Pin(); err != nil {
			pool.unlockObject()
			return fmt.Errorf("pinning library: %w", err)
		}
		o.library = lib
	}

	o.self = self
	o.pool = pool
	o.group = env.CleanupGroup
	o.userdata = userdata
	o.groupCancel = env.CancelCallback
	o.finalize = env.FinalizationCallback
	o.runsLong = env.RunsLong
	o.finished.L = &pool.mu
	o.groupFinished.L = &pool.mu
	o.refs.Init(1)
	return nil
}

// unwind reverses a successful init when a later construction step fails.
func (o *object) unwind() {
	if o.library != nil {
		o.library.Unload()
	}
	o.pool.unlockObject()
}

// link adds the object to its cleanup group, if any.
func (o *object) link() {
	g := o.group
	if g == nil {
		return
	}
	if !g.refs.TryAcquire() {
		logger().DPanic("cleanup group destroyed while allocating a member", zap.String("kind", o.kind()))
		o.group = nil
		return
	}
	g.mu.Lock()
	g.members.PushBack(o)
	o.isGroupMember = true
	g.mu.Unlock()
}

// submit queues one invocation.
func (o *object) submit(signaled bool) {
	if !o.trySubmit(signaled) {
		logger().DPanic("callback submitted after release; ignoring",
			zap.String("kind", o.kind()),
			zap.Stringer("pool", o.pool.id))
	}
}

// trySubmit queues one invocation unless the object or its pool has been
// shut down, and reports whether it did.
func (o *object) trySubmit(signaled bool) bool {
	p := o.pool
	p.mu.Lock()
	if o.shutdown.Load() || p.shutdown.Load() {
		p.mu.Unlock()
		return false
	}
	spawned := p.growLocked()
	o.refs.Acquire()
	if o.pending == 0 {
		p.queue.PushBack(o)
	}
	o.pending++
	if w, ok := o.self.(*Wait); ok && signaled {
		w.signaled++
	}
	if !spawned {
		p.idle.Notify()
	}
	p.mu.Unlock()
	return true
}

// cancel removes every invocation that has not yet been handed to a worker.
// Invocations already running are unaffected.
func (o *object) cancel(groupCancel bool, cancelUserdata any) {
	p := o.pool
	p.mu.Lock()
	n := o.pending
	if n > 0 {
		o.pending = 0
		if i := p.queue.Index(func(x *object) bool { return x == o }); i >= 0 {
			p.queue.Remove(i)
		}
		if w, ok := o.self.(*Wait); ok {
			w.signaled = 0
		}
		o.broadcastLocked()
	}
	p.mu.Unlock()

	if groupCancel && n > 0 && o.groupCancel != nil {
		o.groupCancel(o.userdata, cancelUserdata)
	}
	for range n {
		o.release()
	}
}

// isFinishedLocked reports whether nothing is pending and, for group waits,
// nothing is running or, otherwise, no running invocation is still
// associated with the object.
func (o *object) isFinishedLocked(group bool) bool {
	if o.pending > 0 {
		return false
	}
	if group {
		return o.running == 0
	}
	return o.associated == 0
}

func (o *object) broadcastLocked() {
	if o.isFinishedLocked(true) {
		o.groupFinished.Broadcast()
	}
	if o.isFinishedLocked(false) {
		o.finished.Broadcast()
	}
}

// wait blocks until the object is finished in the sense of isFinishedLocked.
func (o *object) wait(group bool) {
	p := o.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if group {
		for !o.isFinishedLocked(true) {
			o.groupFinished.Wait()
		}
		return
	}
	for !o.isFinishedLocked(false) {
		o.finished.Wait()
	}
}

// waitForCallbacks implements the WaitForCallbacks method of each kind.
func (o *object) waitForCallbacks(cancelPending bool) {
	if cancelPending {
		o.cancel(false, nil)
	}
	o.wait(false)
}

// prepareShutdown detaches the object from the timer or wait queue. It is
// idempotent.
func (o *object) prepareShutdown() {
	switch v := o.self.(type) {
	case *Timer:
		timerQueue.unregister(v)
	case *Wait:
		waitQueue.unregister(v)
	}
}

// releaseByOwner drops the application's reference after shutting the object
// down. Pending invocations still run.
func (o *object) releaseByOwner() {
	if !o.released.CompareAndSwap(false, true) {
		logger().DPanic("object released twice; ignoring", zap.String("kind", o.kind()))
		return
	}
	o.prepareShutdown()
	o.shutdown.Store(true)
	o.release()
}

// release drops one reference and tears the object down if it was the last.
func (o *object) release() {
	if !o.refs.Release() {
		return
	}
	if !o.shutdown.Load() {
		panic(errDestroyedLive)
	}

	p := o.pool
	p.mu.Lock()
	busy := o.pending != 0 || o.running != 0 || o.associated != 0
	p.mu.Unlock()
	if busy {
		panic(errDestroyedBusy)
	}

	if g := o.group; g != nil {
		g.mu.Lock()
		if o.isGroupMember {
			if i := g.members.Index(func(x *object) bool { return x == o }); i >= 0 {
				g.members.Remove(i)
			}
			o.isGroupMember = false
		}
		g.mu.Unlock()
		g.release()
	}

	p.unlockObject()

	if o.library != nil {
		o.library.Unload()
	}
}

// execute runs one dispatched invocation on the calling worker. The worker
// has already moved the invocation from pending to running and associated.
func (o *object) execute(result WaitResult) {
	inst := newCallbackInstance(o)
	if o.runsLong {
		inst.MayRunLong()
	}

	switch v := o.self.(type) {
	case *simpleCallback:
		v.callback(inst, o.userdata)
	case *Work:
		v.callback(inst, o.userdata, v)
	case *Timer:
		v.callback(inst, o.userdata, v)
	case *Wait:
		v.callback(inst, o.userdata, v, result)
	}

	if o.finalize != nil {
		o.finalize(inst, o.userdata)
	}
	inst.active.Store(false)
	if inst.associated.Load() {
		inst.runCleanup()
	}

	p := o.pool
	p.mu.Lock()
	if _, ok := o.self.(*simpleCallback); ok {
		// Simple callbacks run once.
		o.shutdown.Store(true)
	}
	o.running--
	if o.isFinishedLocked(true) {
		o.groupFinished.Broadcast()
	}
	if inst.associated.CompareAndSwap(true, false) {
		o.associated--
		if o.isFinishedLocked(false) {
			o.finished.Broadcast()
		}
	}
	p.mu.Unlock()
}
