// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// A CallbackInstance is passed to every callback invocation. It is valid only
// until the callback (and any finalization callback) returns; later calls are
// logged and ignored.
//
// Cleanup actions registered on the instance run after the callback and the
// finalization callback return, in this order: leave critical section,
// release mutex, release semaphore, set event, unload library. If releasing
// the mutex or semaphore fails, the failure is logged and the remaining
// actions are skipped. Cleanup actions do not run if the callback called
// [CallbackInstance.Disassociate].
type CallbackInstance struct {
	object     *object
	active     atomic.Bool
	associated atomic.Bool

	mu               sync.Mutex
	mayRunLongCalled bool
	mayRunLong       bool
	cleanup          cleanupActions
}

type cleanupActions struct {
	criticalSection sync.Locker
	mutex           *Mutex
	semaphore       *Semaphore
	semaphoreCount  int
	event           *Event
	library         Library
}

func newCallbackInstance(o *object) *CallbackInstance {
	inst := &CallbackInstance{object: o}
	inst.active.Store(true)
	inst.associated.Store(true)
	return inst
}

// Pool returns the pool running the callback.
func (inst *CallbackInstance) Pool() *Pool {
	return inst.object.pool
}

func (inst *CallbackInstance) checkActive(op string) bool {
	if inst.active.Load() {
		return true
	}
	logger().Error("callback instance used after its callback returned; ignoring",
		zap.String("operation", op),
		zap.String("kind", inst.object.kind()))
	return false
}

// Disassociate declares that the rest of the callback is unrelated to its
// object: WaitForCallbacks on the object no longer waits for it, and no
// cleanup actions run when it returns. Cleanup groups still wait for it.
func (inst *CallbackInstance) Disassociate() {
	if !inst.checkActive("Disassociate") {
		return
	}
	if !inst.associated.CompareAndSwap(true, false) {
		return
	}
	o := inst.object
	p := o.pool
	p.mu.Lock()
	o.associated--
	if o.isFinishedLocked(false) {
		o.finished.Broadcast()
	}
	p.mu.Unlock()
}

// MayRunLong tells the pool that the callback may block for a long time. If
// every worker is busy the pool starts another one so that queued work is not
// held up. It reports whether the pool had or could make room; when the pool
// is already at its maximum it reports false. Only the first call has an
// effect; later calls return the first result.
func (inst *CallbackInstance) MayRunLong() bool {
	if !inst.checkActive("MayRunLong") {
		return false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.mayRunLongCalled {
		return inst.mayRunLong
	}

	p := inst.object.pool
	p.mu.Lock()
	ok := true
	if p.numBusy >= p.numWorkers {
		ok = p.numWorkers < p.maxWorkers && p.spawnLocked()
	}
	p.mu.Unlock()

	inst.mayRunLongCalled = true
	inst.mayRunLong = ok
	return ok
}

func (inst *CallbackInstance) register(op string, set func(c *cleanupActions) bool) error {
	if !inst.checkActive(op) {
		return ErrInstanceInactive
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !set(&inst.cleanup) {
		logger().Warn("cleanup action already registered; ignoring", zap.String("operation", op))
		return ErrCleanupActionSet
	}
	return nil
}

// LeaveCriticalSectionOnCompletion arranges for l to be unlocked when the
// callback returns.
func (inst *CallbackInstance) LeaveCriticalSectionOnCompletion(l sync.Locker) error {
	return inst.register("LeaveCriticalSectionOnCompletion", func(c *cleanupActions) bool {
		if c.criticalSection != nil {
			return false
		}
		c.criticalSection = l
		return true
	})
}

func (inst *CallbackInstance) ReleaseMutexOnCompletion(m *Mutex) error {
	return inst.register("ReleaseMutexOnCompletion", func(c *cleanupActions) bool {
		if c.mutex != nil {
			return false
		}
		c.mutex = m
		return true
	})
}

func (inst *CallbackInstance) ReleaseSemaphoreOnCompletion(s *Semaphore, count int) error {
	return inst.register("ReleaseSemaphoreOnCompletion", func(c *cleanupActions) bool {
		if c.semaphore != nil {
			return false
		}
		c.semaphore = s
		c.semaphoreCount = count
		return true
	})
}

func (inst *CallbackInstance) SetEventOnCompletion(e *Event) error {
	return inst.register("SetEventOnCompletion", func(c *cleanupActions) bool {
		if c.event != nil {
			return false
		}
		c.event = e
		return true
	})
}

// UnloadLibraryOnCompletion arranges for one reference to lib to be dropped
// when the callback returns.
func (inst *CallbackInstance) UnloadLibraryOnCompletion(lib Library) error {
	return inst.register("UnloadLibraryOnCompletion", func(c *cleanupActions) bool {
		if c.library != nil {
			return false
		}
		c.library = lib
		return true
	})
}

func (inst *CallbackInstance) runCleanup() {
	inst.mu.Lock()
	c := inst.cleanup
	inst.mu.Unlock()

	if c.criticalSection != nil {
		c.criticalSection.Unlock()
	}
	if c.mutex != nil {
		if err := c.mutex.Release(); err != nil {
			logger().Error("releasing mutex on completion", zap.Error(err))
			return
		}
	}
	if c.semaphore != nil {
		if err := c.semaphore.Release(c.semaphoreCount); err != nil {
			logger().Error("releasing semaphore on completion",
				zap.Int("count", c.semaphoreCount),
				zap.Error(err))
			return
		}
	}
	if c.event != nil {
		c.event.Set()
	}
	if c.library != nil {
		c.library.Unload()
	}
}
