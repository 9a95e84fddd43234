// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/petenewcomb/tpool-go/internal/state"
	"github.com/petenewcomb/tpool-go/internal/timerp"
	"github.com/petenewcomb/tpool-go/internal/waitq"
	"go.uber.org/zap"
)

const errPoolDestroyedBusy = constError("pool destroyed with queued work")

// A Pool is a self-scaling set of worker goroutines that run the callbacks of
// the objects bound to it.
//
// Workers are started on demand whenever every existing worker is busy and
// the pool is below its maximum, and they exit after sitting idle for
// [Config.WorkerIdleTimeout] as long as the pool keeps at least its minimum
// and one worker remains while any object is bound to it.
//
// Create pools with [NewPool] and release them with [Pool.Release]. Objects
// created with a nil [Environment.Pool] use [DefaultPool].
type Pool struct {
	id        uuid.UUID
	isDefault bool
	refs      state.RefCount
	shutdown  atomic.Bool

	mu         sync.Mutex
	minWorkers int
	maxWorkers int
	numWorkers int
	numBusy    int
	objcount   int

	// Objects with at least one pending invocation, each present once.
	queue deque.Deque[*object]

	// Idle workers.
	idle waitq.Queue
}

// NewPool creates a pool with no minimum and [Config.DefaultMaxWorkers] as its
// maximum. Workers are started lazily as objects are bound to it.
func NewPool() *Pool {
	p := &Pool{
		id:         uuid.New(),
		maxWorkers: config().DefaultMaxWorkers,
	}
	p.refs.Init(1)
	logger().Debug("pool created", zap.Stringer("pool", p.id))
	return p
}

var defaultPool struct {
	once sync.Once
	pool *Pool
}

// DefaultPool returns the process-wide pool used when an [Environment] names
// none. It is created on first use and is never destroyed.
func DefaultPool() *Pool {
	defaultPool.once.Do(func() {
		p := NewPool()
		p.isDefault = true
		defaultPool.pool = p
	})
	return defaultPool.pool
}

func (p *Pool) ID() uuid.UUID {
	return p.id
}

func (p *Pool) String() string {
	return "pool " + p.id.String()
}

// SetMaxThreads sets the maximum number of workers. Values below one are
// raised to one, and the minimum is lowered to match if necessary. Existing
// workers above the new maximum exit once they become idle.
func (p *Pool) SetMaxThreads(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxWorkers = max(n, 1)
	p.minWorkers = min(p.minWorkers, p.maxWorkers)
}

// SetMinThreads starts workers until at least n exist and then makes n the
// minimum, raising the maximum to match if necessary. It reports false,
// leaving the bounds unchanged, if a worker could not be started.
func (p *Pool) SetMinThreads(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numWorkers < n {
		if !p.spawnLocked() {
			return false
		}
	}
	p.minWorkers = n
	p.maxWorkers = max(p.maxWorkers, n)
	return true
}

// Release shuts the pool down and drops the application's reference. Idle
// workers exit immediately and busy ones once the queue is drained. Objects
// still bound to the pool keep it alive but must not be submitted again.
func (p *Pool) Release() {
	if p.isDefault {
		logger().DPanic("the default pool cannot be released; ignoring")
		return
	}
	p.mu.Lock()
	if p.shutdown.Load() {
		p.mu.Unlock()
		logger().DPanic("pool released twice; ignoring", zap.Stringer("pool", p.id))
		return
	}
	p.shutdown.Store(true)
	p.idle.NotifyAll()
	p.mu.Unlock()
	p.release()
}

func (p *Pool) release() {
	if !p.refs.Release() {
		return
	}
	p.mu.Lock()
	queued := p.queue.Len()
	p.mu.Unlock()
	if queued != 0 {
		panic(errPoolDestroyedBusy)
	}
	logger().Debug("pool destroyed", zap.Stringer("pool", p.id))
}

// lockObject binds a new object to the pool, making sure that a worker exists
// to serve it.
func (p *Pool) lockObject() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown.Load() {
		return ErrPoolShutdown
	}
	if p.numWorkers == 0 && !p.spawnLocked() {
		return ErrOutOfResources
	}
	p.refs.Acquire()
	p.objcount++
	return nil
}

func (p *Pool) unlockObject() {
	p.mu.Lock()
	p.objcount--
	p.mu.Unlock()
	p.release()
}

var totalWorkers atomic.Int64

func acquireWorkerSlot() bool {
	limit := int64(config().MaxTotalWorkers)
	for {
		n := totalWorkers.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if totalWorkers.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *Pool) spawnLocked() bool {
	if !acquireWorkerSlot() {
		logger().Debug("worker limit reached", zap.Stringer("pool", p.id), zap.Int("workers", p.numWorkers))
		return false
	}
	p.refs.Acquire()
	p.numWorkers++
	go p.work()
	return true
}

// growLocked starts another worker if every worker is busy and the pool is
// below its maximum.
func (p *Pool) growLocked() bool {
	if p.numBusy >= p.numWorkers && p.numWorkers < p.maxWorkers {
		return p.spawnLocked()
	}
	return false
}

func (p *Pool) work() {
	p.mu.Lock()
	for {
		for p.queue.Len() > 0 {
			o := p.queue.PopFront()
			o.pending--
			if o.pending > 0 {
				p.queue.PushBack(o)
			}
			result := WaitTimedOut
			if w, ok := o.self.(*Wait); ok && w.signaled > 0 {
				w.signaled--
				result = WaitSignaled
			}
			o.running++
			o.associated++
			p.numBusy++
			if p.queue.Len() > 0 {
				p.growLocked()
			}
			p.mu.Unlock()

			o.execute(result)
			o.release()

			p.mu.Lock()
			p.numBusy--
		}

		if p.shutdown.Load() {
			break
		}

		// The last worker stays as long as objects are bound to the pool.
		if p.idleWait() && p.queue.Len() == 0 &&
			(p.numWorkers > max(p.minWorkers, 1) || (p.minWorkers == 0 && p.objcount == 0)) {
			break
		}
	}
	p.numWorkers--
	p.mu.Unlock()
	totalWorkers.Add(-1)
	p.release()
}

// idleWait parks the calling worker until it is notified, the configuration
// changes or the idle timeout passes, and reports whether it timed out. It is
// called and returns with p.mu held.
func (p *Pool) idleWait() bool {
	w := p.idle.Add()
	p.mu.Unlock()
	cfg, changed := watchConfig()
	t := timerp.Get(cfg.WorkerIdleTimeout)
	timedOut := false
	select {
	case <-w.Done():
	case <-changed:
	case <-t.C:
		timedOut = true
	}
	timerp.Put(t)
	p.mu.Lock()
	w.Close()
	return timedOut
}

// PoolStats is a snapshot of a pool's bookkeeping.
type PoolStats struct {
	Workers       int
	BusyWorkers   int
	MinWorkers    int
	MaxWorkers    int
	QueuedObjects int
	Objects       int
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Workers:       p.numWorkers,
		BusyWorkers:   p.numBusy,
		MinWorkers:    p.minWorkers,
		MaxWorkers:    p.maxWorkers,
		QueuedObjects: p.queue.Len(),
		Objects:       p.objcount,
	}
}
