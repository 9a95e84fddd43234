// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/petenewcomb/tpool-go"
	"github.com/stretchr/testify/require"
)

func TestWorkRunsOncePerPost(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	var count atomic.Int32
	w, err := tpool.NewWork(func(inst *tpool.CallbackInstance, userdata any, work *tpool.Work) {
		chk.Equal("ud", userdata)
		count.Add(1)
	}, "ud", &tpool.Environment{Pool: p})
	chk.NoError(err)
	defer w.Release()

	for range 5 {
		w.Post()
	}
	w.WaitForCallbacks(false)
	chk.Equal(int32(5), count.Load())
}

// blocker occupies a worker of a single-worker pool until released.
type blocker struct {
	work    *tpool.Work
	started chan struct{}
	release chan struct{}
}

func newBlocker(t *testing.T, env *tpool.Environment) *blocker {
	b := &blocker{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		b.started <- struct{}{}
		<-b.release
	}, nil, env)
	require.NoError(t, err)
	b.work = w
	return b
}

func (b *blocker) start(t *testing.T) {
	b.work.Post()
	receive(t, b.started)
}

func TestWorkPostsCoalesceWhileQueued(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)
	p.SetMaxThreads(1)
	env := &tpool.Environment{Pool: p}

	b := newBlocker(t, env)
	defer b.work.Release()
	b.start(t)

	var count atomic.Int32
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		count.Add(1)
	}, nil, env)
	chk.NoError(err)
	defer w.Release()

	for range 5 {
		w.Post()
	}
	stats := p.Stats()
	chk.Equal(1, stats.QueuedObjects)
	chk.Equal(1, stats.Workers)
	chk.Equal(int32(0), count.Load())

	close(b.release)
	w.WaitForCallbacks(false)
	chk.Equal(int32(5), count.Load())
	chk.Equal(0, p.Stats().QueuedObjects)
}

func TestWorkCancelLeavesRunningCallback(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)
	p.SetMaxThreads(1)

	var count atomic.Int32
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		started <- struct{}{}
		<-release
		count.Add(1)
	}, nil, &tpool.Environment{Pool: p})
	chk.NoError(err)
	defer w.Release()

	w.Post()
	receive(t, started)
	w.Post()
	w.Post()

	done := make(chan struct{})
	go func() {
		w.WaitForCallbacks(true)
		close(done)
	}()
	requireNothing(t, done, 50*time.Millisecond)
	close(release)
	receive(t, done)

	chk.Equal(int32(1), count.Load())
	chk.Equal(0, p.Stats().QueuedObjects)
}

func TestWorkReleasedWithPendingPostsStillRuns(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)
	p.SetMaxThreads(1)
	env := &tpool.Environment{Pool: p}

	b := newBlocker(t, env)
	defer b.work.Release()
	b.start(t)

	ran := make(chan struct{}, 3)
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		ran <- struct{}{}
	}, nil, env)
	chk.NoError(err)
	for range 3 {
		w.Post()
	}
	w.Release()
	chk.Equal(2, p.Stats().Objects)

	close(b.release)
	for range 3 {
		receive(t, ran)
	}
	chk.Eventually(func() bool { return p.Stats().Objects == 1 }, testTimeout, time.Millisecond)
}

func TestWorkFinalizationCallback(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)
	p.SetMaxThreads(1)

	order := make(chan string, 4)
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		order <- "callback"
	}, "ud", &tpool.Environment{
		Pool: p,
		FinalizationCallback: func(inst *tpool.CallbackInstance, userdata any) {
			chk.Equal("ud", userdata)
			order <- "finalize"
		},
	})
	chk.NoError(err)
	defer w.Release()

	w.Post()
	w.Post()
	w.WaitForCallbacks(false)
	close(order)
	var got []string
	for s := range order {
		got = append(got, s)
	}
	chk.Equal([]string{"callback", "finalize", "callback", "finalize"}, got)
}

func TestWorkAllocationErrors(t *testing.T) {
	chk := require.New(t)

	_, err := tpool.NewWork(nil, nil, nil)
	chk.ErrorIs(err, tpool.ErrNilCallback)

	p := tpool.NewPool()
	p.Release()
	_, err = tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {}, nil, &tpool.Environment{Pool: p})
	chk.ErrorIs(err, tpool.ErrPoolShutdown)

	lib := tpool.NewLibrary("gone", nil)
	lib.Unload()
	_, err = tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {}, nil, &tpool.Environment{Library: lib})
	chk.ErrorIs(err, tpool.ErrLibraryUnloaded)
}

func TestWorkUnknownEnvironmentVersion(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)
	done := make(chan struct{}, 1)
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		done <- struct{}{}
	}, nil, &tpool.Environment{Version: 7, Pool: p})
	chk.NoError(err)
	defer w.Release()
	w.Post()
	receive(t, done)
}

func TestWorkDefaultPool(t *testing.T) {
	chk := require.New(t)
	done := make(chan *tpool.Pool, 1)
	w, err := tpool.NewWork(func(inst *tpool.CallbackInstance, _ any, _ *tpool.Work) {
		done <- inst.Pool()
	}, nil, nil)
	chk.NoError(err)
	defer w.Release()
	w.Post()
	chk.Same(tpool.DefaultPool(), receive(t, done))
}

func TestTrySubmitCallback(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	done := make(chan any, 1)
	chk.NoError(tpool.TrySubmitCallback(func(inst *tpool.CallbackInstance, userdata any) {
		done <- userdata
	}, 42, &tpool.Environment{Pool: p}))
	chk.Equal(42, receive(t, done))
	chk.Eventually(func() bool { return p.Stats().Objects == 0 }, testTimeout, time.Millisecond)

	chk.ErrorIs(tpool.TrySubmitCallback(nil, nil, nil), tpool.ErrNilCallback)
}

// gatedLibrary blocks in Pin until opened, holding an allocation between
// binding to its pool and queuing its first invocation.
type gatedLibrary struct {
	pinning  chan struct{}
	open     chan struct{}
	unloaded atomic.Int32
}

func (l *gatedLibrary) Pin() error {
	close(l.pinning)
	<-l.open
	return nil
}

func (l *gatedLibrary) Unload() {
	l.unloaded.Add(1)
}

func TestTrySubmitCallbackPoolReleasedDuringAllocation(t *testing.T) {
	chk := require.New(t)
	p := tpool.NewPool()
	g := tpool.NewCleanupGroup()
	defer g.Release()

	lib := &gatedLibrary{
		pinning: make(chan struct{}),
		open:    make(chan struct{}),
	}
	var ran atomic.Bool
	result := make(chan error, 1)
	go func() {
		result <- tpool.TrySubmitCallback(func(inst *tpool.CallbackInstance, userdata any) {
			ran.Store(true)
		}, nil, &tpool.Environment{Pool: p, CleanupGroup: g, Library: lib})
	}()

	receive(t, lib.pinning)
	p.Release()
	close(lib.open)

	chk.ErrorIs(receive(t, result), tpool.ErrPoolShutdown)
	chk.False(ran.Load())
	chk.Equal(int32(1), lib.unloaded.Load())
	chk.Zero(g.Len())
	chk.Zero(p.Stats().Objects)
}
