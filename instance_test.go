// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petenewcomb/tpool-go"
	"github.com/stretchr/testify/require"
)

// runOnce runs fn as a work callback on p and waits for it to finish.
func runOnce(t *testing.T, p *tpool.Pool, fn func(inst *tpool.CallbackInstance)) {
	t.Helper()
	w, err := tpool.NewWork(func(inst *tpool.CallbackInstance, _ any, _ *tpool.Work) {
		fn(inst)
	}, nil, &tpool.Environment{Pool: p})
	require.NoError(t, err)
	defer w.Release()
	w.Post()
	w.WaitForCallbacks(false)
}

func TestInstanceCleanupActions(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	var cs sync.Mutex
	m := tpool.NewMutex()
	sem := tpool.NewSemaphore(0, 3)
	ev := tpool.NewEvent(true, false)
	unloaded := make(chan struct{})
	lib := tpool.NewLibrary("plugin", func() { close(unloaded) })

	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		cs.Lock()
		m.Lock()
		chk.NoError(inst.LeaveCriticalSectionOnCompletion(&cs))
		chk.NoError(inst.ReleaseMutexOnCompletion(m))
		chk.NoError(inst.ReleaseSemaphoreOnCompletion(sem, 2))
		chk.NoError(inst.SetEventOnCompletion(ev))
		chk.NoError(inst.UnloadLibraryOnCompletion(lib))
		chk.False(ev.IsSet())
	})

	chk.True(cs.TryLock())
	chk.True(m.TryLock())
	chk.Equal(2, sem.Count())
	chk.True(ev.IsSet())
	receive(t, unloaded)
	chk.Equal(int64(0), lib.Refs())
}

func TestInstanceCleanupActionRegisteredTwice(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	ev1 := tpool.NewEvent(true, false)
	ev2 := tpool.NewEvent(true, false)
	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		chk.NoError(inst.SetEventOnCompletion(ev1))
		chk.ErrorIs(inst.SetEventOnCompletion(ev2), tpool.ErrCleanupActionSet)
	})
	chk.True(ev1.IsSet())
	chk.False(ev2.IsSet())
}

func TestInstanceFailedReleaseSkipsLaterActions(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	// The mutex is not held, so releasing it fails.
	m := tpool.NewMutex()
	ev := tpool.NewEvent(true, false)
	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		chk.NoError(inst.ReleaseMutexOnCompletion(m))
		chk.NoError(inst.SetEventOnCompletion(ev))
	})
	chk.False(ev.IsSet())

	sem := tpool.NewSemaphore(1, 1)
	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		chk.NoError(inst.ReleaseSemaphoreOnCompletion(sem, 1))
		chk.NoError(inst.SetEventOnCompletion(ev))
	})
	chk.False(ev.IsSet())
	chk.Equal(1, sem.Count())
}

func TestInstanceCleanupRunsAfterFinalization(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	ev := tpool.NewEvent(true, false)
	var sawEvent atomic.Bool
	w, err := tpool.NewWork(func(inst *tpool.CallbackInstance, _ any, _ *tpool.Work) {
		chk.NoError(inst.SetEventOnCompletion(ev))
	}, nil, &tpool.Environment{
		Pool: p,
		FinalizationCallback: func(*tpool.CallbackInstance, any) {
			sawEvent.Store(ev.IsSet())
		},
	})
	chk.NoError(err)
	defer w.Release()
	w.Post()
	w.WaitForCallbacks(false)
	chk.True(ev.IsSet())
	chk.False(sawEvent.Load())
}

func TestInstanceDisassociate(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	ev := tpool.NewEvent(true, false)
	proceed := make(chan struct{})
	finished := make(chan struct{})
	w, err := tpool.NewWork(func(inst *tpool.CallbackInstance, _ any, _ *tpool.Work) {
		chk.NoError(inst.SetEventOnCompletion(ev))
		inst.Disassociate()
		<-proceed
		close(finished)
	}, nil, &tpool.Environment{Pool: p})
	chk.NoError(err)
	defer w.Release()

	w.Post()
	// Returns while the disassociated callback is still running.
	w.WaitForCallbacks(false)
	requireNothing(t, finished, 10*time.Millisecond)

	close(proceed)
	receive(t, finished)
	chk.Eventually(func() bool { return p.Stats().BusyWorkers == 0 }, testTimeout, time.Millisecond)
	chk.False(ev.IsSet())
}

func TestInstanceMayRunLong(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)
	p.SetMaxThreads(1)

	var first, second bool
	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		first = inst.MayRunLong()
		second = inst.MayRunLong()
	})
	chk.False(first)
	chk.False(second)

	p.SetMaxThreads(2)
	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		first = inst.MayRunLong()
	})
	chk.True(first)
	chk.LessOrEqual(p.Stats().Workers, 2)
}

func TestInstanceRunsLongStartsWorker(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {
		started <- struct{}{}
		<-release
	}, nil, &tpool.Environment{Pool: p, RunsLong: true})
	chk.NoError(err)
	defer w.Release()

	w.Post()
	receive(t, started)
	chk.Eventually(func() bool {
		s := p.Stats()
		return s.Workers-s.BusyWorkers >= 1
	}, testTimeout, time.Millisecond)
	close(release)
	w.WaitForCallbacks(false)
}

func TestInstanceUseAfterReturn(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	var saved *tpool.CallbackInstance
	runOnce(t, p, func(inst *tpool.CallbackInstance) {
		saved = inst
		chk.Equal(p, inst.Pool())
	})
	ev := tpool.NewEvent(true, false)
	chk.ErrorIs(saved.SetEventOnCompletion(ev), tpool.ErrInstanceInactive)
	chk.False(saved.MayRunLong())
	saved.Disassociate()
	chk.False(ev.IsSet())
}

func TestEnvironmentLibraryPinnedForObjectLifetime(t *testing.T) {
	chk := require.New(t)
	p := newPool(t)

	lib := tpool.NewLibrary("plugin", nil)
	w, err := tpool.NewWork(func(*tpool.CallbackInstance, any, *tpool.Work) {}, nil,
		&tpool.Environment{Pool: p, Library: lib})
	chk.NoError(err)
	chk.Equal(int64(2), lib.Refs())

	lib.Unload()
	chk.Equal(int64(1), lib.Refs())
	w.Post()
	w.WaitForCallbacks(false)
	w.Release()
	chk.Eventually(func() bool { return lib.Refs() == 0 }, testTimeout, time.Millisecond)
	chk.ErrorIs(lib.Pin(), tpool.ErrLibraryUnloaded)
}
