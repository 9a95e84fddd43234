// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool_test

import (
	"context"
	"testing"
	"time"

	"github.com/petenewcomb/tpool-go"
	"github.com/stretchr/testify/require"
)

func TestEventManualReset(t *testing.T) {
	chk := require.New(t)
	ev := tpool.NewEvent(true, false)
	chk.False(ev.IsSet())

	ready := ev.Ready()
	ev.Set()
	ev.Set()
	chk.True(ev.IsSet())
	for range 3 {
		receive(t, ready)
		chk.NoError(ev.Wait(context.Background()))
	}

	ev.Reset()
	chk.False(ev.IsSet())
	requireNothing(t, ev.Ready(), 10*time.Millisecond)
	// Channels handed out while signaled stay closed.
	receive(t, ready)
}

func TestEventAutoReset(t *testing.T) {
	chk := require.New(t)
	ev := tpool.NewEvent(false, true)
	chk.True(ev.IsSet())
	chk.NoError(ev.Wait(context.Background()))
	chk.False(ev.IsSet())

	ev.Set()
	ev.Set()
	chk.True(ev.IsSet())
	receive(t, ev.Ready())
	requireNothing(t, ev.Ready(), 10*time.Millisecond)

	ev.Set()
	ev.Reset()
	chk.False(ev.IsSet())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	chk.ErrorIs(ev.Wait(ctx), context.DeadlineExceeded)
}

func TestSemaphore(t *testing.T) {
	chk := require.New(t)
	chk.Panics(func() { tpool.NewSemaphore(0, 0) })
	chk.Panics(func() { tpool.NewSemaphore(3, 2) })

	s := tpool.NewSemaphore(1, 2)
	chk.Equal(1, s.Count())
	chk.ErrorIs(s.Release(2), tpool.ErrSemaphoreLimit)
	chk.Equal(1, s.Count())
	chk.NoError(s.Release(1))
	chk.Equal(2, s.Count())

	chk.NoError(s.Acquire(context.Background()))
	receive(t, s.Ready())
	chk.Equal(0, s.Count())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chk.ErrorIs(s.Acquire(ctx), context.Canceled)
}

func TestMutex(t *testing.T) {
	chk := require.New(t)
	m := tpool.NewMutex()
	chk.ErrorIs(m.Release(), tpool.ErrNotOwner)

	chk.True(m.TryLock())
	chk.False(m.TryLock())
	requireNothing(t, m.Ready(), 10*time.Millisecond)
	chk.NoError(m.Release())

	m.Lock()
	chk.NoError(m.Release())
	receive(t, m.Ready())
	chk.NoError(m.Release())
}
