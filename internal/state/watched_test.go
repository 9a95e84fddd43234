// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestWatched_ZeroValue(t *testing.T) {
	chk := require.New(t)
	var w Watched[string]
	v, ch := w.Load()
	chk.Equal("", v)
	chk.NotNil(ch)
	chk.False(closed(ch))

	// Channels handed out before the first store are shared.
	_, ch2 := w.Load()
	chk.Equal(ch, ch2)
}

func TestWatched_StoreClosesPreviousChannel(t *testing.T) {
	chk := require.New(t)
	var w Watched[int]
	_, ch1 := w.Load()
	w.Store(1)
	chk.True(closed(ch1))

	v, ch2 := w.Load()
	chk.Equal(1, v)
	chk.False(closed(ch2))
	chk.NotEqual(ch1, ch2)

	w.Store(2)
	chk.True(closed(ch2))
}

func TestWatched_ConcurrentReadersWake(t *testing.T) {
	chk := require.New(t)
	var w Watched[int]

	const readers = 16
	var started, woke sync.WaitGroup
	started.Add(readers)
	woke.Add(readers)
	for range readers {
		go func() {
			defer woke.Done()
			_, ch := w.Load()
			started.Done()
			<-ch
		}()
	}
	started.Wait()
	w.Store(7)
	woke.Wait()
	v, _ := w.Load()
	chk.Equal(7, v)
}

func TestWatched_Model(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var w Watched[int]
		var model int
		var pending []<-chan struct{}
		t.Repeat(map[string]func(*rapid.T){
			"load": func(t *rapid.T) {
				v, ch := w.Load()
				if v != model {
					t.Fatalf("loaded %d, want %d", v, model)
				}
				if closed(ch) {
					t.Fatal("fresh channel already closed")
				}
				pending = append(pending, ch)
			},
			"store": func(t *rapid.T) {
				model = rapid.Int().Draw(t, "value")
				w.Store(model)
				for _, ch := range pending {
					if !closed(ch) {
						t.Fatal("store did not close an outstanding channel")
					}
				}
				pending = pending[:0]
			},
		})
	})
}
