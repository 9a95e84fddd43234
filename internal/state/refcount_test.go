// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRefCountReleaseReportsLast(t *testing.T) {
	chk := require.New(t)
	var c RefCount
	c.Init(1)
	chk.Equal(int64(2), c.Acquire())
	chk.False(c.Release())
	chk.True(c.Release())
	chk.PanicsWithValue(ErrRefCountUnderflow, func() { c.Release() })
}

func TestRefCountTryAcquireAfterZero(t *testing.T) {
	chk := require.New(t)
	var c RefCount
	chk.False(c.TryAcquire())
	c.Init(1)
	chk.True(c.TryAcquire())
	chk.False(c.Release())
	chk.True(c.Release())
	chk.False(c.TryAcquire())
	chk.Equal(int64(0), c.Load())
}

func TestRefCountConcurrent(t *testing.T) {
	chk := require.New(t)
	var c RefCount
	c.Init(1)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.Acquire()
				c.Release()
			}
		}()
	}
	wg.Wait()
	chk.True(c.Release())
}

func TestRefCountWithRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var c RefCount
		initial := rapid.Int64Range(0, 5).Draw(t, "initial")
		c.Init(initial)
		model := initial

		t.Repeat(map[string]func(*rapid.T){
			"TryAcquire": func(t *rapid.T) {
				ok := c.TryAcquire()
				if model > 0 {
					if !ok {
						t.Fatalf("TryAcquire failed with count %d", model)
					}
					model++
				} else if ok {
					t.Fatalf("TryAcquire succeeded with count %d", model)
				}
			},
			"Release": func(t *rapid.T) {
				if model == 0 {
					t.Skip("would underflow")
				}
				last := c.Release()
				model--
				if last != (model == 0) {
					t.Fatalf("Release reported last=%v with remaining count %d", last, model)
				}
			},
			"": func(t *rapid.T) {
				if got := c.Load(); got != model {
					t.Fatalf("count mismatch: got %d, want %d", got, model)
				}
			},
		})
	})
}
