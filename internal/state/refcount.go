// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync/atomic"

	"github.com/petenewcomb/tpool-go/internal/cerr"
)

const ErrRefCountUnderflow = cerr.Error("reference count underflow")

// RefCount is an atomic reference count. The zero value holds no references;
// owners typically call [RefCount.Init] with 1 when the counted entity is
// created on behalf of its first owner.
type RefCount struct {
	v atomic.Int64
}

func (c *RefCount) Init(n int64) {
	c.v.Store(n)
}

// Acquire adds a reference and returns the new count. The caller must already
// hold a reference or otherwise know that the entity is still live.
func (c *RefCount) Acquire() int64 {
	return c.v.Add(1)
}

// TryAcquire adds a reference unless the count has already dropped to zero,
// in which case the entity is being torn down and false is returned.
func (c *RefCount) TryAcquire() bool {
	for {
		v := c.v.Load()
		if v <= 0 {
			return false
		}
		if c.v.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// Release drops a reference and reports whether it was the last one.
func (c *RefCount) Release() bool {
	v := c.v.Add(-1)
	if v < 0 {
		panic(ErrRefCountUnderflow)
	}
	return v == 0
}

func (c *RefCount) Load() int64 {
	return c.v.Load()
}
