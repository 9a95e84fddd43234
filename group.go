// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/petenewcomb/tpool-go/internal/state"
	"go.uber.org/zap"
)

const errGroupDestroyedBusy = constError("cleanup group destroyed with members")

// A CleanupGroup tracks the objects allocated with it in their [Environment]
// so that they can be shut down, cancelled and released together with
// [CleanupGroup.ReleaseMembers].
type CleanupGroup struct {
	refs     state.RefCount
	shutdown atomic.Bool

	mu      sync.Mutex
	members deque.Deque[*object]
}

func NewCleanupGroup() *CleanupGroup {
	g := &CleanupGroup{}
	g.refs.Init(1)
	return g
}

// Release drops the application's reference. The group lives on until its
// remaining members are gone, but no new members may join it.
func (g *CleanupGroup) Release() {
	if !g.shutdown.CompareAndSwap(false, true) {
		logger().DPanic("cleanup group released twice; ignoring")
		return
	}
	g.release()
}

func (g *CleanupGroup) release() {
	if !g.refs.Release() {
		return
	}
	g.mu.Lock()
	n := g.members.Len()
	g.mu.Unlock()
	if n != 0 {
		panic(errGroupDestroyedBusy)
	}
}

// Len returns the current number of members.
func (g *CleanupGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members.Len()
}

// ReleaseMembers detaches every current member and shuts it down so that it
// accepts no further submissions. If cancelPending is true, callbacks that
// have not started are cancelled and each member's [GroupCancelCallback] is
// called with cancelUserdata. ReleaseMembers then waits for running callbacks
// to return and releases each member on the application's behalf; members the
// application already released are not released again.
//
// Callbacks submitted with [TrySubmitCallback] are members too; the
// application holds no reference to them, so none is dropped.
func (g *CleanupGroup) ReleaseMembers(cancelPending bool, cancelUserdata any) {
	type detached struct {
		o     *object
		owned bool
	}

	g.mu.Lock()
	members := make([]detached, 0, g.members.Len())
	for g.members.Len() > 0 {
		o := g.members.PopFront()
		o.isGroupMember = false
		if !o.refs.TryAcquire() {
			// Already being torn down; the teardown no longer needs the list.
			continue
		}
		d := detached{o: o}
		if _, simple := o.self.(*simpleCallback); !simple {
			d.owned = o.released.CompareAndSwap(false, true)
		}
		members = append(members, d)
	}
	g.mu.Unlock()

	logger().Debug("releasing cleanup group members",
		zap.Int("members", len(members)),
		zap.Bool("cancel_pending", cancelPending))

	for _, d := range members {
		if d.owned {
			d.o.prepareShutdown()
		}
		d.o.shutdown.Store(true)
	}

	if cancelPending {
		for _, d := range members {
			d.o.cancel(true, cancelUserdata)
		}
	}

	for _, d := range members {
		d.o.wait(true)
		if d.owned {
			d.o.release()
		}
		d.o.release()
	}
}
