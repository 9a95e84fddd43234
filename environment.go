// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import "go.uber.org/zap"

// Environment versions understood by this package. Other versions are
// accepted with a warning and interpreted using the fields below.
const (
	EnvironmentV1 = 1
	EnvironmentV3 = 3
)

// An Environment customizes where and how an object's callbacks run. A nil
// *Environment, like the zero value, selects the default pool, no cleanup
// group and no optional callbacks.
type Environment struct {
	Version int

	// Pool that runs the callbacks; nil selects [DefaultPool].
	Pool *Pool

	// Group the object joins. Releasing the group's members releases the
	// object on the application's behalf.
	CleanupGroup *CleanupGroup

	// Called when [CleanupGroup.ReleaseMembers] cancels pending callbacks of
	// the object.
	CancelCallback GroupCancelCallback

	// Called after every callback of the object, before cleanup actions run.
	FinalizationCallback SimpleCallback

	// Hint that callbacks may block for long periods. Each invocation then
	// behaves as if it had called [CallbackInstance.MayRunLong] first.
	RunsLong bool

	// Pinned for the lifetime of the object.
	Library Library
}

func (env *Environment) check() {
	if env == nil {
		return
	}
	switch env.Version {
	case 0, EnvironmentV1, EnvironmentV3:
	default:
		logger().Warn("unsupported environment version; proceeding anyway", zap.Int("version", env.Version))
	}
}

// SimpleCallback is the signature of callbacks submitted with
// [TrySubmitCallback] and of finalization callbacks.
type SimpleCallback func(inst *CallbackInstance, userdata any)

type WorkCallback func(inst *CallbackInstance, userdata any, work *Work)

type TimerCallback func(inst *CallbackInstance, userdata any, timer *Timer)

type WaitCallback func(inst *CallbackInstance, userdata any, wait *Wait, result WaitResult)

// GroupCancelCallback receives the object's userdata and the userdata passed
// to [CleanupGroup.ReleaseMembers].
type GroupCancelCallback func(objectUserdata, cancelUserdata any)

// WaitResult tells a [WaitCallback] why it was invoked.
type WaitResult int

const (
	WaitSignaled WaitResult = iota
	WaitTimedOut
)

func (r WaitResult) String() string {
	switch r {
	case WaitSignaled:
		return "signaled"
	case WaitTimedOut:
		return "timeout"
	}
	return "unknown"
}
