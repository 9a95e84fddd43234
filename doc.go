// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package tpool provides a self-scaling callback thread pool with four kinds
// of schedulable objects:
//
//   - [Work] runs a callback once per [Work.Post].
//   - [Timer] runs a callback at a due time and optionally periodically
//     thereafter, batching nearby expirations within a caller-chosen window.
//   - [Wait] runs a callback when a [Handle] is signaled or a timeout passes.
//   - [TrySubmitCallback] runs a one-off callback.
//
// Every object is bound to a [Pool], which starts worker goroutines when all
// existing workers are busy and lets surplus workers exit after an idle
// period. Objects may also join a [CleanupGroup], which shuts down, cancels
// and releases its members in bulk.
//
// Timers are served by a single process-wide goroutine, and waits by a set of
// bucket goroutines that each watch a bounded number of handles at once. Both
// exist only while there is something for them to do.
//
// Callbacks receive a [CallbackInstance] through which they can register
// actions to perform after they return, such as setting an [Event], and can
// warn the pool that they may block for a long time.
//
// Objects are reference counted. Each allocation must be matched by a call to
// the object's Release method or by [CleanupGroup.ReleaseMembers]; callbacks
// already queued still run after release, and the object is torn down once the
// last of them returns.
package tpool
