// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

type constError string

func (e constError) Error() string {
	return string(e)
}

const ErrOutOfResources = constError("insufficient resources")
const ErrPoolShutdown = constError("pool has been released")
const ErrGroupShutdown = constError("cleanup group has been released")
const ErrNilCallback = constError("callback must be non-nil")
const ErrCleanupActionSet = constError("cleanup action already registered")
const ErrInstanceInactive = constError("callback instance is no longer running")
const ErrNotOwner = constError("mutex is not held")
const ErrSemaphoreLimit = constError("semaphore count would exceed its maximum")
const ErrLibraryUnloaded = constError("library has been unloaded")
const ErrInvalidConfig = constError("invalid configuration")
