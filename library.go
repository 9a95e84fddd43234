// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"github.com/petenewcomb/tpool-go/internal/state"
	"go.uber.org/zap"
)

// A Library is a loadable module whose code a callback may depend on. The
// runtime pins the library named in an [Environment] for as long as the object
// exists, and a callback may ask for one reference to be dropped after it
// returns with [CallbackInstance.UnloadLibraryOnCompletion].
type Library interface {
	Pin() error
	Unload()
}

// RefLibrary is a reference-counted [Library]. It is loaded with one
// reference held by its creator and becomes permanently unloaded when the
// last reference is dropped.
type RefLibrary struct {
	name     string
	refs     state.RefCount
	onUnload func()
}

// NewLibrary returns a loaded library. onUnload, if non-nil, runs when the
// last reference is dropped.
func NewLibrary(name string, onUnload func()) *RefLibrary {
	l := &RefLibrary{name: name, onUnload: onUnload}
	l.refs.Init(1)
	return l
}

func (l *RefLibrary) Name() string {
	return l.name
}

func (l *RefLibrary) Pin() error {
	if !l.refs.TryAcquire() {
		return ErrLibraryUnloaded
	}
	return nil
}

func (l *RefLibrary) Unload() {
	if l.refs.Release() {
		logger().Debug("library unloaded", zap.String("library", l.name))
		if l.onUnload != nil {
			l.onUnload()
		}
	}
}

func (l *RefLibrary) Refs() int64 {
	return l.refs.Load()
}
