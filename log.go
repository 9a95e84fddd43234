// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var customLogger atomic.Pointer[zap.Logger]

// SetLogger directs the runtime's diagnostics to l. A nil logger restores the
// default, which follows the zap global logger ([zap.L]).
//
// Contract violations such as submitting a released object are reported at
// DPanic level, so a development logger turns them into panics.
func SetLogger(l *zap.Logger) {
	if l == nil {
		customLogger.Store(nil)
		return
	}
	customLogger.Store(l.Named("tpool"))
}

func logger() *zap.Logger {
	if l := customLogger.Load(); l != nil {
		return l
	}
	return zap.L().Named("tpool")
}
