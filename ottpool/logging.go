// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ottpool

import (
	"context"
	"time"

	"github.com/petenewcomb/tpool-go"
	"go.uber.org/zap"
)

// logged logs the start and completion of fn through the zap global logger.
// A panic is logged at error level and then continues unwinding.
func logged(operationName, kind string, inst *tpool.CallbackInstance, fn func(), extra ...zap.Field) {
	logger := zap.L().With(
		zap.String("operation", operationName),
		zap.String("component", "ottpool"),
		zap.String("kind", kind),
		zap.Stringer("pool", inst.Pool().ID()))

	logger.Debug("Starting callback", extra...)

	startTime := time.Now()
	didPanic := true
	defer func() {
		duration := time.Since(startTime)
		if didPanic {
			logger.Error("Callback panicked", zap.Duration("duration", duration))
			return
		}
		logger.Debug("Callback completed", zap.Duration("duration", duration))
	}()
	fn()
	didPanic = false
}

// LoggedSimple adds structured logging to fn, including its run time.
func LoggedSimple(operationName string, fn SimpleFunc) SimpleFunc {
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any) {
		logged(operationName, "simple", inst, func() { fn(ctx, inst, userdata) })
	}
}

func LoggedWork(operationName string, fn WorkFunc) WorkFunc {
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, work *tpool.Work) {
		logged(operationName, "work", inst, func() { fn(ctx, inst, userdata, work) })
	}
}

func LoggedTimer(operationName string, fn TimerFunc) TimerFunc {
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, timer *tpool.Timer) {
		logged(operationName, "timer", inst, func() { fn(ctx, inst, userdata, timer) })
	}
}

func LoggedWait(operationName string, fn WaitFunc) WaitFunc {
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, wait *tpool.Wait, result tpool.WaitResult) {
		logged(operationName, "wait", inst, func() { fn(ctx, inst, userdata, wait, result) },
			zap.Stringer("result", result))
	}
}
