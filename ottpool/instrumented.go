// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ottpool

import (
	"context"

	"github.com/petenewcomb/tpool-go"
)

// InstrumentedSimple combines logging, metrics and tracing for a simple
// callback. Logging is innermost and tracing outermost, so log entries and
// measurements fall within the callback's span.
func InstrumentedSimple(ctx context.Context, operationName string, fn SimpleFunc) tpool.SimpleCallback {
	return TracedSimple(ctx, operationName, MetricsSimple(operationName, LoggedSimple(operationName, fn)))
}

// InstrumentedWork combines logging, metrics and tracing for a work callback.
func InstrumentedWork(ctx context.Context, operationName string, fn WorkFunc) tpool.WorkCallback {
	return TracedWork(ctx, operationName, MetricsWork(operationName, LoggedWork(operationName, fn)))
}

func InstrumentedTimer(ctx context.Context, operationName string, fn TimerFunc) tpool.TimerCallback {
	return TracedTimer(ctx, operationName, MetricsTimer(operationName, LoggedTimer(operationName, fn)))
}

func InstrumentedWait(ctx context.Context, operationName string, fn WaitFunc) tpool.WaitCallback {
	return TracedWait(ctx, operationName, MetricsWait(operationName, LoggedWait(operationName, fn)))
}
