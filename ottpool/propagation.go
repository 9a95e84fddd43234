// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package ottpool provides OpenTelemetry and zap instrumentation for tpool
// callbacks. Callbacks have no context of their own, so each wrapper captures
// the trace context that is current when the callback is wrapped and hands a
// context carrying it to the wrapped function on every invocation.
package ottpool

import (
	"context"

	"github.com/petenewcomb/tpool-go"
	"go.opentelemetry.io/otel/trace"
)

// Context-aware forms of the tpool callback signatures.
type (
	SimpleFunc func(ctx context.Context, inst *tpool.CallbackInstance, userdata any)
	WorkFunc   func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, work *tpool.Work)
	TimerFunc  func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, timer *tpool.Timer)
	WaitFunc   func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, wait *tpool.Wait, result tpool.WaitResult)
)

// detach returns a context that carries the span context of ctx but none of
// its deadlines, cancellation or values. Callbacks may run long after the
// code that wrapped them has returned.
func detach(ctx context.Context) context.Context {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return context.Background()
	}
	return trace.ContextWithRemoteSpanContext(context.Background(), sc)
}

// PropagateSimple adapts fn for [tpool.TrySubmitCallback], passing it the
// trace context of ctx.
func PropagateSimple(ctx context.Context, fn SimpleFunc) tpool.SimpleCallback {
	ctx = detach(ctx)
	return func(inst *tpool.CallbackInstance, userdata any) {
		fn(ctx, inst, userdata)
	}
}

func PropagateWork(ctx context.Context, fn WorkFunc) tpool.WorkCallback {
	ctx = detach(ctx)
	return func(inst *tpool.CallbackInstance, userdata any, work *tpool.Work) {
		fn(ctx, inst, userdata, work)
	}
}

func PropagateTimer(ctx context.Context, fn TimerFunc) tpool.TimerCallback {
	ctx = detach(ctx)
	return func(inst *tpool.CallbackInstance, userdata any, timer *tpool.Timer) {
		fn(ctx, inst, userdata, timer)
	}
}

func PropagateWait(ctx context.Context, fn WaitFunc) tpool.WaitCallback {
	ctx = detach(ctx)
	return func(inst *tpool.CallbackInstance, userdata any, wait *tpool.Wait, result tpool.WaitResult) {
		fn(ctx, inst, userdata, wait, result)
	}
}
