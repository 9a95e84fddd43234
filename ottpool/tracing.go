// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ottpool

import (
	"context"

	"github.com/petenewcomb/tpool-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/petenewcomb/tpool-go/ottpool"

// Span attribute keys.
const (
	PoolKey       = attribute.Key("tpool.pool")
	KindKey       = attribute.Key("tpool.kind")
	WaitResultKey = attribute.Key("tpool.wait.result")
)

func startSpan(ctx context.Context, operationName, kind string, inst *tpool.CallbackInstance, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		PoolKey.String(inst.Pool().ID().String()),
		KindKey.String(kind))
	return otel.Tracer(instrumentationName).Start(ctx, operationName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// TracedSimple runs each invocation of fn in a span named operationName,
// parented by the span that is current in ctx when TracedSimple is called.
func TracedSimple(ctx context.Context, operationName string, fn SimpleFunc) tpool.SimpleCallback {
	return PropagateSimple(ctx, func(ctx context.Context, inst *tpool.CallbackInstance, userdata any) {
		ctx, span := startSpan(ctx, operationName, "simple", inst)
		defer span.End()
		fn(ctx, inst, userdata)
	})
}

// TracedWork is the [tpool.WorkCallback] form of [TracedSimple].
func TracedWork(ctx context.Context, operationName string, fn WorkFunc) tpool.WorkCallback {
	return PropagateWork(ctx, func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, work *tpool.Work) {
		ctx, span := startSpan(ctx, operationName, "work", inst)
		defer span.End()
		fn(ctx, inst, userdata, work)
	})
}

func TracedTimer(ctx context.Context, operationName string, fn TimerFunc) tpool.TimerCallback {
	return PropagateTimer(ctx, func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, timer *tpool.Timer) {
		ctx, span := startSpan(ctx, operationName, "timer", inst)
		defer span.End()
		fn(ctx, inst, userdata, timer)
	})
}

// TracedWait additionally records the wait result as a span attribute.
func TracedWait(ctx context.Context, operationName string, fn WaitFunc) tpool.WaitCallback {
	return PropagateWait(ctx, func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, wait *tpool.Wait, result tpool.WaitResult) {
		ctx, span := startSpan(ctx, operationName, "wait", inst, WaitResultKey.String(result.String()))
		defer span.End()
		fn(ctx, inst, userdata, wait, result)
	})
}
