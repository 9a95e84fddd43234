// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package ottpool

import (
	"context"
	"time"

	"github.com/petenewcomb/tpool-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// instruments records, under metricName, how often a callback runs, how long
// it takes and how often it panics. Wait callbacks also count timeouts.
type instruments struct {
	count    metric.Int64Counter
	duration metric.Float64Histogram
	panics   metric.Int64Counter
	timeouts metric.Int64Counter
}

func newInstruments(metricName string) *instruments {
	meter := otel.GetMeterProvider().Meter(instrumentationName)
	ins := &instruments{}
	ins.count, _ = meter.Int64Counter(metricName+".count",
		metric.WithDescription("Callback invocations"))
	ins.duration, _ = meter.Float64Histogram(metricName+".duration",
		metric.WithDescription("Callback run time"),
		metric.WithUnit("s"))
	ins.panics, _ = meter.Int64Counter(metricName+".panics",
		metric.WithDescription("Callback invocations that panicked"))
	ins.timeouts, _ = meter.Int64Counter(metricName+".timeouts",
		metric.WithDescription("Wait callback invocations caused by a timeout"))
	return ins
}

func (ins *instruments) measure(ctx context.Context, inst *tpool.CallbackInstance, fn func()) {
	opt := metric.WithAttributes(PoolKey.String(inst.Pool().ID().String()))
	ins.count.Add(ctx, 1, opt)

	startTime := time.Now()
	didPanic := true
	defer func() {
		ins.duration.Record(ctx, time.Since(startTime).Seconds(), opt)
		if didPanic {
			ins.panics.Add(ctx, 1, opt)
		}
	}()
	fn()
	didPanic = false
}

// MetricsSimple records invocation count, duration and panics for fn using
// the global meter provider.
func MetricsSimple(metricName string, fn SimpleFunc) SimpleFunc {
	ins := newInstruments(metricName)
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any) {
		ins.measure(ctx, inst, func() { fn(ctx, inst, userdata) })
	}
}

func MetricsWork(metricName string, fn WorkFunc) WorkFunc {
	ins := newInstruments(metricName)
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, work *tpool.Work) {
		ins.measure(ctx, inst, func() { fn(ctx, inst, userdata, work) })
	}
}

func MetricsTimer(metricName string, fn TimerFunc) TimerFunc {
	ins := newInstruments(metricName)
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, timer *tpool.Timer) {
		ins.measure(ctx, inst, func() { fn(ctx, inst, userdata, timer) })
	}
}

func MetricsWait(metricName string, fn WaitFunc) WaitFunc {
	ins := newInstruments(metricName)
	return func(ctx context.Context, inst *tpool.CallbackInstance, userdata any, wait *tpool.Wait, result tpool.WaitResult) {
		if result == tpool.WaitTimedOut {
			ins.timeouts.Add(ctx, 1, metric.WithAttributes(PoolKey.String(inst.Pool().ID().String())))
		}
		ins.measure(ctx, inst, func() { fn(ctx, inst, userdata, wait, result) })
	}
}
