// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petenewcomb/tpool-go"
	"github.com/petenewcomb/tpool-go/ottpool"
	"go.uber.org/zap"
)

type scenarioParams struct {
	Objects  int
	Posts    int
	Duration time.Duration
	Period   time.Duration
	Window   time.Duration
}

type scenarioResult struct {
	Name      string
	Objects   int
	Callbacks int64
	Elapsed   time.Duration
	Detail    string
}

func (r scenarioResult) print(w io.Writer) {
	rate := 0.0
	if r.Elapsed > 0 {
		rate = float64(r.Callbacks) / r.Elapsed.Seconds()
	}
	fmt.Fprintf(w, "%-6s objects=%-5d callbacks=%-8d elapsed=%-12v rate=%.0f/s %s\n",
		r.Name, r.Objects, r.Callbacks, r.Elapsed.Round(time.Microsecond), rate, r.Detail)
}

type scenario func(ctx context.Context, pool *tpool.Pool, params scenarioParams) (scenarioResult, error)

var scenarios = map[string]scenario{
	"work":  runWork,
	"timer": runTimer,
	"wait":  runWait,
	"group": runGroup,
}

// scenarioOrder is the order in which "all" runs the scenarios.
var scenarioOrder = []string{"work", "timer", "wait", "group"}

// runWork posts each of a set of work objects repeatedly and waits for the
// resulting callbacks.
func runWork(ctx context.Context, pool *tpool.Pool, params scenarioParams) (scenarioResult, error) {
	var count atomic.Int64
	cb := ottpool.InstrumentedWork(ctx, "tpoolbench.work",
		func(context.Context, *tpool.CallbackInstance, any, *tpool.Work) {
			count.Add(1)
		})

	works := make([]*tpool.Work, 0, params.Objects)
	defer func() {
		for _, w := range works {
			w.Release()
		}
	}()
	for range params.Objects {
		w, err := tpool.NewWork(cb, nil, &tpool.Environment{Pool: pool})
		if err != nil {
			return scenarioResult{}, fmt.Errorf("creating work: %w", err)
		}
		works = append(works, w)
	}

	start := time.Now()
	for range params.Posts {
		for _, w := range works {
			w.Post()
		}
	}
	for _, w := range works {
		w.WaitForCallbacks(false)
	}
	return scenarioResult{
		Name:      "work",
		Objects:   params.Objects,
		Callbacks: count.Load(),
		Elapsed:   time.Since(start),
		Detail:    fmt.Sprintf("posted=%d", params.Objects*params.Posts),
	}, nil
}

// runTimer arms a set of periodic timers and lets them fire for the
// configured duration.
func runTimer(ctx context.Context, pool *tpool.Pool, params scenarioParams) (scenarioResult, error) {
	var count atomic.Int64
	cb := ottpool.InstrumentedTimer(ctx, "tpoolbench.timer",
		func(context.Context, *tpool.CallbackInstance, any, *tpool.Timer) {
			count.Add(1)
		})

	timers := make([]*tpool.Timer, 0, params.Objects)
	defer func() {
		for _, t := range timers {
			t.Release()
		}
	}()
	for range params.Objects {
		t, err := tpool.NewTimer(cb, nil, &tpool.Environment{Pool: pool})
		if err != nil {
			return scenarioResult{}, fmt.Errorf("creating timer: %w", err)
		}
		timers = append(timers, t)
	}

	start := time.Now()
	for _, t := range timers {
		t.Set(tpool.Relative(params.Period), params.Period, params.Window)
	}
	select {
	case <-ctx.Done():
	case <-time.After(params.Duration):
	}
	for _, t := range timers {
		t.Set(nil, 0, 0)
	}
	for _, t := range timers {
		t.WaitForCallbacks(true)
	}
	elapsed := time.Since(start)

	expected := int64(params.Objects) * int64(params.Duration/params.Period)
	return scenarioResult{
		Name:      "timer",
		Objects:   params.Objects,
		Callbacks: count.Load(),
		Elapsed:   elapsed,
		Detail:    fmt.Sprintf("expected~%d period=%v window=%v", expected, params.Period, params.Window),
	}, nil
}

// runWait arms one wait per auto-reset event and signals each event Posts
// times, re-arming the wait from its own callback.
func runWait(ctx context.Context, pool *tpool.Pool, params scenarioParams) (scenarioResult, error) {
	var signaled, timedOut atomic.Int64
	var remaining sync.WaitGroup
	events := make([]*tpool.Event, params.Objects)
	for i := range events {
		events[i] = tpool.NewEvent(false, false)
	}

	cb := ottpool.InstrumentedWait(ctx, "tpoolbench.wait",
		func(_ context.Context, _ *tpool.CallbackInstance, userdata any, wait *tpool.Wait, result tpool.WaitResult) {
			wait.Set(events[userdata.(int)], tpool.Relative(params.Duration))
			if result == tpool.WaitSignaled {
				signaled.Add(1)
				remaining.Done()
			} else {
				timedOut.Add(1)
			}
		})

	waits := make([]*tpool.Wait, 0, params.Objects)
	defer func() {
		for _, w := range waits {
			w.Release()
		}
	}()
	for i := range params.Objects {
		w, err := tpool.NewWait(cb, i, &tpool.Environment{Pool: pool})
		if err != nil {
			return scenarioResult{}, fmt.Errorf("creating wait %d: %w", i, err)
		}
		waits = append(waits, w)
		w.Set(events[i], tpool.Relative(params.Duration))
	}
	buckets := len(tpool.ReadWaitQueueStats().Buckets)

	start := time.Now()
	remaining.Add(params.Objects * params.Posts)
	for range params.Posts {
		for _, ev := range events {
			ev.Set()
		}
		// Give each wait a chance to consume its signal and re-arm before the
		// next round; otherwise an auto-reset event may absorb two signals.
		for !allClear(events) {
			if ctx.Err() != nil {
				return scenarioResult{}, ctx.Err()
			}
			time.Sleep(100 * time.Microsecond)
		}
	}
	remaining.Wait()
	for _, w := range waits {
		w.Set(nil, nil)
	}
	for _, w := range waits {
		w.WaitForCallbacks(true)
	}

	return scenarioResult{
		Name:      "wait",
		Objects:   params.Objects,
		Callbacks: signaled.Load() + timedOut.Load(),
		Elapsed:   time.Since(start),
		Detail:    fmt.Sprintf("signaled=%d timeouts=%d buckets=%d", signaled.Load(), timedOut.Load(), buckets),
	}, nil
}

func allClear(events []*tpool.Event) bool {
	for _, ev := range events {
		if ev.IsSet() {
			return false
		}
	}
	return true
}

// runGroup queues callbacks from several kinds of object in one cleanup
// group and tears the group down with cancellation.
func runGroup(ctx context.Context, pool *tpool.Pool, params scenarioParams) (scenarioResult, error) {
	group := tpool.NewCleanupGroup()
	defer group.Release()

	var ran, cancelled atomic.Int64
	env := &tpool.Environment{
		Pool:         pool,
		CleanupGroup: group,
		CancelCallback: func(any, any) {
			cancelled.Add(1)
		},
	}

	start := time.Now()
	cb := ottpool.InstrumentedSimple(ctx, "tpoolbench.group",
		func(context.Context, *tpool.CallbackInstance, any) {
			ran.Add(1)
		})
	for range params.Objects {
		if err := tpool.TrySubmitCallback(cb, nil, env); err != nil {
			return scenarioResult{}, fmt.Errorf("submitting callback: %w", err)
		}
	}
	workCB := ottpool.InstrumentedWork(ctx, "tpoolbench.group.work",
		func(context.Context, *tpool.CallbackInstance, any, *tpool.Work) {
			ran.Add(1)
		})
	for range params.Objects {
		w, err := tpool.NewWork(workCB, nil, env)
		if err != nil {
			return scenarioResult{}, fmt.Errorf("creating work: %w", err)
		}
		for range params.Posts {
			w.Post()
		}
	}
	members := group.Len()
	group.ReleaseMembers(true, nil)
	zap.L().Debug("cleanup group released",
		zap.Int("members", members),
		zap.Int64("ran", ran.Load()),
		zap.Int64("cancelled", cancelled.Load()))

	return scenarioResult{
		Name:      "group",
		Objects:   2 * params.Objects,
		Callbacks: ran.Load(),
		Elapsed:   time.Since(start),
		Detail:    fmt.Sprintf("members=%d cancelled=%d", members, cancelled.Load()),
	}, nil
}
