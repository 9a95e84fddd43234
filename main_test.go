// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool_test

import (
	"os"
	"testing"
	"time"

	"github.com/petenewcomb/tpool-go"
)

const testTimeout = 5 * time.Second

func TestMain(m *testing.M) {
	cfg := tpool.DefaultConfig()
	cfg.WorkerIdleTimeout = 200 * time.Millisecond
	cfg.TimerQueueIdleTimeout = 200 * time.Millisecond
	cfg.BucketIdleTimeout = 200 * time.Millisecond
	if err := tpool.Configure(cfg); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// newPool returns a pool that is released when the test ends.
func newPool(t *testing.T) *tpool.Pool {
	p := tpool.NewPool()
	t.Cleanup(p.Release)
	return p
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for callback")
	}
	panic("unreachable")
}

func requireNothing[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected receive: %v", v)
	case <-time.After(d):
	}
}
