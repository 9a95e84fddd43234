// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool_test

import (
	"fmt"
	"time"

	"github.com/petenewcomb/tpool-go"
)

// Demonstrates a periodic timer that disarms itself after a few ticks.
func ExampleTimer_Set() {
	pool := tpool.NewPool()
	defer pool.Release()

	done := make(chan struct{})
	ticks := 0
	timer, err := tpool.NewTimer(func(inst *tpool.CallbackInstance, userdata any, timer *tpool.Timer) {
		ticks++
		fmt.Println("tick", ticks)
		if ticks == 3 {
			timer.Set(nil, 0, 0)
			close(done)
		}
	}, nil, &tpool.Environment{Pool: pool})
	if err != nil {
		fmt.Println(err)
		return
	}
	defer timer.Release()

	// Periodic callbacks of one timer never overlap when the period is long
	// enough for each to finish.
	timer.Set(tpool.Relative(10*time.Millisecond), 20*time.Millisecond, 0)
	<-done
	timer.WaitForCallbacks(true)
	fmt.Println("armed:", timer.IsSet())

	// Output:
	// tick 1
	// tick 2
	// tick 3
	// armed: false
}
