// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package tpool

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/petenewcomb/tpool-go/internal/state"
)

// Config holds the process-wide tuning knobs of the runtime. Changes made with
// [Configure] restart idle timeouts already in progress with the new values
// and apply to pools and wait buckets created afterwards.
type Config struct {
	// How long an idle worker waits for new work before considering exit.
	WorkerIdleTimeout time.Duration `default:"5s" mapstructure:"worker_idle_timeout" yaml:"worker_idle_timeout"`

	// How long the timer service lingers after the last timer is released.
	TimerQueueIdleTimeout time.Duration `default:"5s" mapstructure:"timer_queue_idle_timeout" yaml:"timer_queue_idle_timeout"`

	// How long an empty wait bucket lingers before its goroutine exits.
	BucketIdleTimeout time.Duration `default:"5s" mapstructure:"bucket_idle_timeout" yaml:"bucket_idle_timeout"`

	// Number of waits a single bucket multiplexes. One slot of the classic
	// 64-object limit is reserved for the bucket's own update signal.
	BucketCapacity int `default:"63" mapstructure:"bucket_capacity" yaml:"bucket_capacity"`

	// Upper bound on workers for new pools, including the default pool.
	DefaultMaxWorkers int `default:"500" mapstructure:"default_max_workers" yaml:"default_max_workers"`

	// Process-wide cap on worker goroutines across all pools; 0 means
	// unlimited. Reaching it is treated like a failure to create a thread.
	MaxTotalWorkers int `default:"0" mapstructure:"max_total_workers" yaml:"max_total_workers"`

	// Cap on the number of wait buckets; 0 means unlimited. Allocating a wait
	// that needs a new bucket beyond the cap fails with [ErrOutOfResources].
	MaxWaitBuckets int `default:"0" mapstructure:"max_wait_buckets" yaml:"max_wait_buckets"`
}

// DefaultConfig returns the configuration in effect before any call to
// [Configure].
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func (c Config) Validate() error {
	switch {
	case c.WorkerIdleTimeout <= 0:
		return fmt.Errorf("%w: worker idle timeout %v must be positive", ErrInvalidConfig, c.WorkerIdleTimeout)
	case c.TimerQueueIdleTimeout <= 0:
		return fmt.Errorf("%w: timer queue idle timeout %v must be positive", ErrInvalidConfig, c.TimerQueueIdleTimeout)
	case c.BucketIdleTimeout <= 0:
		return fmt.Errorf("%w: bucket idle timeout %v must be positive", ErrInvalidConfig, c.BucketIdleTimeout)
	case c.BucketCapacity < 1:
		return fmt.Errorf("%w: bucket capacity %d must be at least 1", ErrInvalidConfig, c.BucketCapacity)
	case c.DefaultMaxWorkers < 1:
		return fmt.Errorf("%w: default max workers %d must be at least 1", ErrInvalidConfig, c.DefaultMaxWorkers)
	case c.MaxTotalWorkers < 0:
		return fmt.Errorf("%w: max total workers %d must not be negative", ErrInvalidConfig, c.MaxTotalWorkers)
	case c.MaxWaitBuckets < 0:
		return fmt.Errorf("%w: max wait buckets %d must not be negative", ErrInvalidConfig, c.MaxWaitBuckets)
	}
	return nil
}

var activeConfig state.Watched[*Config]

func init() {
	cfg := DefaultConfig()
	activeConfig.Store(&cfg)
}

// Configure validates cfg and makes it the active configuration.
func Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	activeConfig.Store(&cfg)
	logger().Debug("configuration replaced")
	return nil
}

// CurrentConfig returns the active configuration.
func CurrentConfig() Config {
	return *config()
}

func config() *Config {
	cfg, _ := activeConfig.Load()
	return cfg
}

// watchConfig returns the active configuration and a channel that is closed
// when it is replaced.
func watchConfig() (*Config, <-chan struct{}) {
	return activeConfig.Load()
}
