// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package tpconfig loads [tpool.Config] from configuration files and TPOOL_*
// environment variables.
//
// Keys are the mapstructure names of the Config fields, for example:
//
//	worker_idle_timeout: 10s
//	bucket_capacity: 63
//
// TPOOL_WORKER_IDLE_TIMEOUT=10s overrides the file.
package tpconfig

import (
	"fmt"
	"strings"

	"github.com/petenewcomb/tpool-go"
	"github.com/spf13/viper"
)

const EnvPrefix = "TPOOL"

// Keys lists the configuration keys in declaration order.
var Keys = []string{
	"worker_idle_timeout",
	"timer_queue_idle_timeout",
	"bucket_idle_timeout",
	"bucket_capacity",
	"default_max_workers",
	"max_total_workers",
	"max_wait_buckets",
}

// New returns a viper instance with every key defaulted from
// [tpool.DefaultConfig] and environment overrides enabled. Callers may bind
// command-line flags to it before calling [Decode].
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := tpool.DefaultConfig()
	v.SetDefault("worker_idle_timeout", def.WorkerIdleTimeout)
	v.SetDefault("timer_queue_idle_timeout", def.TimerQueueIdleTimeout)
	v.SetDefault("bucket_idle_timeout", def.BucketIdleTimeout)
	v.SetDefault("bucket_capacity", def.BucketCapacity)
	v.SetDefault("default_max_workers", def.DefaultMaxWorkers)
	v.SetDefault("max_total_workers", def.MaxTotalWorkers)
	v.SetDefault("max_wait_buckets", def.MaxWaitBuckets)
	return v
}

// ReadFile merges the configuration file at path into v. The format follows
// the file extension.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// Decode extracts and validates the configuration held by v.
func Decode(v *viper.Viper) (tpool.Config, error) {
	var cfg tpool.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return tpool.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return tpool.Config{}, err
	}
	return cfg, nil
}

// Load returns the configuration from the file at path, if path is not
// empty, overridden by the environment.
func Load(path string) (tpool.Config, error) {
	v := New()
	if path != "" {
		if err := ReadFile(v, path); err != nil {
			return tpool.Config{}, err
		}
	}
	return Decode(v)
}

// Apply loads the configuration like [Load] and makes it active.
func Apply(path string) (tpool.Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return tpool.Config{}, err
	}
	if err := tpool.Configure(cfg); err != nil {
		return tpool.Config{}, err
	}
	return cfg, nil
}
