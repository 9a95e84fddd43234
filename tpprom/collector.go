// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package tpprom exports tpool runtime statistics to Prometheus.
package tpprom

import (
	"strconv"
	"strings"
	"sync"

	"github.com/petenewcomb/tpool-go"
	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "tpool"

// PoolStatsProvider is implemented by *tpool.Pool.
type PoolStatsProvider interface {
	Stats() tpool.PoolStats
}

// A Collector reports the statistics of a set of named pools, the timer
// queue and the wait queue each time it is scraped.
type Collector struct {
	mu    sync.RWMutex
	pools map[string]PoolStatsProvider

	poolWorkers     *prom.Desc
	poolBusyWorkers *prom.Desc
	poolMinWorkers  *prom.Desc
	poolMaxWorkers  *prom.Desc
	poolQueued      *prom.Desc
	poolObjects     *prom.Desc

	timerQueueRunning *prom.Desc
	timerQueueTimers  *prom.Desc
	timerQueuePending *prom.Desc

	waitBuckets     *prom.Desc
	waitBucketWaits *prom.Desc
	waitBucketArmed *prom.Desc
}

func NewCollector() *Collector {
	poolDesc := func(name, help string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName(namespace, "pool", name), help, []string{"pool"}, nil)
	}
	bucketDesc := func(name, help string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName(namespace, "wait_bucket", name), help, []string{"bucket"}, nil)
	}
	return &Collector{
		pools: make(map[string]PoolStatsProvider),

		poolWorkers:     poolDesc("workers", "Worker goroutines per pool."),
		poolBusyWorkers: poolDesc("busy_workers", "Workers running a callback per pool."),
		poolMinWorkers:  poolDesc("min_workers", "Minimum worker count per pool."),
		poolMaxWorkers:  poolDesc("max_workers", "Maximum worker count per pool."),
		poolQueued:      poolDesc("queued_objects", "Objects with pending callbacks per pool."),
		poolObjects:     poolDesc("objects", "Callback objects bound to each pool."),

		timerQueueRunning: prom.NewDesc(prom.BuildFQName(namespace, "timer_queue", "running"),
			"Timer queue state (1=running, 0=stopped).", nil, nil),
		timerQueueTimers: prom.NewDesc(prom.BuildFQName(namespace, "timer_queue", "timers"),
			"Timers registered with the timer queue.", nil, nil),
		timerQueuePending: prom.NewDesc(prom.BuildFQName(namespace, "timer_queue", "armed"),
			"Armed timers waiting for their due time.", nil, nil),

		waitBuckets: prom.NewDesc(prom.BuildFQName(namespace, "wait_queue", "buckets"),
			"Wait buckets in the wait queue.", nil, nil),
		waitBucketWaits: bucketDesc("waits", "Waits owned by each bucket."),
		waitBucketArmed: bucketDesc("armed", "Armed waits in each bucket."),
	}
}

// AddPool adds or replaces a pool by name. An empty name uses the pool's
// String form if it has one.
func (c *Collector) AddPool(name string, pool PoolStatsProvider) {
	if pool == nil {
		return
	}
	if name == "" {
		if s, ok := pool.(interface{ String() string }); ok {
			name = s.String()
		}
	}
	name = normalizeLabel(name, "pool")
	c.mu.Lock()
	c.pools[name] = pool
	c.mu.Unlock()
}

func (c *Collector) RemovePool(name string) {
	c.mu.Lock()
	delete(c.pools, normalizeLabel(name, "pool"))
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- c.poolWorkers
	ch <- c.poolBusyWorkers
	ch <- c.poolMinWorkers
	ch <- c.poolMaxWorkers
	ch <- c.poolQueued
	ch <- c.poolObjects
	ch <- c.timerQueueRunning
	ch <- c.timerQueueTimers
	ch <- c.timerQueuePending
	ch <- c.waitBuckets
	ch <- c.waitBucketWaits
	ch <- c.waitBucketArmed
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	gauge := func(desc *prom.Desc, v int, labels ...string) {
		ch <- prom.MustNewConstMetric(desc, prom.GaugeValue, float64(v), labels...)
	}

	c.mu.RLock()
	for name, pool := range c.pools {
		stats := pool.Stats()
		gauge(c.poolWorkers, stats.Workers, name)
		gauge(c.poolBusyWorkers, stats.BusyWorkers, name)
		gauge(c.poolMinWorkers, stats.MinWorkers, name)
		gauge(c.poolMaxWorkers, stats.MaxWorkers, name)
		gauge(c.poolQueued, stats.QueuedObjects, name)
		gauge(c.poolObjects, stats.Objects, name)
	}
	c.mu.RUnlock()

	tq := tpool.ReadTimerQueueStats()
	running := 0
	if tq.Running {
		running = 1
	}
	gauge(c.timerQueueRunning, running)
	gauge(c.timerQueueTimers, tq.Timers)
	gauge(c.timerQueuePending, tq.Pending)

	wq := tpool.ReadWaitQueueStats()
	gauge(c.waitBuckets, len(wq.Buckets))
	for _, b := range wq.Buckets {
		id := strconv.Itoa(b.ID)
		gauge(c.waitBucketWaits, b.Waits, id)
		gauge(c.waitBucketArmed, b.Armed, id)
	}
}

// Register creates a collector for the given pools, keyed by their String
// form, and registers it with reg, or with the default registerer if reg is
// nil.
func Register(reg prom.Registerer, pools ...*tpool.Pool) (*Collector, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	c := NewCollector()
	for _, p := range pools {
		c.AddPool("", p)
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func normalizeLabel(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
