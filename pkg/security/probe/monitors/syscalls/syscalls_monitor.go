// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package syscalls holds syscalls related files
package syscalls

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/metrics"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/syscallcache"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// Monitor defines a syscall cache monitor
type Monitor struct {
	statsdClient statsd.ClientInterface
	cache        *syscallcache.Cache
	enabled      *atomic.Bool

	lastSlotBusy uint64
}

// SendStats send stats
func (d *Monitor) SendStats() error {
	if !d.enabled.Load() {
		return nil
	}

	stats := d.cache.Stats()
	tags := []string{fmt.Sprintf("event_type:%s", model.FileRenameEventType)}

	if err := d.statsdClient.Gauge(metrics.MetricSyscallCacheInFlight, float64(stats.InFlight), []string{}, 1.0); err != nil {
		return err
	}

	if delta := stats.SlotBusy - d.lastSlotBusy; delta > 0 {
		if err := d.statsdClient.Count(metrics.MetricSyscallCacheSlotBusy, int64(delta), tags, 1.0); err != nil {
			return err
		}
	}
	d.lastSlotBusy = stats.SlotBusy

	return nil
}

// Enable the monitor
func (d *Monitor) Enable() {
	d.enabled.Store(true)
}

// Disable the monitor
func (d *Monitor) Disable() {
	d.enabled.Store(false)
}

// NewSyscallsMonitor returns a new Monitor
func NewSyscallsMonitor(cache *syscallcache.Cache, statsdClient statsd.ClientInterface) *Monitor {
	return &Monitor{
		statsdClient: statsdClient,
		cache:        cache,
		enabled:      atomic.NewBool(true),
	}
}
