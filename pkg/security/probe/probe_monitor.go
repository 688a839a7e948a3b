// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"context"
	"fmt"

	"github.com/DataDog/cws-rename-probe/pkg/security/metrics"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/monitors/syscalls"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
)

// Monitor regroups all the work we want to do to monitor the probe
type Monitor struct {
	probe *Probe

	syscallsMonitor *syscalls.Monitor

	lastDiscarders kfilters.DiscarderStats
	lastDentry     dentry.Stats
}

// NewMonitor returns a new instance of a ProbeMonitor
func NewMonitor(p *Probe) *Monitor {
	return &Monitor{
		probe:           p,
		syscallsMonitor: syscalls.NewSyscallsMonitor(p.syscalls, p.StatsdClient),
		lastDentry:      dentry.Stats{TailCallFailed: make(map[dentry.ProgType]uint64)},
	}
}

// Start sends the stats at the configured interval until the context is done
func (m *Monitor) Start(ctx context.Context) {
	interval := m.probe.Config.StatsPollingInterval
	if interval <= 0 {
		return
	}

	ticker := m.probe.Opts.Clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.SendStats(); err != nil {
				seclog.Debugf("failed to send probe stats: %v", err)
			}
		}
	}
}

func (m *Monitor) count(name string, value uint64, tags []string) error {
	if value == 0 {
		return nil
	}
	return m.probe.StatsdClient.Count(name, int64(value), tags, 1.0)
}

func (m *Monitor) sendEventsStats() error {
	stats := m.probe.eventsStats

	for _, eventType := range model.AllEventTypes() {
		s := stats.get(eventType)
		tags := []string{fmt.Sprintf("event_type:%s", eventType)}

		if err := m.count(metrics.MetricEventSent, s.Sent.Swap(0), tags); err != nil {
			return err
		}
		if err := m.count(metrics.MetricEventLost, s.Lost.Swap(0), tags); err != nil {
			return err
		}
		if err := m.count(metrics.MetricEventDiscarded, s.Discarded.Swap(0), tags); err != nil {
			return err
		}
		if err := m.count(metrics.MetricEventUnhandledError, s.UnhandledError.Swap(0), tags); err != nil {
			return err
		}
		for reason := DropReason(0); reason < maxDropReason; reason++ {
			reasonTags := append([]string{fmt.Sprintf("reason:%s", reason)}, tags...)
			if err := m.count(metrics.MetricEventDropped, s.Dropped[reason].Swap(0), reasonTags); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Monitor) sendDiscarderStats() error {
	stats := m.probe.discarders.Stats()
	last := m.lastDiscarders
	m.lastDiscarders = stats

	for name, value := range map[string]uint64{
		metrics.MetricDiscarderAdded:            stats.DiscarderAdded - last.DiscarderAdded,
		metrics.MetricEventDiscardedByDiscarder: stats.EventDiscarded - last.EventDiscarded,
		metrics.MetricDiscarderExpired:          stats.DiscarderExpired - last.DiscarderExpired,
		metrics.MetricMountRevisionBumped:       stats.RevisionBumped - last.RevisionBumped,
	} {
		if err := m.count(name, value, []string{}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) sendDentryStats() error {
	stats := m.probe.dentryResolver.Stats()
	last := m.lastDentry
	m.lastDentry = stats

	if err := m.count(metrics.MetricDentryResolverTruncated, stats.Truncated-last.Truncated, []string{metrics.KernelTag}); err != nil {
		return err
	}
	for progType, value := range stats.TailCallFailed {
		tags := []string{fmt.Sprintf("prog_type:%s", progType)}
		if err := m.count(metrics.MetricDentryResolverTailCallFailed, value-last.TailCallFailed[progType], tags); err != nil {
			return err
		}
	}
	return nil
}

// SendStats sends statistics about the probe to Datadog
func (m *Monitor) SendStats() error {
	if err := m.probe.resolvers.SendStats(); err != nil {
		return err
	}
	if err := m.sendEventsStats(); err != nil {
		return fmt.Errorf("failed to send events stats: %w", err)
	}
	if err := m.sendDiscarderStats(); err != nil {
		return fmt.Errorf("failed to send discarder stats: %w", err)
	}
	if err := m.sendDentryStats(); err != nil {
		return fmt.Errorf("failed to send dentry resolver stats: %w", err)
	}
	if err := m.syscallsMonitor.SendStats(); err != nil {
		return fmt.Errorf("failed to send syscalls stats: %w", err)
	}
	return nil
}
