// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package module holds the rename probe module: the probe attached to a
// filesystem and the output of its events
package module

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/serializers"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// Opts defines the module options
type Opts struct {
	ProbeOpts probe.Opts
	FSOpts    vfs.Options
	// Output receives one JSON document per event, events are only counted when nil
	Output io.Writer
}

// Module represents the rename probe module
type Module struct {
	sync.Mutex

	config       *config.Config
	probe        *probe.Probe
	fs           *vfs.FS
	statsdClient statsd.ClientInterface
	clock        clock.Clock

	output     *bufio.Writer
	eventsSent *atomic.Uint64
	errors     *atomic.Uint64
}

// NewModule instantiates the probe and attaches it to a new filesystem
func NewModule(cfg *config.Config, statsdClient statsd.ClientInterface, opts Opts) (*Module, error) {
	if opts.ProbeOpts.Clock == nil {
		opts.ProbeOpts.Clock = clock.New()
	}
	if opts.FSOpts.Clock == nil {
		opts.FSOpts.Clock = opts.ProbeOpts.Clock
	}
	opts.ProbeOpts.StatsdClient = statsdClient

	p, err := probe.NewProbe(cfg, opts.ProbeOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create the probe: %w", err)
	}

	fs := vfs.New(opts.FSOpts)
	if err := p.Attach(fs); err != nil {
		return nil, err
	}

	m := &Module{
		config:       cfg,
		probe:        p,
		fs:           fs,
		statsdClient: statsdClient,
		clock:        opts.ProbeOpts.Clock,
		eventsSent:   atomic.NewUint64(0),
		errors:       atomic.NewUint64(0),
	}
	if opts.Output != nil {
		m.output = bufio.NewWriter(opts.Output)
	}

	return m, nil
}

// HandleEvent writes an event to the output
func (m *Module) HandleEvent(event *model.Event) {
	m.eventsSent.Inc()
	if m.output == nil {
		return
	}

	var args []string
	if id := event.Rename.SyscallContext.ID; id != 0 {
		if syscallCtx, ok := m.probe.GetSyscallContexts().Get(id); ok {
			args = syscallCtx.Args
		}
	}

	data, err := serializers.MarshalEvent(event, m.clock.Now(), args)
	if err != nil {
		m.errors.Inc()
		seclog.Errorf("failed to serialize event: %v", err)
		return
	}

	m.Lock()
	defer m.Unlock()

	if _, err := m.output.Write(append(data, '\n')); err != nil {
		m.errors.Inc()
		seclog.Errorf("failed to write event: %v", err)
	}
}

// Flush hands the pending events to the output
func (m *Module) Flush() error {
	m.probe.Flush(m)

	if m.output == nil {
		return nil
	}

	m.Lock()
	defer m.Unlock()
	return m.output.Flush()
}

// Close detaches the probe, flushes the pending events and sends the stats
func (m *Module) Close() error {
	m.probe.Detach()
	if err := m.Flush(); err != nil {
		return err
	}
	return m.probe.SendStats()
}

// GetProbe returns the probe of the module
func (m *Module) GetProbe() *probe.Probe {
	return m.probe
}

// GetFS returns the filesystem the probe is attached to
func (m *Module) GetFS() *vfs.FS {
	return m.fs
}

// GetStats returns the module counters
func (m *Module) GetStats() map[string]interface{} {
	stats := m.probe.GetEventsStats()
	return map[string]interface{}{
		"events_written":   m.eventsSent.Load(),
		"write_errors":     m.errors.Load(),
		"events_sent":      stats.GetSent(model.FileRenameEventType),
		"events_lost":      stats.GetLost(model.FileRenameEventType),
		"events_discarded": stats.GetDiscarded(model.FileRenameEventType),
	}
}
