// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package probe holds probe related files
package probe

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/benbjohnson/clock"

	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/constantfetch"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/eventstream/ringbuffer"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/syscallcache"
	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// EventHandler represents an handler for the events sent by the probe
type EventHandler interface {
	HandleEvent(event *model.Event)
}

// EventHandlerFunc adapts a function to the EventHandler interface
type EventHandlerFunc func(event *model.Event)

// HandleEvent calls the function
func (f EventHandlerFunc) HandleEvent(event *model.Event) {
	f(event)
}

// Opts defines some probe options
type Opts struct {
	// StatsdClient to be used for probe stats
	StatsdClient statsd.ClientInterface
	// Clock used by the discarders and the stats loop
	Clock clock.Clock
	// UseSyscallExitTracepoint handles the syscall exits from the raw sys_exit tracepoint instead of the kretprobes
	UseSyscallExitTracepoint bool
	// DontHookDoRenameat2 leaves do_renameat2 unhooked, asynchronous renames are then not reported
	DontHookDoRenameat2 bool
	// Layout overrides the vfs_rename layout resolved from the constant fetchers
	Layout *constantfetch.Layout
	// Policies overrides the policies loaded from the policy file
	Policies kfilters.Policies
}

func (o *Opts) normalize() {
	if o.StatsdClient == nil {
		o.StatsdClient = &statsd.NoOpClient{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// Probe represents the rename probe
type Probe struct {
	Opts         Opts
	Config       *config.Config
	StatsdClient statsd.ClientInterface

	fs     *vfs.FS
	layout constantfetch.Layout

	syscalls        *syscallcache.Cache
	contexts        *syscallcache.Contexts
	policies        kfilters.Policies
	discarders      *kfilters.InodeDiscarders
	pathIDs         *pathIDs
	dentryResolver  *dentry.Resolver
	resolvers       *resolvers.Resolvers
	ringBuffer      *ringbuffer.RingBuffer
	unhandledErrors map[int64]bool
	eventsStats     *EventsStats
	monitor         *Monitor

	// random returns the low bits of the fake inodes
	random func() uint32
}

// NewProbe instantiates a new probe
func NewProbe(cfg *config.Config, opts Opts) (*Probe, error) {
	opts.normalize()

	p := &Probe{
		Opts:            opts,
		Config:          cfg,
		StatsdClient:    opts.StatsdClient,
		pathIDs:         newPathIDs(),
		unhandledErrors: make(map[int64]bool),
		eventsStats:     NewEventsStats(),
		random:          rand.Uint32,
	}

	var err error
	if p.syscalls, err = syscallcache.New(cfg.SyscallCacheSize); err != nil {
		return nil, err
	}
	if p.contexts, err = syscallcache.NewContexts(cfg.SyscallContextCacheSize); err != nil {
		return nil, err
	}

	if p.policies, err = p.loadPolicies(); err != nil {
		return nil, err
	}
	if p.discarders, err = kfilters.NewInodeDiscarders(cfg.DiscarderMapSize, cfg.DiscarderRetention, cfg.MaxParentDiscarderDepth, opts.Clock); err != nil {
		return nil, fmt.Errorf("failed to create the discarders: %w", err)
	}

	if p.resolvers, err = resolvers.NewResolvers(cfg, p.StatsdClient, opts.Clock); err != nil {
		return nil, err
	}

	p.dentryResolver, err = dentry.NewResolver(p.resolvers.DentryResolver.Pathnames(), dentry.Opts{
		MaxTailCalls:      uint32(cfg.DentryResolverMaxTailCalls),
		MaxIterationDepth: uint32(cfg.DentryResolverMaxIterationDepth),
	}, p.resolverState, p.pathIDs.current)
	if err != nil {
		return nil, err
	}
	for _, progType := range []dentry.ProgType{dentry.KprobeOrFentryType, dentry.TracepointType} {
		key := dentry.SelectDRKey(progType, dentry.DentryResolverRenameCallbackKprobeKey, dentry.DentryResolverRenameCallbackTracepointKey)
		p.dentryResolver.Callbacks(progType).Set(key, p.drRenameCallback)
	}

	if p.ringBuffer, err = ringbuffer.New(cfg.EventRingBufferSize); err != nil {
		return nil, err
	}
	p.ringBuffer.SetMonitor(p.eventsStats)

	for _, retval := range cfg.UnhandledErrors {
		p.unhandledErrors[retval] = true
	}

	p.monitor = NewMonitor(p)

	return p, nil
}

// Attach resolves the vfs_rename layout of the filesystem kernel, applies the
// policy discarders and attaches the rename hooks
func (p *Probe) Attach(fs *vfs.FS) error {
	if p.Opts.Layout != nil {
		p.layout = *p.Opts.Layout
	} else {
		kv := fs.KernelVersion()
		layout, err := constantfetch.ResolveLayout(p.getConstantFetcher(kv), kv)
		if err != nil {
			return fmt.Errorf("failed to resolve the vfs_rename layout: %w", err)
		}
		p.layout = layout
	}
	seclog.Infof("vfs_rename layout: %s", p.layout)

	p.fs = fs
	if err := p.applyPolicyDiscarders(fs); err != nil {
		seclog.Warnf("failed to apply the policy discarders: %v", err)
	}

	fs.Attach(p)
	return nil
}

// Detach removes the rename hooks
func (p *Probe) Detach() {
	if p.fs != nil {
		p.fs.Attach(nil)
	}
}

// Start consumes the events until the context is done and periodically sends the stats
func (p *Probe) Start(ctx context.Context, wg *sync.WaitGroup, handler EventHandler) {
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.monitor.Start(ctx)
	}()

	go func() {
		defer wg.Done()
		_ = p.ringBuffer.Read(ctx, func(data []byte) {
			p.handleEvent(data, handler)
		})
	}()
}

// Flush decodes the pending events, it returns the number of events handled
func (p *Probe) Flush(handler EventHandler) int {
	var count int
	for {
		data, ok := p.ringBuffer.Poll()
		if !ok {
			return count
		}
		p.handleEvent(data, handler)
		count++
	}
}

func (p *Probe) handleEvent(data []byte, handler EventHandler) {
	event, err := p.DecodeEvent(data)
	if err != nil {
		seclog.Errorf("failed to decode event: %v", err)
		return
	}
	handler.HandleEvent(event)
}

// SendStats sends the probe statistics
func (p *Probe) SendStats() error {
	return p.monitor.SendStats()
}

// GetResolvers returns the resolvers of the probe
func (p *Probe) GetResolvers() *resolvers.Resolvers {
	return p.resolvers
}

// GetDiscarders returns the inode discarders
func (p *Probe) GetDiscarders() *kfilters.InodeDiscarders {
	return p.discarders
}

// GetSyscallCache returns the in-flight syscalls
func (p *Probe) GetSyscallCache() *syscallcache.Cache {
	return p.syscalls
}

// GetSyscallContexts returns the syscall arguments captured by the synchronous syscalls
func (p *Probe) GetSyscallContexts() *syscallcache.Contexts {
	return p.contexts
}

// GetEventsStats returns the events statistics
func (p *Probe) GetEventsStats() *EventsStats {
	return p.eventsStats
}

// GetLayout returns the vfs_rename layout in use
func (p *Probe) GetLayout() constantfetch.Layout {
	return p.layout
}

// IsUnhandledError returns whether no event is generated for a return value
func (p *Probe) IsUnhandledError(retval int64) bool {
	return retval < 0 && p.unhandledErrors[retval]
}
