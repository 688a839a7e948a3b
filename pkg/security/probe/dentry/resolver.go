// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dentry holds the kernel side of the dentry resolution: the programs
// walking the dentry chain and writing the path leaves to the pathnames map
package dentry

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// ResolverState is the cursor of a resolution, persisted between two invocations
type ResolverState struct {
	Dentry    vfs.Dentry
	Key       model.PathKey
	Iteration uint32
	Callback  uint32
	Ret       int32
}

// Reset prepares the state for a new resolution
func (s *ResolverState) Reset(d vfs.Dentry, key model.PathKey, callback uint32) {
	*s = ResolverState{
		Dentry:   d,
		Key:      key,
		Callback: callback,
	}
}

// StateLookup returns the resolver state of the in-flight syscall of the current task
type StateLookup func(ctx *vfs.ProbeContext) *ResolverState

// PathIDLookup returns the current path id of a mount
type PathIDLookup func(mountID uint32) uint32

// Opts defines the resolver limits
type Opts struct {
	MaxTailCalls      uint32
	MaxIterationDepth uint32
}

type progTables struct {
	progs     *ProgArray
	callbacks *ProgArray
}

// Resolver is the kernel dentry resolver
type Resolver struct {
	pathnames  *dentry.PathnamesMap
	opts       Opts
	lookup     StateLookup
	pathID     PathIDLookup
	trampoline *Trampoline
	tables     map[ProgType]progTables

	truncated         *atomic.Uint64
	segmentsTruncated *atomic.Uint64
	tailCallFailed    map[ProgType]*atomic.Uint64
}

// NewResolver returns a new kernel dentry resolver and loads its programs
func NewResolver(pathnames *dentry.PathnamesMap, opts Opts, lookup StateLookup, pathID PathIDLookup) (*Resolver, error) {
	if opts.MaxIterationDepth == 0 {
		return nil, fmt.Errorf("invalid dentry resolver iteration depth %d", opts.MaxIterationDepth)
	}
	// one slot is left to the callback
	if opts.MaxTailCalls == 0 || opts.MaxTailCalls >= MaxTailCallCount {
		return nil, fmt.Errorf("invalid dentry resolver tail call count %d, must be in [1, %d]", opts.MaxTailCalls, MaxTailCallCount-1)
	}
	if pathID == nil {
		pathID = func(uint32) uint32 { return 0 }
	}

	r := &Resolver{
		pathnames:         pathnames,
		opts:              opts,
		lookup:            lookup,
		pathID:            pathID,
		trampoline:        NewTrampoline(MaxTailCallCount),
		tables:            make(map[ProgType]progTables),
		truncated:         atomic.NewUint64(0),
		segmentsTruncated: atomic.NewUint64(0),
		tailCallFailed:    make(map[ProgType]*atomic.Uint64),
	}

	for _, progType := range []ProgType{KprobeOrFentryType, TracepointType} {
		tables := progTables{
			progs:     NewProgArray(fmt.Sprintf("dentry_resolver_%s_progs", progType)),
			callbacks: NewProgArray(fmt.Sprintf("dentry_resolver_%s_callbacks", progType)),
		}
		tables.progs.Set(DentryResolverKernKey, r.kernProgram(tables))
		r.tables[progType] = tables
		r.tailCallFailed[progType] = atomic.NewUint64(0)
	}

	return r, nil
}

// Progs returns the resolver programs table of a program type
func (r *Resolver) Progs(progType ProgType) *ProgArray {
	return r.tables[progType].progs
}

// Callbacks returns the callbacks table of a program type
func (r *Resolver) Callbacks(progType ProgType) *ProgArray {
	return r.tables[progType].callbacks
}

// ResolveDentry tail calls the resolver, an error means that the resolution
// couldn't complete and that the caller still owns its syscall
func (r *Resolver) ResolveDentry(ctx *vfs.ProbeContext, progType ProgType) error {
	if err := r.trampoline.Run(ctx, r.Progs(progType), DentryResolverKernKey); err != nil {
		r.tailCallFailed[progType].Inc()
		return err
	}
	return nil
}

func (r *Resolver) kernProgram(tables progTables) Program {
	return func(ctx *vfs.ProbeContext) (TailCall, error) {
		state := r.lookup(ctx)
		if state == nil {
			return TailCall{}, nil
		}

		state.Iteration++
		state.Ret = r.resolveStep(state)
		if state.Ret > 0 {
			if state.Iteration < r.opts.MaxTailCalls && state.Key.Inode != 0 {
				return TailCall{Table: tables.progs, Key: DentryResolverKernKey}, nil
			}
			state.Ret += int32(r.opts.MaxIterationDepth * (state.Iteration - 1))
		}

		if state.Callback != DRNoCallback {
			return TailCall{Table: tables.callbacks, Key: state.Callback}, nil
		}
		return TailCall{}, nil
	}
}

// resolveStep walks at most MaxIterationDepth parents, writing one leaf per
// dentry. It returns the number of segments resolved when the root was
// reached, MaxIterationDepth when more parents have to be walked.
func (r *Resolver) resolveStep(state *ResolverState) int32 {
	key := state.Key
	d := state.Dentry
	if key.Inode == 0 || d == nil {
		return DentryInvalid
	}

	var next model.PathKey
	for i := uint32(0); i < r.opts.MaxIterationDepth; i++ {
		parent := d.Parent()
		if parent == d {
			next = model.PathKey{}
		} else {
			mountID := parent.Mount().ID
			next = model.PathKey{Inode: parent.Ino(), MountID: mountID, PathID: r.pathID(mountID)}
		}

		name := d.Name()
		if name == "/" || name == "" {
			name = "/"
			next = model.PathKey{}
		}

		leaf := model.PathLeaf{Parent: next}
		if leaf.SetName(name) {
			r.segmentsTruncated.Inc()
		}
		r.pathnames.Update(key, leaf)

		d = parent
		if next.Inode == 0 {
			state.Dentry = d
			state.Key = next
			return int32(i + 1)
		}
		key = next
	}

	if state.Iteration == r.opts.MaxTailCalls {
		// the user space resolver stops on the empty name
		r.pathnames.Update(next, model.PathLeaf{})
		r.truncated.Inc()
	}

	state.Dentry = d
	state.Key = next
	return int32(r.opts.MaxIterationDepth)
}

// Stats holds the kernel resolver counters
type Stats struct {
	Truncated         uint64
	SegmentsTruncated uint64
	TailCallFailed    map[ProgType]uint64
}

// Stats returns the resolver counters
func (r *Resolver) Stats() Stats {
	stats := Stats{
		Truncated:         r.truncated.Load(),
		SegmentsTruncated: r.segmentsTruncated.Load(),
		TailCallFailed:    make(map[ProgType]uint64),
	}
	for progType, counter := range r.tailCallFailed {
		stats.TailCallFailed[progType] = counter.Load()
	}
	return stats
}
