// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package syscallcache holds the in-flight syscalls, one slot per thread and event type
package syscallcache

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// ErrSlotBusy is returned when a syscall of the same type is already in flight for the thread
var ErrSlotBusy = errors.New("syscall slot busy")

// Stage is the progress of an in-flight syscall
type Stage uint8

// Syscall stages
const (
	// PendingVFS the syscall entry was seen, the vfs hook didn't fire yet
	PendingVFS Stage = iota
	// VFSDetailed the vfs hook captured the dentries
	VFSDetailed
	// Resolving the exit hook started the path resolution
	Resolving
	// Done the event was assembled
	Done
)

func (s Stage) String() string {
	switch s {
	case PendingVFS:
		return "pending_vfs"
	case VFSDetailed:
		return "vfs_detailed"
	case Resolving:
		return "resolving"
	case Done:
		return "done"
	}
	return "unknown"
}

// RenameCache holds the rename specific part of a syscall
type RenameCache struct {
	SrcDentry    vfs.Dentry
	TargetDentry vfs.Dentry
	SrcFile      model.FileFields
	TargetFile   model.FileFields
	// Flags renameat2 flags, only known for synchronous syscalls
	Flags uint32
}

// SyscallCache is an in-flight syscall
type SyscallCache struct {
	Type     model.EventType
	Async    bool
	Policy   kfilters.FilterPolicy
	State    kfilters.SyscallState
	Stage    Stage
	Rename   RenameCache
	Retval   int64
	Resolver dentry.ResolverState
	CtxID    uint64
}

type cacheKey struct {
	tid       uint32
	eventType model.EventType
}

// Cache stores the in-flight syscalls. Each slot is only accessed by the
// thread owning it, stale slots age out of the LRU.
type Cache struct {
	entries *lru.Cache[cacheKey, *SyscallCache]

	slotBusy  *atomic.Uint64
	overwrite *atomic.Uint64
	// the eviction callback also fires on Pop
	removed *atomic.Uint64
	popped  *atomic.Uint64
}

// New returns a new syscall cache
func New(size int) (*Cache, error) {
	c := &Cache{
		slotBusy:  atomic.NewUint64(0),
		overwrite: atomic.NewUint64(0),
		removed:   atomic.NewUint64(0),
		popped:    atomic.NewUint64(0),
	}

	entries, err := lru.NewWithEvict[cacheKey, *SyscallCache](size, func(cacheKey, *SyscallCache) {
		c.removed.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create syscall cache: %w", err)
	}
	c.entries = entries

	return c, nil
}

// Push stores a new in-flight syscall, it fails when a syscall of the same type is already in flight for the thread
func (c *Cache) Push(tid uint32, record *SyscallCache) error {
	if found, _ := c.entries.ContainsOrAdd(cacheKey{tid: tid, eventType: record.Type}, record); found {
		c.slotBusy.Inc()
		return ErrSlotBusy
	}
	return nil
}

// PushAsyncFallback stores a syscall over a stale slot left by a syscall
// whose exit was never seen. It returns whether a slot was overwritten.
func (c *Cache) PushAsyncFallback(tid uint32, record *SyscallCache) bool {
	key := cacheKey{tid: tid, eventType: record.Type}
	overwritten := c.entries.Contains(key)
	if overwritten {
		c.overwrite.Inc()
	}
	c.entries.Add(key, record)
	return overwritten
}

// Peek returns the in-flight syscall of the given type, nil if there is none
func (c *Cache) Peek(tid uint32, eventType model.EventType) *SyscallCache {
	record, ok := c.entries.Get(cacheKey{tid: tid, eventType: eventType})
	if !ok {
		return nil
	}
	return record
}

// Pop removes and returns the in-flight syscall of the given type, nil if there is none
func (c *Cache) Pop(tid uint32, eventType model.EventType) *SyscallCache {
	key := cacheKey{tid: tid, eventType: eventType}
	record, ok := c.entries.Peek(key)
	if !ok || !c.entries.Remove(key) {
		return nil
	}
	c.popped.Inc()
	return record
}

// Len returns the number of in-flight syscalls
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats holds the syscall cache counters
type Stats struct {
	InFlight  int    `yaml:"in_flight"`
	SlotBusy  uint64 `yaml:"slot_busy"`
	Overwrite uint64 `yaml:"overwrite"`
	Evicted   uint64 `yaml:"evicted"`
}

// Stats returns the syscall cache counters
func (c *Cache) Stats() Stats {
	popped := c.popped.Load()
	return Stats{
		InFlight:  c.entries.Len(),
		SlotBusy:  c.slotBusy.Load(),
		Overwrite: c.overwrite.Load(),
		Evicted:   c.removed.Load() - popped,
	}
}
