// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kfilters

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

const (
	// DefaultDiscardRetention time a discarder is retained but not discarding. This avoids races with pending
	// events in the userspace pipeline for an inode that was already reused
	DefaultDiscardRetention = 5 * time.Second

	// DefaultMaxParentDiscarderDepth defines the maximum parent depth to find parent discarders
	DefaultMaxParentDiscarderDepth = 3

	// allEventTypes is a mask to match all the events
	allEventTypes = math.MaxUint64
)

var (
	// ErrDiscarderRetained is returned when adding a discarder for an inode whose discarder was just expired
	ErrDiscarderRetained = errors.New("discarder retained")
	// ErrInvalidInode is returned for a null inode
	ErrInvalidInode = errors.New("invalid inode")
)

// DiscarderStats is used to collect metrics about discarders
type DiscarderStats struct {
	DiscarderAdded   uint64 `yaml:"discarder_added"`
	EventDiscarded   uint64 `yaml:"event_discarded"`
	DiscarderExpired uint64 `yaml:"discarder_expired"`
	RevisionBumped   uint64 `yaml:"revision_bumped"`
}

// InodeDiscarderParams describes a discarder table value
type InodeDiscarderParams struct {
	EventMask  uint64    `yaml:"event_mask"`
	Revision   uint32    `yaml:"revision"`
	IsLeaf     bool      `yaml:"is_leaf"`
	IsRetained bool      `yaml:"is_retained"`
	ExpireAt   time.Time `yaml:"expire_at,omitempty"`
}

type inodeDiscarderKey struct {
	mountID uint32
	inode   uint64
}

// InodeDiscarders is the table of the inodes for which events can be ignored,
// invalidated per inode or per mount through a revision
type InodeDiscarders struct {
	sync.Mutex
	entries *lru.Cache[inodeDiscarderKey, *InodeDiscarderParams]

	revisionsLock sync.RWMutex
	revisions     map[uint32]*atomic.Uint32

	clock          clock.Clock
	retention      time.Duration
	maxParentDepth int

	discarderAdded   *atomic.Uint64
	eventDiscarded   *atomic.Uint64
	discarderExpired *atomic.Uint64
	revisionBumped   *atomic.Uint64
}

// NewInodeDiscarders returns a new discarder table
func NewInodeDiscarders(size int, retention time.Duration, maxParentDepth int, clk clock.Clock) (*InodeDiscarders, error) {
	entries, err := lru.New[inodeDiscarderKey, *InodeDiscarderParams](size)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	return &InodeDiscarders{
		entries:          entries,
		revisions:        make(map[uint32]*atomic.Uint32),
		clock:            clk,
		retention:        retention,
		maxParentDepth:   maxParentDepth,
		discarderAdded:   atomic.NewUint64(0),
		eventDiscarded:   atomic.NewUint64(0),
		discarderExpired: atomic.NewUint64(0),
		revisionBumped:   atomic.NewUint64(0),
	}, nil
}

// MaxParentDepth returns the number of parents looked up for non leaf discarders
func (id *InodeDiscarders) MaxParentDepth() int {
	return id.maxParentDepth
}

func (id *InodeDiscarders) revision(mountID uint32) *atomic.Uint32 {
	id.revisionsLock.RLock()
	rev, ok := id.revisions[mountID]
	id.revisionsLock.RUnlock()
	if ok {
		return rev
	}

	id.revisionsLock.Lock()
	defer id.revisionsLock.Unlock()
	if rev, ok = id.revisions[mountID]; !ok {
		rev = atomic.NewUint32(0)
		id.revisions[mountID] = rev
	}
	return rev
}

// MountRevision returns the current revision of a mount
func (id *InodeDiscarders) MountRevision(mountID uint32) uint32 {
	return id.revision(mountID).Load()
}

// BumpMountRevision invalidates all the discarders of a mount
func (id *InodeDiscarders) BumpMountRevision(mountID uint32) uint32 {
	id.revisionBumped.Inc()
	return id.revision(mountID).Inc()
}

func eventMask(eventType model.EventType) uint64 {
	if eventType == model.UnknownEventType {
		return allEventTypes
	}
	return 1 << (uint64(eventType) - 1)
}

// DiscardInode adds a discarder for the given event type. A non leaf discarder
// also applies to the children of the inode.
func (id *InodeDiscarders) DiscardInode(eventType model.EventType, mountID uint32, inode uint64, isLeaf bool) error {
	if inode == 0 {
		return ErrInvalidInode
	}

	id.Lock()
	defer id.Unlock()

	key := inodeDiscarderKey{mountID: mountID, inode: inode}
	revision := id.MountRevision(mountID)
	now := id.clock.Now()

	params, exists := id.entries.Get(key)
	if exists && params.IsRetained {
		if now.Before(params.ExpireAt) {
			return ErrDiscarderRetained
		}
		exists = false
	}
	if !exists || params.Revision != revision {
		params = &InodeDiscarderParams{Revision: revision, IsLeaf: true}
		id.entries.Add(key, params)
	}

	params.EventMask |= eventMask(eventType)
	params.IsLeaf = params.IsLeaf && isLeaf
	id.discarderAdded.Inc()

	return nil
}

// isDiscarding must be called with the lock held
func (id *InodeDiscarders) isDiscarding(eventType model.EventType, key model.PathKey, parent bool) bool {
	params, exists := id.entries.Peek(inodeDiscarderKey{mountID: key.MountID, inode: key.Inode})
	if !exists || params.IsRetained {
		return false
	}
	if params.Revision != id.MountRevision(key.MountID) {
		return false
	}
	if parent && params.IsLeaf {
		return false
	}
	return params.EventMask&eventMask(eventType) != 0
}

// IsDiscarded returns whether an event on the given inode can be ignored. The
// parents, closest first, are consulted up to the maximum parent depth.
func (id *InodeDiscarders) IsDiscarded(eventType model.EventType, key model.PathKey, parents []model.PathKey) bool {
	if key.Inode == 0 {
		return false
	}

	id.Lock()
	defer id.Unlock()

	discarded := id.isDiscarding(eventType, key, false)
	for i := 0; !discarded && i < len(parents) && i < id.maxParentDepth; i++ {
		if parents[i].Inode == 0 {
			break
		}
		discarded = id.isDiscarding(eventType, parents[i], true)
	}

	if discarded {
		id.eventDiscarded.Inc()
	}
	return discarded
}

// ExpireInodeDiscarders stops the discarders of an inode from discarding. The
// entry is retained so that the inode can't be discarded again before the end
// of the retention period.
func (id *InodeDiscarders) ExpireInodeDiscarders(mountID uint32, inode uint64) {
	if inode == 0 {
		return
	}

	id.Lock()
	defer id.Unlock()

	params, exists := id.entries.Peek(inodeDiscarderKey{mountID: mountID, inode: inode})
	if !exists || params.IsRetained {
		return
	}

	params.IsRetained = true
	params.EventMask = 0
	params.ExpireAt = id.clock.Now().Add(id.retention)
	id.discarderExpired.Inc()
}

// Stats returns the discarders statistics
func (id *InodeDiscarders) Stats() DiscarderStats {
	return DiscarderStats{
		DiscarderAdded:   id.discarderAdded.Load(),
		EventDiscarded:   id.eventDiscarded.Load(),
		DiscarderExpired: id.discarderExpired.Load(),
		RevisionBumped:   id.revisionBumped.Load(),
	}
}

// InodeDiscarderDump describes a dumped discarder
type InodeDiscarderDump struct {
	MountID              uint32 `yaml:"mount_id"`
	Inode                uint64 `yaml:"inode"`
	InodeDiscarderParams `yaml:"params"`
}

// DiscardersDump describes a dump of the discarder table
type DiscardersDump struct {
	Date      time.Time            `yaml:"date"`
	Inodes    []InodeDiscarderDump `yaml:"inodes"`
	Revisions map[uint32]uint32    `yaml:"mount_revisions"`
	Stats     DiscarderStats       `yaml:"stats"`
}

// Dump returns a snapshot of the discarder table
func (id *InodeDiscarders) Dump() DiscardersDump {
	id.Lock()
	dump := DiscardersDump{
		Date:      id.clock.Now(),
		Revisions: make(map[uint32]uint32),
	}
	for _, key := range id.entries.Keys() {
		if params, ok := id.entries.Peek(key); ok {
			dump.Inodes = append(dump.Inodes, InodeDiscarderDump{
				MountID:              key.mountID,
				Inode:                key.inode,
				InodeDiscarderParams: *params,
			})
		}
	}
	id.Unlock()

	id.revisionsLock.RLock()
	for mountID, rev := range id.revisions {
		dump.Revisions[mountID] = rev.Load()
	}
	id.revisionsLock.RUnlock()

	sort.Slice(dump.Inodes, func(i, j int) bool {
		if dump.Inodes[i].MountID != dump.Inodes[j].MountID {
			return dump.Inodes[i].MountID < dump.Inodes[j].MountID
		}
		return dump.Inodes[i].Inode < dump.Inodes[j].Inode
	})
	dump.Stats = id.Stats()

	return dump
}
