// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package model holds model related files
package model

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/containerutils"
)

// CacheEntry cgroup resolver cache entry
type CacheEntry struct {
	sync.RWMutex

	// These fields shouldn't be mutated after the cache entry is created
	CGroupID    containerutils.CGroupID
	ContainerID containerutils.ContainerID
	Flags       containerutils.CGroupFlags

	Deleted *atomic.Bool
	PIDs    map[uint32]bool
}

// NewCacheEntry returns a new instance of a CacheEntry
func NewCacheEntry(cgroupID containerutils.CGroupID, pid uint32) *CacheEntry {
	containerID, flags := containerutils.FindContainerID(cgroupID)

	entry := &CacheEntry{
		CGroupID:    cgroupID,
		ContainerID: containerID,
		Flags:       containerutils.CGroupFlags(flags),
		Deleted:     atomic.NewBool(false),
		PIDs:        make(map[uint32]bool, 10),
	}
	entry.PIDs[pid] = true

	return entry
}

// IsContainer returns whether the cgroup belongs to a container
func (cgce *CacheEntry) IsContainer() bool {
	return cgce.ContainerID != "" && cgce.Flags.IsContainer()
}

// AddPID adds a pid to the entry
func (cgce *CacheEntry) AddPID(pid uint32) {
	cgce.Lock()
	defer cgce.Unlock()

	cgce.PIDs[pid] = true
}

// GetPIDs returns the list of pids
func (cgce *CacheEntry) GetPIDs() []uint32 {
	cgce.RLock()
	defer cgce.RUnlock()

	pids := make([]uint32, 0, len(cgce.PIDs))
	for k := range cgce.PIDs {
		pids = append(pids, k)
	}

	return pids
}
