// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package cgroup holds cgroup related files
package cgroup

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	cgroupModel "github.com/DataDog/cws-rename-probe/pkg/security/resolvers/cgroup/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/containerutils"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
)

// Resolver defines a cgroup monitor
type Resolver struct {
	sync.RWMutex
	workloads *simplelru.LRU[containerutils.CGroupID, *cgroupModel.CacheEntry]
}

// NewResolver returns a new cgroups monitor
func NewResolver(size int) (*Resolver, error) {
	workloads, err := simplelru.NewLRU(size, func(_ containerutils.CGroupID, value *cgroupModel.CacheEntry) {
		value.Deleted.Store(true)
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{workloads: workloads}, nil
}

// AddPID associates a cgroup and a pid
func (cr *Resolver) AddPID(pid uint32, cgroupID containerutils.CGroupID) *cgroupModel.CacheEntry {
	cr.Lock()
	defer cr.Unlock()

	entry, exists := cr.workloads.Get(cgroupID)
	if exists {
		entry.AddPID(pid)
		return entry
	}

	// create new entry now
	entry = cgroupModel.NewCacheEntry(cgroupID, pid)
	if entry.IsContainer() {
		seclog.Debugf("new container workload %s (%s) for pid %d", entry.ContainerID, containerutils.CGroupManager(entry.Flags&containerutils.CGroupManagerMask), pid)
	}

	cr.workloads.Add(cgroupID, entry)
	return entry
}

// FillContainerContext fills the container context of the cgroup of a process
func (cr *Resolver) FillContainerContext(pid uint32, cgroupID containerutils.CGroupID, cc *model.ContainerContext) {
	*cc = model.ContainerContext{}
	if cgroupID == "" {
		return
	}

	entry := cr.AddPID(pid, cgroupID)
	if entry.IsContainer() {
		cc.ID = string(entry.ContainerID)
	}
}

// Get returns the workload referenced by the provided ID
func (cr *Resolver) Get(id containerutils.CGroupID) (*cgroupModel.CacheEntry, bool) {
	cr.RLock()
	defer cr.RUnlock()

	return cr.workloads.Peek(id)
}

// GetWorkload returns the workload referenced by the provided ID
func (cr *Resolver) GetWorkload(id containerutils.ContainerID) (*cgroupModel.CacheEntry, bool) {
	cr.RLock()
	defer cr.RUnlock()

	if id != "" {
		for _, workload := range cr.workloads.Values() {
			if workload.ContainerID == id {
				return workload, true
			}
		}
	}

	return nil, false
}

// DelPID removes a PID from the cgroup resolver
func (cr *Resolver) DelPID(pid uint32) {
	cr.Lock()
	defer cr.Unlock()

	for _, workload := range cr.workloads.Values() {
		cr.deleteWorkloadPID(pid, workload)
	}
}

// deleteWorkloadPID removes a PID from a workload
func (cr *Resolver) deleteWorkloadPID(pid uint32, workload *cgroupModel.CacheEntry) {
	workload.Lock()
	delete(workload.PIDs, pid)
	empty := len(workload.PIDs) == 0
	workload.Unlock()

	// check if the workload should be deleted
	if empty {
		cr.workloads.Remove(workload.CGroupID)
	}
}

// Len return the number of entries
func (cr *Resolver) Len() int {
	cr.RLock()
	defer cr.RUnlock()

	return cr.workloads.Len()
}
