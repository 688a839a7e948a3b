// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package process holds process related files
package process

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/DataDog/datadog-go/v5/statsd"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/procfs"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/metrics"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/containerutils"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// Entry is a process cache entry
type Entry struct {
	model.ProcessContext
	CGroup containerutils.CGroupID
}

// Opts defines the process resolver options
type Opts struct {
	CacheSize int
	// ProcRoot is the procfs mount point used for the tasks the kernel doesn't describe, disabled when empty
	ProcRoot string
}

// Resolver resolves the process context of a task
type Resolver struct {
	entryCache   *lru.Cache[uint32, *Entry]
	procFS       *procfs.FS
	statsdClient statsd.ClientInterface

	hitsStats   *atomic.Int64
	procfsStats *atomic.Int64
	missStats   *atomic.Int64
}

// NewResolver returns a new process resolver
func NewResolver(opts Opts, statsdClient statsd.ClientInterface) (*Resolver, error) {
	entryCache, err := lru.New[uint32, *Entry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create process cache: %w", err)
	}

	r := &Resolver{
		entryCache:   entryCache,
		statsdClient: statsdClient,
		hitsStats:    atomic.NewInt64(0),
		procfsStats:  atomic.NewInt64(0),
		missStats:    atomic.NewInt64(0),
	}

	if opts.ProcRoot != "" {
		fs, err := procfs.NewFS(opts.ProcRoot)
		if err != nil {
			seclog.Warnf("procfs unavailable at %s, process contexts will only be built from the kernel: %v", opts.ProcRoot, err)
		} else {
			r.procFS = &fs
		}
	}

	return r, nil
}

func truncateComm(comm string) string {
	if len(comm) >= model.TaskCommLen {
		return comm[:model.TaskCommLen-1]
	}
	return comm
}

func newEntryFromTask(task *vfs.Task) *Entry {
	return &Entry{
		ProcessContext: model.ProcessContext{
			Pid:  task.Pid,
			Tid:  task.Tid,
			PPid: task.PPid,
			UID:  task.UID,
			GID:  task.GID,
			Comm: truncateComm(task.Comm),
		},
		CGroup: containerutils.CGroupID(task.Cgroup),
	}
}

// refresh updates the entry from the live task. Entries built from procfs
// keep what procfs reported.
func (e *Entry) refresh(task *vfs.Task) {
	if task.Comm == "" {
		return
	}
	e.Comm = truncateComm(task.Comm)
	e.UID, e.GID = task.UID, task.GID
	e.PPid = task.PPid
	if task.Cgroup != "" {
		e.CGroup = containerutils.CGroupID(task.Cgroup)
	}
}

// enrichFromProcFS fills what the kernel didn't provide
func (r *Resolver) enrichFromProcFS(entry *Entry) bool {
	if r.procFS == nil {
		return false
	}

	proc, err := r.procFS.Proc(int(entry.Pid))
	if err != nil {
		return false
	}

	if entry.Comm == "" {
		if comm, err := proc.Comm(); err == nil {
			entry.Comm = truncateComm(comm)
		}
	}
	if stat, err := proc.Stat(); err == nil && entry.PPid == 0 {
		entry.PPid = uint32(stat.PPID)
	}
	if status, err := proc.NewStatus(); err == nil {
		entry.UID = uint32(status.UIDs[0])
		entry.GID = uint32(status.GIDs[0])
	}
	if entry.CGroup == "" {
		if cgroups, err := proc.Cgroups(); err == nil {
			for _, cgroup := range cgroups {
				if cgroup.Path != "" && cgroup.Path != "/" {
					entry.CGroup = containerutils.CGroupID(filepath.Base(strings.TrimSuffix(cgroup.Path, "/")))
					break
				}
			}
		}
	}
	return true
}

// Resolve returns the cache entry of the task, the kernel context takes
// precedence over procfs, which is only used for tasks without comm
func (r *Resolver) Resolve(task *vfs.Task) *Entry {
	if task == nil {
		return nil
	}

	if entry, ok := r.entryCache.Get(task.Tid); ok && entry.Pid == task.Pid {
		r.hitsStats.Inc()
		entry.refresh(task)
		return entry
	}

	entry := newEntryFromTask(task)
	if task.Comm == "" && r.enrichFromProcFS(entry) {
		r.procfsStats.Inc()
	} else {
		r.missStats.Inc()
	}

	r.entryCache.Add(task.Tid, entry)
	return entry
}

// FillProcessContext fills the process context of an event with the context of the task
func (r *Resolver) FillProcessContext(task *vfs.Task, pc *model.ProcessContext) *Entry {
	entry := r.Resolve(task)
	if entry != nil {
		*pc = entry.ProcessContext
	}
	return entry
}

// DeleteEntry removes the entry of a thread
func (r *Resolver) DeleteEntry(tid uint32) {
	r.entryCache.Remove(tid)
}

// Len returns the number of cached entries
func (r *Resolver) Len() int {
	return r.entryCache.Len()
}

// SendStats sends process resolver metrics
func (r *Resolver) SendStats() error {
	if err := r.statsdClient.Count(metrics.MetricProcessResolverHits, r.hitsStats.Swap(0), []string{metrics.CacheTag}, 1.0); err != nil {
		return fmt.Errorf("failed to send process_resolver cache hits metric: %w", err)
	}
	if err := r.statsdClient.Count(metrics.MetricProcessResolverHits, r.procfsStats.Swap(0), []string{metrics.ProcFSTag}, 1.0); err != nil {
		return fmt.Errorf("failed to send process_resolver procfs hits metric: %w", err)
	}
	if err := r.statsdClient.Count(metrics.MetricProcessResolverMiss, r.missStats.Swap(0), []string{}, 1.0); err != nil {
		return fmt.Errorf("failed to send process_resolver misses metric: %w", err)
	}
	return nil
}
