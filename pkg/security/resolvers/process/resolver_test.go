// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package process

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/containerutils"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

func TestFillProcessContext(t *testing.T) {
	resolver, err := NewResolver(Opts{CacheSize: 8}, &statsd.NoOpClient{})
	require.NoError(t, err)

	task := &vfs.Task{Pid: 42, Tid: 43, PPid: 1, UID: 1000, GID: 1000, Comm: "a-very-long-command-name", Cgroup: "docker-abc.scope"}

	var pc model.ProcessContext
	entry := resolver.FillProcessContext(task, &pc)
	require.NotNil(t, entry)
	assert.Equal(t, uint32(42), pc.Pid)
	assert.Equal(t, uint32(43), pc.Tid)
	assert.Equal(t, "a-very-long-com", pc.Comm)
	assert.Equal(t, containerutils.CGroupID("docker-abc.scope"), entry.CGroup)

	assert.Same(t, entry, resolver.Resolve(task))
	assert.Equal(t, int64(1), resolver.hitsStats.Load())

	// tid reused by another process
	other := resolver.Resolve(&vfs.Task{Pid: 50, Tid: 43, Comm: "sh"})
	assert.NotSame(t, entry, other)
	assert.Equal(t, 1, resolver.Len())

	resolver.DeleteEntry(43)
	assert.Equal(t, 0, resolver.Len())
	assert.Nil(t, resolver.Resolve(nil))

	assert.NoError(t, resolver.SendStats())
}

func TestResolveRefreshesCachedEntry(t *testing.T) {
	resolver, err := NewResolver(Opts{CacheSize: 8}, &statsd.NoOpClient{})
	require.NoError(t, err)

	task := &vfs.Task{Pid: 42, Tid: 43, PPid: 1, UID: 1000, GID: 1000, Comm: "sudo"}
	entry := resolver.Resolve(task)
	require.NotNil(t, entry)

	// setuid then exec, reparented to a subreaper
	task.UID, task.GID = 0, 0
	task.Comm = "bash"
	task.PPid = 7

	var pc model.ProcessContext
	refreshed := resolver.FillProcessContext(task, &pc)
	assert.Same(t, entry, refreshed)
	assert.Equal(t, int64(1), resolver.hitsStats.Load())
	assert.Equal(t, uint32(0), pc.UID)
	assert.Equal(t, uint32(0), pc.GID)
	assert.Equal(t, "bash", pc.Comm)
	assert.Equal(t, uint32(7), pc.PPid)
}

func TestResolveFromProcFS(t *testing.T) {
	root := t.TempDir()
	procDir := filepath.Join(root, "1234")
	require.NoError(t, os.MkdirAll(procDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "comm"), []byte("nginx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "cgroup"), []byte("0::/system.slice/docker-0123.scope\n"), 0o644))

	resolver, err := NewResolver(Opts{CacheSize: 8, ProcRoot: root}, &statsd.NoOpClient{})
	require.NoError(t, err)

	entry := resolver.Resolve(&vfs.Task{Pid: 1234, Tid: 1234})
	require.NotNil(t, entry)
	assert.Equal(t, "nginx", entry.Comm)
	assert.Equal(t, containerutils.CGroupID("docker-0123.scope"), entry.CGroup)
	assert.Equal(t, int64(1), resolver.procfsStats.Load())
}
