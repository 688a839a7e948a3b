// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/constantfetch"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/syscallcache"
	dentryResolver "github.com/DataDog/cws-rename-probe/pkg/security/resolvers/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

const testContainerID = "8e2d5a5a2b8f5ef5bd8f8c3a7c0b2a4d7d3b9f1e6c5a4b3c2d1e0f9a8b7c6d5e"

var testTask = &vfs.Task{
	Pid:    42,
	Tid:    43,
	PPid:   1,
	UID:    1000,
	GID:    1000,
	Comm:   "mv",
	Cgroup: "docker-" + testContainerID + ".scope",
}

type testSetup struct {
	fsOpts vfs.Options
	opts   Opts
	config func(cfg *config.Config)
}

func newTestProbe(t *testing.T, setup testSetup) (*Probe, *vfs.FS) {
	t.Helper()

	clk := clock.NewMock()
	if setup.opts.Clock == nil {
		setup.opts.Clock = clk
	}
	if setup.fsOpts.Clock == nil {
		setup.fsOpts.Clock = clk
	}

	cfg := config.NewDefaultConfig()
	cfg.ProcRoot = ""
	if setup.config != nil {
		setup.config(cfg)
	}

	p, err := NewProbe(cfg, setup.opts)
	require.NoError(t, err)

	fs := vfs.New(setup.fsOpts)
	require.NoError(t, fs.MkdirAll("/tmp", 0o755))
	require.NoError(t, p.Attach(fs))
	t.Cleanup(p.Detach)

	return p, fs
}

func flushEvents(p *Probe) []*model.Event {
	var events []*model.Event
	p.Flush(EventHandlerFunc(func(event *model.Event) {
		events = append(events, event)
	}))
	return events
}

func mustLoadPolicy(t *testing.T, policy string) kfilters.Policies {
	t.Helper()
	policies, err := kfilters.LoadPolicy(strings.NewReader(policy))
	require.NoError(t, err)
	return policies
}

func assertNoPendingSyscall(t *testing.T, p *Probe) {
	t.Helper()
	assert.Zero(t, p.GetSyscallCache().Len(), "a rename is still in flight")
}

func TestRenameFile(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 1000, 1000))
	st, err := fs.Stat("/tmp/a")
	require.NoError(t, err)

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	event := events[0]

	assert.Equal(t, model.FileRenameEventType, event.Type)
	assert.False(t, event.IsAsync())
	assert.Equal(t, int64(0), event.Rename.Retval)

	assert.NoError(t, event.Rename.Old.PathResolutionError)
	assert.Equal(t, "/tmp/a", event.Rename.Old.PathnameStr)
	assert.Equal(t, "a", event.Rename.Old.BasenameStr)
	assert.NoError(t, event.Rename.New.PathResolutionError)
	assert.Equal(t, "/tmp/b", event.Rename.New.PathnameStr)
	assert.Equal(t, "b", event.Rename.New.BasenameStr)

	// the old path lives under a fake inode, the new one under the real identity
	assert.True(t, model.IsFakeInode(event.Rename.Old.Inode))
	assert.False(t, model.IsFakeInode(event.Rename.New.Inode))
	assert.Equal(t, st.Ino, event.Rename.New.Inode)
	assert.Equal(t, uint32(1000), event.Rename.New.UID)
	assert.False(t, event.Rename.New.IsDir())

	assert.Equal(t, uint32(42), event.ProcessContext.Pid)
	assert.Equal(t, uint32(43), event.ProcessContext.Tid)
	assert.Equal(t, "mv", event.ProcessContext.Comm)
	assert.Equal(t, testContainerID, event.ContainerContext.ID)

	syscallCtx, ok := p.GetSyscallContexts().Get(event.Rename.SyscallContext.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, syscallCtx.Args)

	assertNoPendingSyscall(t, p)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetSent(model.FileRenameEventType))
}

func TestRenameFakeInodeIsDistinct(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})
	p.random = func() uint32 { return 2 }

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)

	// the root inode is 2 as well, only the high bits set them apart
	root, err := fs.Stat("/")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), root.Ino)
	assert.NotEqual(t, root.Ino, events[0].Rename.Old.Inode)
	assert.Equal(t, model.NewFakeInode(2), events[0].Rename.Old.Inode)
	assert.Equal(t, "/tmp/a", events[0].Rename.Old.PathnameStr)
}

func TestRenameDiscardedByPrefix(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		opts: Opts{
			Policies: mustLoadPolicy(t, `
rename:
  mode: accept
  discarders:
    - path: /tmp
      recursive: true
`),
		},
	})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	require.NoError(t, fs.WriteFile("/tmp/b", 0o644, 0, 0))
	b, err := fs.Stat("/tmp/b")
	require.NoError(t, err)
	require.NoError(t, p.DiscardPath(model.FileRenameEventType, "/tmp/b", 0))

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetDiscarded(model.FileRenameEventType))
	assert.Zero(t, p.GetEventsStats().GetSent(model.FileRenameEventType))

	// the discarder of the overwritten destination was expired anyway
	var found bool
	for _, entry := range p.GetDiscarders().Dump().Inodes {
		if entry.Inode == b.Ino {
			found = true
			assert.True(t, entry.IsRetained)
		}
	}
	assert.True(t, found)
	assert.Equal(t, uint64(1), p.GetDiscarders().Stats().DiscarderExpired)
}

func TestRenameDirectoryBumpsMountRevision(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.MkdirAll("/tmp/d1/sub", 0o755))
	require.NoError(t, fs.WriteFile("/tmp/d1/sub/f", 0o644, 0, 0))
	require.NoError(t, p.DiscardPath(model.FileRenameEventType, "/tmp/d1/sub/f", 0))

	mount, err := fs.Mount("/tmp/d1")
	require.NoError(t, err)
	before := p.GetDiscarders().MountRevision(mount.ID)

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/d1", "/tmp/d2"))

	assert.Equal(t, before+1, p.GetDiscarders().MountRevision(mount.ID))
	assert.Equal(t, uint64(1), p.GetDiscarders().Stats().RevisionBumped)

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/d1", events[0].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/d2", events[0].Rename.New.PathnameStr)
	assert.True(t, events[0].Rename.New.IsDir())

	// the discarders of the children are stale with the new revision
	f, err := fs.Lookup("/tmp/d2/sub/f")
	require.NoError(t, err)
	key := model.PathKey{Inode: f.Ino(), MountID: mount.ID}
	assert.False(t, p.GetDiscarders().IsDiscarded(model.FileRenameEventType, key, nil))
}

func TestRenameDirectoryDropsCachedPaths(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})
	paths := p.GetResolvers().DentryResolver

	require.NoError(t, fs.MkdirAll("/tmp/d1", 0o755))
	require.NoError(t, fs.WriteFile("/tmp/d1/f", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/d1/f", "/tmp/d1/g"))
	require.Len(t, flushEvents(p), 1)
	require.NotZero(t, paths.CacheLen())

	// a file rename keeps the cached paths
	cached := paths.CacheLen()
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/d1/g", "/tmp/d1/h"))
	assert.Equal(t, cached, paths.CacheLen())
	require.Len(t, flushEvents(p), 1)

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/d1", "/tmp/d2"))
	assert.Zero(t, paths.CacheLen())

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/d2", events[0].Rename.New.PathnameStr)
}

func TestRenameFileKeepsMountRevision(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	mount, err := fs.Mount("/tmp/a")
	require.NoError(t, err)
	before := p.GetDiscarders().MountRevision(mount.ID)

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))
	assert.Equal(t, before, p.GetDiscarders().MountRevision(mount.ID))
}

func TestRenameFailureReportsSource(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.MkdirAll("/tmp/d1", 0o755))
	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	require.NoError(t, fs.WriteFile("/tmp/b", 0o644, 0, 0))
	mount, err := fs.Mount("/tmp/d1")
	require.NoError(t, err)
	a, err := fs.Stat("/tmp/a")
	require.NoError(t, err)

	ret := fs.Renameat2(testTask, vfs.AtFDCWD, "/tmp/a", vfs.AtFDCWD, "/tmp/b", vfs.RenameNoReplace)
	assert.Equal(t, -int64(unix.EEXIST), ret)

	events := flushEvents(p)
	require.Len(t, events, 1)
	event := events[0]

	assert.Equal(t, -int64(unix.EEXIST), event.Rename.Retval)
	assert.Equal(t, "/tmp/a", event.Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/a", event.Rename.New.PathnameStr)
	assert.Equal(t, a.Ino, event.Rename.New.Inode)
	assertNoPendingSyscall(t, p)

	// a failed directory rename leaves the revision alone
	rev := p.GetDiscarders().MountRevision(mount.ID)
	ret = fs.Renameat2(testTask, vfs.AtFDCWD, "/tmp/d1", vfs.AtFDCWD, "/tmp/a", vfs.RenameNoReplace)
	assert.Equal(t, -int64(unix.EEXIST), ret)
	assert.Equal(t, rev, p.GetDiscarders().MountRevision(mount.ID))
}

func TestRenameInjectedFault(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	require.NoError(t, fs.InjectFault("/tmp/a", unix.EPERM))

	assert.Equal(t, -int64(unix.EPERM), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, -int64(unix.EPERM), events[0].Rename.Retval)
	assert.Equal(t, "/tmp/a", events[0].Rename.New.PathnameStr)
}

func TestRenameUnhandledError(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	require.NoError(t, fs.WriteFile("/tmp/b", 0o644, 0, 0))

	ret := fs.Renameat2(testTask, vfs.AtFDCWD, "/tmp/a", vfs.AtFDCWD, "/tmp/b", vfs.RenameExchange)
	assert.Equal(t, -int64(unix.EOPNOTSUPP), ret)
	assert.True(t, p.IsUnhandledError(ret))

	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetUnhandledError(model.FileRenameEventType))
}

func TestRenameBeforeVFSIsDropped(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	assert.Equal(t, -int64(unix.ENOENT), fs.Rename(testTask, "/tmp/missing", "/tmp/b"))

	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetDropped(model.FileRenameEventType, DropReasonPendingVFS))
}

func TestKernelRenameIsAsync(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.KernelRename(testTask, "/tmp/a", "/tmp/b", 0))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsAsync())
	assert.Zero(t, events[0].Rename.SyscallContext.ID)
	assert.Equal(t, "/tmp/a", events[0].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assertNoPendingSyscall(t, p)
}

func TestRenameSyscallExitKprobes(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{opts: Opts{DontHookDoRenameat2: true}})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Renameat(testTask, vfs.AtFDCWD, "/tmp/a", vfs.AtFDCWD, "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assertNoPendingSyscall(t, p)

	// without do_renameat2, kernel renames are not seen
	assert.Equal(t, int64(0), fs.KernelRename(testTask, "/tmp/b", "/tmp/c", 0))
	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
}

func TestRenameSyscallExitTracepoint(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{opts: Opts{DontHookDoRenameat2: true, UseSyscallExitTracepoint: true}})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/a", events[0].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assertNoPendingSyscall(t, p)

	// the kprobe callback table is not involved
	key := dentry.SelectDRKey(dentry.KprobeOrFentryType, dentry.DentryResolverRenameCallbackKprobeKey, dentry.DentryResolverRenameCallbackTracepointKey)
	p.dentryResolver.Callbacks(dentry.KprobeOrFentryType).Delete(key)

	require.NoError(t, fs.WriteFile("/tmp/c", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/c", "/tmp/d"))
	require.Len(t, flushEvents(p), 1)
}

func TestRenameMissingCallback(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	key := dentry.SelectDRKey(dentry.KprobeOrFentryType, dentry.DentryResolverRenameCallbackKprobeKey, dentry.DentryResolverRenameCallbackTracepointKey)
	p.dentryResolver.Callbacks(dentry.KprobeOrFentryType).Delete(key)

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetDropped(model.FileRenameEventType, DropReasonTailCall))
}

func TestRenameTruncatedPath(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		config: func(cfg *config.Config) {
			cfg.DentryResolverMaxTailCalls = 2
			cfg.DentryResolverMaxIterationDepth = 3
		},
	})

	require.NoError(t, fs.MkdirAll("/tmp/1/2/3/4/5/6/7", 0o755))
	require.NoError(t, fs.WriteFile("/tmp/1/2/3/4/5/6/7/f", 0o644, 0, 0))

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/1/2/3/4/5/6/7/f", "/tmp/1/2/3/4/5/6/7/g"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	event := events[0]

	assert.Equal(t, ".../3/4/5/6/7/g", event.Rename.New.PathnameStr)
	assert.True(t, errors.Is(event.Rename.New.PathResolutionError, dentryResolver.ErrTruncatedParents))
	assert.Equal(t, ".../3/4/5/6/7/f", event.Rename.Old.PathnameStr)
	assert.True(t, errors.Is(event.Rename.Old.PathResolutionError, dentryResolver.ErrTruncatedParents))
	assert.Equal(t, "g", event.Rename.New.BasenameStr)

	assert.Equal(t, uint64(2), p.dentryResolver.Stats().Truncated)
	assertNoPendingSyscall(t, p)
}

func TestRenameOverlay(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.MkdirAll("/tmp/ovl", 0o755))
	_, err := fs.MountFS("/tmp/ovl", "overlay")
	require.NoError(t, err)
	require.NoError(t, fs.WriteFile("/tmp/ovl/a", 0o644, 0, 0))

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/ovl/a", "/tmp/ovl/b"))

	// vfs_rename runs twice, one event is sent
	events := flushEvents(p)
	require.Len(t, events, 1)
	event := events[0]

	assert.Equal(t, "/tmp/ovl/a", event.Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/ovl/b", event.Rename.New.PathnameStr)
	assert.True(t, event.Rename.Old.GetInLowerLayer())
	assert.True(t, event.Rename.New.GetInUpperLayer())
	assert.False(t, event.Rename.New.GetInLowerLayer())
	assertNoPendingSyscall(t, p)
}

func TestRenameRegisterLayout(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{fsOpts: vfs.Options{KernelVersion: kernel.VersionCode(5, 4, 0)}})

	assert.Equal(t, constantfetch.VFSRenameRegisterInput, p.GetLayout().VFSRenameInputType)

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
}

func TestRenameLayoutMismatch(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		opts: Opts{Layout: &constantfetch.Layout{
			VFSRenameInputType:       constantfetch.VFSRenameStructInput,
			RenameSrcDentryOffset:    8,
			RenameTargetDentryOffset: 24,
		}},
	})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetDropped(model.FileRenameEventType, DropReasonLayout))
}

func TestRenameDenyPolicy(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		opts: Opts{
			Policies: mustLoadPolicy(t, `
rename:
  mode: deny
  basenames: [a]
`),
		},
	})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	require.NoError(t, fs.WriteFile("/tmp/c", 0o644, 0, 0))

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/c", "/tmp/d"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetDiscarded(model.FileRenameEventType))
	assertNoPendingSyscall(t, p)
}

func TestRenameDenyPolicyPaths(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		opts: Opts{
			Policies: mustLoadPolicy(t, `
rename:
  mode: deny
  paths: ["/tmp/**"]
`),
		},
	})

	require.NoError(t, fs.MkdirAll("/var", 0o755))
	for _, name := range []string{"/tmp/a", "/tmp/c", "/tmp/e", "/var/x"} {
		require.NoError(t, fs.WriteFile(name, 0o644, 0, 0))
	}

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))
	// no syscall arguments, the paths come from the dentries
	assert.Equal(t, int64(0), fs.KernelRename(testTask, "/tmp/c", "/tmp/d", 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "tmp/e", "tmp//f"))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/var/x", "/var/y"))

	events := flushEvents(p)
	require.Len(t, events, 3)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assert.False(t, events[0].IsAsync())
	assert.Equal(t, "/tmp/c", events[1].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/d", events[1].Rename.New.PathnameStr)
	assert.True(t, events[1].IsAsync())
	assert.Equal(t, "/tmp/e", events[2].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/f", events[2].Rename.New.PathnameStr)

	assert.Equal(t, uint64(1), p.GetEventsStats().GetDiscarded(model.FileRenameEventType))
	assertNoPendingSyscall(t, p)
}

func TestRenameDenyPolicyPathsDepthLimit(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		opts: Opts{
			Policies: mustLoadPolicy(t, `
rename:
  mode: deny
  paths: ["/tmp/**"]
`),
		},
		config: func(cfg *config.Config) {
			cfg.DentryResolverMaxTailCalls = 1
			cfg.DentryResolverMaxIterationDepth = 4
		},
	})

	require.NoError(t, fs.MkdirAll("/tmp/x/y", 0o755))
	require.NoError(t, fs.WriteFile("/tmp/x/y/z", 0o644, 0, 0))
	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))

	// deeper than the resolver limits, the paths can't be matched
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/x/y/z", "/tmp/x/y/w"))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assert.Equal(t, uint64(1), p.GetEventsStats().GetDiscarded(model.FileRenameEventType))
	assertNoPendingSyscall(t, p)
}

func TestRenameEventTypeDisabled(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		config: func(cfg *config.Config) {
			cfg.EnabledEventTypes = nil
		},
	})

	require.NoError(t, fs.MkdirAll("/tmp/d1", 0o755))
	mount, err := fs.Mount("/tmp/d1")
	require.NoError(t, err)
	before := p.GetDiscarders().MountRevision(mount.ID)

	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/d1", "/tmp/d2"))

	assert.Empty(t, flushEvents(p))
	assertNoPendingSyscall(t, p)
	// invalidation doesn't depend on the event being reported
	assert.Equal(t, before+1, p.GetDiscarders().MountRevision(mount.ID))
}

func TestRenameRingBufferFull(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{
		config: func(cfg *config.Config) {
			cfg.EventRingBufferSize = 1
		},
	})

	for i := 0; i < 2; i++ {
		src := fmt.Sprintf("/tmp/src%d", i)
		require.NoError(t, fs.WriteFile(src, 0o644, 0, 0))
		assert.Equal(t, int64(0), fs.Rename(testTask, src, fmt.Sprintf("/tmp/dst%d", i)))
	}

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, "/tmp/dst0", events[0].Rename.New.PathnameStr)

	stats := p.GetEventsStats()
	assert.Equal(t, uint64(1), stats.GetSent(model.FileRenameEventType))
	assert.Equal(t, uint64(1), stats.GetLost(model.FileRenameEventType))
	assertNoPendingSyscall(t, p)
}

func TestRenameSpanContext(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	span := model.SpanContext{SpanID: 123, TraceIDLo: 456}
	p.GetResolvers().SpanResolver.Register(testTask.Tid, span)

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.Equal(t, span.SpanID, events[0].SpanContext.SpanID)
	assert.Equal(t, span.TraceIDLo, events[0].SpanContext.TraceIDLo)
}

func TestRenameSequence(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/b", "/tmp/c"))

	events := flushEvents(p)
	require.Len(t, events, 2)
	assert.Equal(t, "/tmp/a", events[0].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)
	assert.Equal(t, "/tmp/b", events[1].Rename.Old.PathnameStr)
	assert.Equal(t, "/tmp/c", events[1].Rename.New.PathnameStr)
	assert.Equal(t, events[0].Rename.New.Inode, events[1].Rename.New.Inode)
	assert.NotEqual(t, events[0].Rename.New.PathID, events[1].Rename.New.PathID)
}

func TestRenameOverStaleSlot(t *testing.T) {
	p, fs := newTestProbe(t, testSetup{})

	// left by a rename whose exit was never seen
	require.NoError(t, p.syscalls.Push(testTask.Tid, &syscallcache.SyscallCache{
		Type:  model.FileRenameEventType,
		Stage: syscallcache.Resolving,
	}))

	require.NoError(t, fs.WriteFile("/tmp/a", 0o644, 0, 0))
	assert.Equal(t, int64(0), fs.Rename(testTask, "/tmp/a", "/tmp/b"))

	events := flushEvents(p)
	require.Len(t, events, 1)
	assert.False(t, events[0].IsAsync())
	assert.Equal(t, "/tmp/b", events[0].Rename.New.PathnameStr)

	syscallCtx, ok := p.GetSyscallContexts().Get(events[0].Rename.SyscallContext.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, syscallCtx.Args)

	assert.Equal(t, uint64(1), p.GetSyscallCache().Stats().Overwrite)
	assertNoPendingSyscall(t, p)
}
