// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dentry

import (
	"strings"
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

type testEnv struct {
	fs        *vfs.FS
	state     *ResolverState
	resolver  *Resolver
	userspace *dentry.Resolver
	callbacks int
}

func newTestEnv(t *testing.T, opts Opts) *testEnv {
	pathnames, err := dentry.NewPathnamesMap(1024)
	require.NoError(t, err)

	env := &testEnv{
		fs:    vfs.New(vfs.Options{}),
		state: &ResolverState{},
	}

	env.resolver, err = NewResolver(pathnames, opts, func(*vfs.ProbeContext) *ResolverState {
		return env.state
	}, nil)
	require.NoError(t, err)

	env.userspace, err = dentry.NewResolver(pathnames, 64, &statsd.NoOpClient{})
	require.NoError(t, err)

	for _, progType := range []ProgType{KprobeOrFentryType, TracepointType} {
		key := SelectDRKey(progType, DentryResolverRenameCallbackKprobeKey, DentryResolverRenameCallbackTracepointKey)
		env.resolver.Callbacks(progType).Set(key, func(*vfs.ProbeContext) (TailCall, error) {
			env.callbacks++
			return TailCall{}, nil
		})
	}

	return env
}

func (env *testEnv) resolve(t *testing.T, path string, callback uint32, progType ProgType) model.PathKey {
	d, err := env.fs.Lookup(path)
	require.NoError(t, err)

	key := model.PathKey{Inode: d.Ino(), MountID: d.Mount().ID, PathID: 1}
	env.state.Reset(d, key, callback)
	require.NoError(t, env.resolver.ResolveDentry(vfs.NewProbeContext(&vfs.Task{}), progType))
	return key
}

func defaultOpts() Opts {
	return Opts{MaxTailCalls: DefaultMaxTailCalls, MaxIterationDepth: DefaultMaxIterationDepth}
}

func TestResolveDentry(t *testing.T) {
	env := newTestEnv(t, defaultOpts())
	require.NoError(t, env.fs.MkdirAll("/tmp/dir", 0o755))
	require.NoError(t, env.fs.WriteFile("/tmp/dir/a", 0o644, 0, 0))

	key := env.resolve(t, "/tmp/dir/a", DentryResolverRenameCallbackKprobeKey, KprobeOrFentryType)
	assert.Equal(t, 1, env.callbacks)
	assert.Equal(t, int32(4), env.state.Ret)
	assert.Equal(t, uint32(1), env.state.Iteration)

	path, err := env.userspace.Resolve(key)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dir/a", path)
}

func TestResolveDentryNoCallback(t *testing.T) {
	env := newTestEnv(t, defaultOpts())
	require.NoError(t, env.fs.WriteFile("/a", 0o644, 0, 0))

	key := env.resolve(t, "/a", DRNoCallback, TracepointType)
	assert.Equal(t, 0, env.callbacks)

	path, err := env.userspace.Resolve(key)
	require.NoError(t, err)
	assert.Equal(t, "/a", path)
}

func TestResolveDentryMultipleInvocations(t *testing.T) {
	env := newTestEnv(t, Opts{MaxTailCalls: 10, MaxIterationDepth: 2})
	path := "/a/b/c/d/e/f/g"
	require.NoError(t, env.fs.MkdirAll(path, 0o755))

	key := env.resolve(t, path, DentryResolverRenameCallbackTracepointKey, TracepointType)
	assert.Equal(t, 1, env.callbacks)
	// 8 segments including the root, 2 per invocation
	assert.Equal(t, uint32(4), env.state.Iteration)
	assert.Equal(t, int32(8), env.state.Ret)

	resolved, err := env.userspace.Resolve(key)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestResolveDentryIterationCap(t *testing.T) {
	env := newTestEnv(t, Opts{MaxTailCalls: 2, MaxIterationDepth: 3})
	path := "/" + strings.Repeat("d/", 10) + "leaf"
	require.NoError(t, env.fs.MkdirAll(path, 0o755))

	key := env.resolve(t, path, DentryResolverRenameCallbackKprobeKey, KprobeOrFentryType)
	assert.Equal(t, 1, env.callbacks)
	assert.Equal(t, uint32(2), env.state.Iteration)
	assert.Equal(t, uint64(1), env.resolver.Stats().Truncated)

	resolved, err := env.userspace.Resolve(key)
	assert.ErrorIs(t, err, dentry.ErrTruncatedParents)
	assert.Equal(t, ".../d/d/d/d/d/leaf", resolved)
}

func TestResolveDentryInvalidKey(t *testing.T) {
	env := newTestEnv(t, defaultOpts())

	env.state.Reset(nil, model.PathKey{}, DentryResolverRenameCallbackKprobeKey)
	require.NoError(t, env.resolver.ResolveDentry(vfs.NewProbeContext(&vfs.Task{}), KprobeOrFentryType))
	assert.Equal(t, int32(DentryInvalid), env.state.Ret)
	assert.Equal(t, 1, env.callbacks)
}

func TestResolveDentryMissingCallback(t *testing.T) {
	env := newTestEnv(t, defaultOpts())
	require.NoError(t, env.fs.WriteFile("/a", 0o644, 0, 0))
	env.resolver.Callbacks(KprobeOrFentryType).Delete(DentryResolverRenameCallbackKprobeKey)

	d, err := env.fs.Lookup("/a")
	require.NoError(t, err)
	env.state.Reset(d, model.PathKey{Inode: d.Ino(), MountID: 1}, DentryResolverRenameCallbackKprobeKey)

	err = env.resolver.ResolveDentry(vfs.NewProbeContext(&vfs.Task{}), KprobeOrFentryType)
	assert.ErrorIs(t, err, ErrProgNotFound)
	assert.Equal(t, uint64(1), env.resolver.Stats().TailCallFailed[KprobeOrFentryType])
}

func TestTrampolineLimit(t *testing.T) {
	table := NewProgArray("loop")
	calls := 0
	table.Set(0, func(*vfs.ProbeContext) (TailCall, error) {
		calls++
		return TailCall{Table: table, Key: 0}, nil
	})

	err := NewTrampoline(MaxTailCallCount).Run(vfs.NewProbeContext(&vfs.Task{}), table, 0)
	assert.ErrorIs(t, err, ErrTailCallLimit)
	assert.Equal(t, MaxTailCallCount, calls)
}

func TestNewResolverLimits(t *testing.T) {
	pathnames, err := dentry.NewPathnamesMap(16)
	require.NoError(t, err)

	_, err = NewResolver(pathnames, Opts{MaxTailCalls: MaxTailCallCount, MaxIterationDepth: 1}, nil, nil)
	assert.Error(t, err)
	_, err = NewResolver(pathnames, Opts{MaxTailCalls: 1}, nil, nil)
	assert.Error(t, err)
}
