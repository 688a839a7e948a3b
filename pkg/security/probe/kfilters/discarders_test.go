// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kfilters

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

func newTestDiscarders(t *testing.T) (*InodeDiscarders, *clock.Mock) {
	clk := clock.NewMock()
	discarders, err := NewInodeDiscarders(128, DefaultDiscardRetention, DefaultMaxParentDiscarderDepth, clk)
	require.NoError(t, err)
	return discarders, clk
}

func TestDiscardInode(t *testing.T) {
	discarders, _ := newTestDiscarders(t)

	key := model.PathKey{MountID: 1, Inode: 10}
	assert.False(t, discarders.IsDiscarded(model.FileRenameEventType, key, nil))

	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 10, true))
	assert.True(t, discarders.IsDiscarded(model.FileRenameEventType, key, nil))
	assert.False(t, discarders.IsDiscarded(model.FileRenameEventType, model.PathKey{MountID: 2, Inode: 10}, nil))

	assert.ErrorIs(t, discarders.DiscardInode(model.FileRenameEventType, 1, 0, true), ErrInvalidInode)

	stats := discarders.Stats()
	assert.Equal(t, uint64(1), stats.DiscarderAdded)
	assert.Equal(t, uint64(1), stats.EventDiscarded)
}

func TestParentDiscarders(t *testing.T) {
	discarders, _ := newTestDiscarders(t)

	file := model.PathKey{MountID: 1, Inode: 100}
	parents := []model.PathKey{
		{MountID: 1, Inode: 20},
		{MountID: 1, Inode: 30},
		{MountID: 1, Inode: 40},
		{MountID: 1, Inode: 50},
	}

	// leaf discarders don't apply to children
	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 20, true))
	assert.False(t, discarders.IsDiscarded(model.FileRenameEventType, file, parents))

	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 40, false))
	assert.True(t, discarders.IsDiscarded(model.FileRenameEventType, file, parents))

	// beyond the max depth
	discarders, _ = newTestDiscarders(t)
	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 50, false))
	assert.False(t, discarders.IsDiscarded(model.FileRenameEventType, file, parents))
}

func TestBumpMountRevision(t *testing.T) {
	discarders, _ := newTestDiscarders(t)

	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 10, true))
	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 2, 10, true))

	assert.Equal(t, uint32(1), discarders.BumpMountRevision(1))
	assert.Equal(t, uint32(1), discarders.MountRevision(1))
	assert.Equal(t, uint32(0), discarders.MountRevision(2))

	assert.False(t, discarders.IsDiscarded(model.FileRenameEventType, model.PathKey{MountID: 1, Inode: 10}, nil))
	assert.True(t, discarders.IsDiscarded(model.FileRenameEventType, model.PathKey{MountID: 2, Inode: 10}, nil))

	// a new discarder is valid for the new revision
	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 10, true))
	assert.True(t, discarders.IsDiscarded(model.FileRenameEventType, model.PathKey{MountID: 1, Inode: 10}, nil))
	assert.Equal(t, uint64(1), discarders.Stats().RevisionBumped)
}

func TestExpireInodeDiscarders(t *testing.T) {
	discarders, clk := newTestDiscarders(t)
	key := model.PathKey{MountID: 1, Inode: 10}

	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 10, true))
	discarders.ExpireInodeDiscarders(1, 10)
	assert.False(t, discarders.IsDiscarded(model.FileRenameEventType, key, nil))

	// retained, can't be discarded again
	assert.ErrorIs(t, discarders.DiscardInode(model.FileRenameEventType, 1, 10, true), ErrDiscarderRetained)

	clk.Add(DefaultDiscardRetention + time.Second)
	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 10, true))
	assert.True(t, discarders.IsDiscarded(model.FileRenameEventType, key, nil))

	// unknown inodes are ignored
	discarders.ExpireInodeDiscarders(1, 11)
	discarders.ExpireInodeDiscarders(1, 0)
	assert.Equal(t, uint64(1), discarders.Stats().DiscarderExpired)
}

func TestDiscardersDump(t *testing.T) {
	discarders, _ := newTestDiscarders(t)

	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 2, 5, true))
	require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 7, false))
	discarders.BumpMountRevision(3)

	dump := discarders.Dump()
	require.Len(t, dump.Inodes, 2)
	assert.Equal(t, uint32(1), dump.Inodes[0].MountID)
	assert.False(t, dump.Inodes[0].IsLeaf)
	assert.Equal(t, uint32(2), dump.Inodes[1].MountID)
	assert.Equal(t, uint32(1), dump.Revisions[3])
}
