// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package cgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/containerutils"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

const containerID = "8e2d5a5a2b8f5ef5bd8f8c3a7c0b2a4d7d3b9f1e6c5a4b3c2d1e0f9a8b7c6d5e"

func TestFillContainerContext(t *testing.T) {
	resolver, err := NewResolver(16)
	require.NoError(t, err)

	var cc model.ContainerContext
	resolver.FillContainerContext(1, containerutils.CGroupID("docker-"+containerID+".scope"), &cc)
	assert.Equal(t, containerID, cc.ID)

	resolver.FillContainerContext(2, containerutils.CGroupID("docker-"+containerID+".scope"), &cc)
	entry, ok := resolver.GetWorkload(containerID)
	require.True(t, ok)
	assert.ElementsMatch(t, []uint32{1, 2}, entry.GetPIDs())

	resolver.FillContainerContext(3, "cron.service", &cc)
	assert.Empty(t, cc.ID)

	resolver.FillContainerContext(4, "", &cc)
	assert.Empty(t, cc.ID)
	assert.Equal(t, 2, resolver.Len())

	resolver.DelPID(1)
	resolver.DelPID(2)
	_, ok = resolver.GetWorkload(containerID)
	assert.False(t, ok)
	assert.True(t, entry.Deleted.Load())
}
