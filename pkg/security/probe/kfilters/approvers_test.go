// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kfilters

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

func TestApproveSyscall(t *testing.T) {
	discarders, _ := newTestDiscarders(t)
	input := &ApprovalInput{
		EventType: model.FileRenameEventType,
		Key:       model.PathKey{MountID: 1, Inode: 10},
		Parents:   []model.PathKey{{MountID: 1, Inode: 2}},
		Basename:  "passwd",
		Paths:     []string{"/etc/passwd", "/etc/passwd.bak"},
		Pid:       42,
		UID:       1000,
	}

	t.Run("no-filter", func(t *testing.T) {
		assert.Equal(t, Approved, ApproveSyscall(FilterPolicy{}, nil, discarders, input))
	})

	t.Run("deny-basename", func(t *testing.T) {
		approvers := NewApprovers()
		require.NoError(t, approvers.AddBasename("passwd"))
		assert.Equal(t, Approved, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))

		approvers = NewApprovers()
		require.NoError(t, approvers.AddBasename("shadow"))
		assert.Equal(t, Discarded, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))
	})

	t.Run("deny-path", func(t *testing.T) {
		approvers := NewApprovers()
		require.NoError(t, approvers.AddPath("/etc/**"))
		assert.Equal(t, Approved, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))

		approvers = NewApprovers()
		require.NoError(t, approvers.AddPath("/tmp/*"))
		assert.Equal(t, Discarded, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))

		approvers = NewApprovers()
		require.NoError(t, approvers.AddPath("**.bak"))
		assert.Equal(t, Approved, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))
	})

	t.Run("deny-process", func(t *testing.T) {
		approvers := NewApprovers()
		approvers.UIDs[1000] = true
		assert.Equal(t, Approved, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))

		approvers = NewApprovers()
		approvers.Pids[1] = true
		assert.Equal(t, Discarded, ApproveSyscall(approvers.Policy(PolicyModeDeny), approvers, discarders, input))
	})

	t.Run("deny-without-approvers", func(t *testing.T) {
		assert.Equal(t, Discarded, ApproveSyscall(FilterPolicy{Mode: PolicyModeDeny}, nil, discarders, input))
	})

	t.Run("accept-discarded", func(t *testing.T) {
		policy := FilterPolicy{Mode: PolicyModeAccept}
		assert.Equal(t, Approved, ApproveSyscall(policy, NewApprovers(), discarders, input))

		require.NoError(t, discarders.DiscardInode(model.FileRenameEventType, 1, 2, false))
		assert.Equal(t, Discarded, ApproveSyscall(policy, NewApprovers(), discarders, input))
	})
}

func TestAddBasename(t *testing.T) {
	approvers := NewApprovers()
	assert.Error(t, approvers.AddBasename(strings.Repeat("a", BasenameFilterSize)))
	assert.NoError(t, approvers.AddBasename(strings.Repeat("a", BasenameFilterSize-1)))
}

func TestPolicyJSON(t *testing.T) {
	policy := FilterPolicy{Mode: PolicyModeDeny, Flags: PolicyFlagBasename | PolicyFlagPath}
	data, err := json.Marshal(policy)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"deny","flags":["basename","path"]}`, string(data))

	_, err = json.Marshal(FilterPolicy{Mode: PolicyMode(9)})
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	policies, err := LoadPolicy(strings.NewReader(`
rename:
  mode: deny
  basenames: [passwd]
  paths: ["/etc/**"]
  uids: [0]
  flags: [noreplace]
  discarders:
    - path: /var/log
      recursive: true
`))
	require.NoError(t, err)

	policy := policies.Get(model.FileRenameEventType)
	assert.Equal(t, PolicyModeDeny, policy.Policy.Mode)
	assert.Equal(t, PolicyFlagBasename|PolicyFlagFlags|PolicyFlagProcess|PolicyFlagPath, policy.Policy.Flags)
	assert.Equal(t, uint32(1), policy.Approvers.Flags)
	assert.Equal(t, []string{"/etc/**"}, policy.Approvers.Patterns())
	assert.Equal(t, []DiscarderDefinition{{Path: "/var/log", Recursive: true}}, policy.Discarders)

	// event types without policy aren't filtered
	assert.Equal(t, PolicyModeNoFilter, Policies{}.Get(model.FileRenameEventType).Policy.Mode)
}

func TestLoadPolicyErrors(t *testing.T) {
	_, err := LoadPolicy(strings.NewReader(`
rename:
  mode: maybe
  paths: ["/etc/[a"]
  flags: [sideways]
  discarders:
    - path: relative
open:
  mode: deny
`))
	require.Error(t, err)
	for _, expected := range []string{"invalid policy mode", "invalid path pattern", "unknown flag", "isn't absolute", "unknown event type `open`"} {
		assert.Contains(t, err.Error(), expected)
	}
}
