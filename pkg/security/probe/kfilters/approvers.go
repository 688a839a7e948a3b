// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kfilters

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// SyscallState is the filtering state of an in-flight syscall
type SyscallState uint8

// Syscall states
const (
	Approved SyscallState = iota
	Discarded
)

func (s SyscallState) String() string {
	if s == Discarded {
		return "discarded"
	}
	return "approved"
}

// Approvers holds the approvers of an event type
type Approvers struct {
	Basenames map[string]bool
	Paths     []glob.Glob
	Flags     uint32
	Pids      map[uint32]bool
	UIDs      map[uint32]bool

	patterns []string
}

// NewApprovers returns an empty approver set
func NewApprovers() *Approvers {
	return &Approvers{
		Basenames: make(map[string]bool),
		Pids:      make(map[uint32]bool),
		UIDs:      make(map[uint32]bool),
	}
}

// AddBasename adds a basename approver
func (a *Approvers) AddBasename(basename string) error {
	if len(basename) >= BasenameFilterSize {
		return fmt.Errorf("basename `%s` exceeds %d characters", basename, BasenameFilterSize-1)
	}
	a.Basenames[basename] = true
	return nil
}

// AddPath adds a path pattern approver, `*` matches inside a segment, `**` across segments
func (a *Approvers) AddPath(pattern string) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("invalid path pattern `%s`: %w", pattern, err)
	}
	a.Paths = append(a.Paths, g)
	a.patterns = append(a.patterns, pattern)
	return nil
}

// Patterns returns the path patterns
func (a *Approvers) Patterns() []string {
	return a.patterns
}

// Policy returns the flags of the approvers set
func (a *Approvers) Policy(mode PolicyMode) FilterPolicy {
	var flags PolicyFlag
	if len(a.Basenames) > 0 {
		flags |= PolicyFlagBasename
	}
	if a.Flags != 0 {
		flags |= PolicyFlagFlags
	}
	if len(a.Pids) > 0 || len(a.UIDs) > 0 {
		flags |= PolicyFlagProcess
	}
	if len(a.Paths) > 0 {
		flags |= PolicyFlagPath
	}
	return FilterPolicy{Mode: mode, Flags: flags}
}

// ApprovalInput holds what is known about a syscall when it is approved
type ApprovalInput struct {
	EventType model.EventType
	// Key identity of the source object
	Key model.PathKey
	// Parents identities of the parent directories, the closest first
	Parents  []model.PathKey
	Basename string
	// Paths are the absolute paths of the source and of the target, walked from
	// the captured dentries
	Paths []string
	Flags uint32
	Pid   uint32
	UID   uint32
}

func (a *Approvers) match(flags PolicyFlag, input *ApprovalInput) bool {
	if a == nil {
		return false
	}

	if flags&PolicyFlagBasename != 0 && a.Basenames[input.Basename] {
		return true
	}
	if flags&PolicyFlagFlags != 0 && input.Flags&a.Flags != 0 {
		return true
	}
	if flags&PolicyFlagProcess != 0 && (a.Pids[input.Pid] || a.UIDs[input.UID]) {
		return true
	}
	if flags&PolicyFlagPath != 0 {
		for _, path := range input.Paths {
			for _, g := range a.Paths {
				if g.Match(path) {
					return true
				}
			}
		}
	}
	return false
}

// ApproveSyscall returns the state of a syscall according to its policy. With
// no filter or an accept policy the syscall is approved unless a discarder
// applies, with a deny policy it must match an approver.
func ApproveSyscall(policy FilterPolicy, approvers *Approvers, discarders *InodeDiscarders, input *ApprovalInput) SyscallState {
	switch policy.Mode {
	case PolicyModeDeny:
		if approvers.match(policy.Flags, input) {
			return Approved
		}
		return Discarded
	default:
		if discarders != nil && discarders.IsDiscarded(input.EventType, input.Key, input.Parents) {
			return Discarded
		}
		return Approved
	}
}
