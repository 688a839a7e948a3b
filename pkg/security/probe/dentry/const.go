// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dentry

import "math"

const (
	// DentryResolverKernKey is the key to the kernel dentry resolver tail call program
	DentryResolverKernKey uint32 = iota
)

const (
	// DentryResolverRenameCallbackKprobeKey is the key to the callback program to execute after resolving the destination dentry of a rename event
	DentryResolverRenameCallbackKprobeKey uint32 = iota
	// DentryResolverRenameCallbackTracepointKey is the key to the callback program to execute after resolving the destination dentry of a rename event from a tracepoint
	DentryResolverRenameCallbackTracepointKey
)

// DRNoCallback is the callback key used when nothing has to run once the path is resolved
const DRNoCallback uint32 = math.MaxUint32

const (
	// DefaultMaxTailCalls is the default number of resolver invocations for a single path
	DefaultMaxTailCalls = 29
	// DefaultMaxIterationDepth is the default number of parents walked per invocation
	DefaultMaxIterationDepth = 47
	// MaxTailCallCount is the maximum number of chained tail calls, as enforced by the kernel
	MaxTailCallCount = 33

	// DentryInvalid is returned by the resolver when the key to resolve is null
	DentryInvalid = -1
)

// ProgType is the type of the program that triggered a resolution
type ProgType uint8

const (
	// KprobeOrFentryType kprobe, kretprobe or fentry programs
	KprobeOrFentryType ProgType = iota
	// TracepointType tracepoint programs
	TracepointType
)

func (t ProgType) String() string {
	if t == TracepointType {
		return "tracepoint"
	}
	return "kprobe"
}

// SelectDRKey selects the callback key matching the program type
func SelectDRKey(progType ProgType, kprobeKey, tracepointKey uint32) uint32 {
	if progType == TracepointType {
		return tracepointKey
	}
	return kprobeKey
}
