// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package model

import (
	"encoding/binary"
	"sort"

	"golang.org/x/sys/unix"
)

const (
	// MaxSegmentLength defines the maximum length of each segment of a path
	MaxSegmentLength = 255

	// MaxPathDepth defines the maximum depth of a path
	MaxPathDepth = 1500

	// FakeInodeMSW is the most significant word of the inodes generated to
	// detach a renamed source from its previous identity
	FakeInodeMSW = 0xdeadc001

	// ContainerIDLen defines the length of a container ID
	ContainerIDLen = 64

	// TaskCommLen defines the length of a task name
	TaskCommLen = 16
)

// ByteOrder used to encode and decode the kernel structures
var ByteOrder = binary.NativeEndian

// EventType describes the type of an event sent from the kernel
type EventType uint32

const (
	// UnknownEventType unknown event
	UnknownEventType EventType = iota
	// FileRenameEventType rename event
	FileRenameEventType
	// MaxKernelEventType is used internally to get the maximum number of kernel events
	MaxKernelEventType
)

func (t EventType) String() string {
	switch t {
	case FileRenameEventType:
		return "rename"
	}
	return "unknown"
}

// ParseEvalEventType converts an event type name into its value
func ParseEvalEventType(name string) EventType {
	for i := UnknownEventType + 1; i < MaxKernelEventType; i++ {
		if i.String() == name {
			return i
		}
	}
	return UnknownEventType
}

// AllEventTypes returns the list of kernel event types
func AllEventTypes() []EventType {
	var types []EventType
	for i := UnknownEventType + 1; i < MaxKernelEventType; i++ {
		types = append(types, i)
	}
	return types
}

const (
	// LowerLayer the file is in the lower layer of an overlay filesystem
	LowerLayer = 1 << iota
	// UpperLayer the file is in the upper layer of an overlay filesystem
	UpperLayer
)

// EventFlags bitset carried by the kernel events
type EventFlags uint32

const (
	// EventFlagsAsync the event was generated by a kernel-internal caller
	EventFlagsAsync EventFlags = 1 << iota
)

// IsAsync returns whether the async flag is set
func (f EventFlags) IsAsync() bool {
	return f&EventFlagsAsync != 0
}

var (
	errorConstants = map[string]int{
		"EACCES":       -int(unix.EACCES),
		"EBUSY":        -int(unix.EBUSY),
		"EDQUOT":       -int(unix.EDQUOT),
		"EEXIST":       -int(unix.EEXIST),
		"EFAULT":       -int(unix.EFAULT),
		"EINVAL":       -int(unix.EINVAL),
		"EIO":          -int(unix.EIO),
		"EISDIR":       -int(unix.EISDIR),
		"ELOOP":        -int(unix.ELOOP),
		"EMLINK":       -int(unix.EMLINK),
		"ENAMETOOLONG": -int(unix.ENAMETOOLONG),
		"ENOENT":       -int(unix.ENOENT),
		"ENOMEM":       -int(unix.ENOMEM),
		"ENOSPC":       -int(unix.ENOSPC),
		"ENOTDIR":      -int(unix.ENOTDIR),
		"ENOTEMPTY":    -int(unix.ENOTEMPTY),
		"EOPNOTSUPP":   -int(unix.EOPNOTSUPP),
		"EPERM":        -int(unix.EPERM),
		"EROFS":        -int(unix.EROFS),
		"EXDEV":        -int(unix.EXDEV),
	}

	errorNames map[int]string
)

func init() {
	errorNames = make(map[int]string, len(errorConstants))
	for name, value := range errorConstants {
		errorNames[value] = name
	}
}

// ErrorConstant returns the negative return code matching an errno name
func ErrorConstant(name string) (int, bool) {
	value, ok := errorConstants[name]
	return value, ok
}

// ErrorConstantNames returns the known errno names, sorted
func ErrorConstantNames() []string {
	names := make([]string, 0, len(errorConstants))
	for name := range errorConstants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetValString returns a human readable representation of a syscall return value
func RetValString(retval int64) string {
	if retval >= 0 {
		return "success"
	}
	if name, ok := errorNames[int(retval)]; ok {
		return name
	}
	return "unknown"
}
