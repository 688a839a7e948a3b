// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package model holds the data model of the rename probe: the identities
// exchanged between the kernel hooks and user space, and the event layout
package model

import (
	"bytes"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// PathKeySize defines the path key size
const PathKeySize = 16

// PathKey identifies an entry in the dentry cache
type PathKey struct {
	Inode   uint64 `json:"inode"`
	MountID uint32 `json:"mount_id"`
	PathID  uint32 `json:"-"`
}

// Write serializes the key into the given buffer
func (p *PathKey) Write(buffer []byte) {
	ByteOrder.PutUint64(buffer[0:8], p.Inode)
	ByteOrder.PutUint32(buffer[8:12], p.MountID)
	ByteOrder.PutUint32(buffer[12:16], p.PathID)
}

// IsNull returns true if a key is invalid
func (p *PathKey) IsNull() bool {
	return p.Inode == 0 && p.MountID == 0
}

func (p *PathKey) String() string {
	return fmt.Sprintf("%x/%x", p.MountID, p.Inode)
}

// MarshalBinary returns the binary representation of a path key
func (p *PathKey) MarshalBinary() ([]byte, error) {
	if p.IsNull() {
		return nil, &ErrInvalidKeyPath{Inode: p.Inode, MountID: p.MountID}
	}

	buff := make([]byte, PathKeySize)
	p.Write(buff)

	return buff, nil
}

// IsFakeInode returns whether the inode was generated to detach a renamed object
func IsFakeInode(inode uint64) bool {
	return inode>>32 == FakeInodeMSW
}

// NewFakeInode returns a synthetic inode that can not collide with a live one
func NewFakeInode(random uint32) uint64 {
	return FakeInodeMSW<<32 | uint64(random)
}

// FileFieldsSize defines the size of the binary representation of FileFields
const FileFieldsSize = PathKeySize + 40

// FileFields holds the information required to identify a file
type FileFields struct {
	PathKey
	Device uint32 `json:"-"`
	Flags  int32  `json:"-"`
	UID    uint32 `json:"uid"`
	GID    uint32 `json:"gid"`
	NLink  uint32 `json:"-"`
	Mode   uint16 `json:"mode"`
	CTime  uint64 `json:"change_time"`
	MTime  uint64 `json:"modification_time"`
}

// Equals compares two FileFields
func (f *FileFields) Equals(o *FileFields) bool {
	return f.Inode == o.Inode && f.MountID == o.MountID && f.MTime == o.MTime && f.UID == o.UID && f.GID == o.GID && f.Mode == o.Mode
}

// CopyMetadata copies everything but the identity
func (f *FileFields) CopyMetadata(o *FileFields) {
	key := f.PathKey
	*f = *o
	f.PathKey = key
}

// HasHardLinks returns whether the file has hardlink
func (f *FileFields) HasHardLinks() bool {
	return f.NLink > 1
}

// GetInLowerLayer returns whether a file is in a lower layer
func (f *FileFields) GetInLowerLayer() bool {
	return f.Flags&LowerLayer != 0
}

// GetInUpperLayer returns whether a file is in the upper layer
func (f *FileFields) GetInUpperLayer() bool {
	return f.Flags&UpperLayer != 0
}

// IsDir returns whether the mode describes a directory
func (f *FileFields) IsDir() bool {
	return f.Mode&unix.S_IFMT == unix.S_IFDIR
}

// FileMode returns the mode as a fs.FileMode
func (f *FileFields) FileMode() fs.FileMode {
	mode := fs.FileMode(f.Mode & 0o777)
	if f.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

// FileEvent is the common file event type
type FileEvent struct {
	FileFields

	PathnameStr string `json:"path"`
	BasenameStr string `json:"name"`

	PathResolutionError error `json:"-"`
}

// SetPathnameStr set and mark as resolved
func (e *FileEvent) SetPathnameStr(str string) {
	e.PathnameStr = str
}

// GetPathResolutionError returns the path resolution error as a string if there is one
func (e *FileEvent) GetPathResolutionError() string {
	if e.PathResolutionError != nil {
		return e.PathResolutionError.Error()
	}
	return ""
}

// PathLeafSize defines path_leaf struct size
const PathLeafSize = PathKeySize + MaxSegmentLength + 1 + 2 + 6 // path_key + name + len + padding

// PathLeaf is an entry of the pathnames map: one path segment and the key of its parent
type PathLeaf struct {
	Parent PathKey
	Name   [MaxSegmentLength + 1]byte
	Len    uint16
}

// GetName returns the path value as a string
func (pl *PathLeaf) GetName() string {
	return NullTerminatedString(pl.Name[:])
}

// SetName copies at most MaxSegmentLength bytes of the name, it returns
// whether the name was truncated
func (pl *PathLeaf) SetName(name string) bool {
	pl.Name = [MaxSegmentLength + 1]byte{}
	n := copy(pl.Name[:MaxSegmentLength], name)
	pl.Len = uint16(n + 1)
	return n < len(name)
}

// MarshalBinary returns the binary representation of a path leaf
func (pl *PathLeaf) MarshalBinary() ([]byte, error) {
	buff := make([]byte, PathLeafSize)

	pl.Parent.Write(buff)
	copy(buff[16:], pl.Name[:])
	ByteOrder.PutUint16(buff[16+len(pl.Name):], pl.Len)

	return buff, nil
}

// SyscallEvent contains common fields for all the event
type SyscallEvent struct {
	Retval int64 `json:"retval"`
}

// IsSuccess returns whether the syscall succeeded
func (s *SyscallEvent) IsSuccess() bool {
	return s.Retval >= 0
}

// SyscallContext holds the correlation id of the syscall arguments
type SyscallContext struct {
	ID uint64 `json:"id"`
}

// RenameEvent represents a rename event
type RenameEvent struct {
	SyscallEvent
	SyscallContext
	Old FileEvent `json:"old"`
	New FileEvent `json:"new"`
}

// ProcessContext holds the process context of an event
type ProcessContext struct {
	Pid  uint32 `json:"pid"`
	Tid  uint32 `json:"tid"`
	PPid uint32 `json:"ppid"`
	UID  uint32 `json:"uid"`
	GID  uint32 `json:"gid"`
	Comm string `json:"comm"`
}

// ContainerContext holds the container context of an event
type ContainerContext struct {
	ID string `json:"id,omitempty"`
}

// SpanContext describes a span context
type SpanContext struct {
	SpanID    uint64 `json:"span_id,omitempty"`
	TraceIDHi uint64 `json:"-"`
	TraceIDLo uint64 `json:"trace_id,omitempty"`
}

// IsNull returns whether no span is attached
func (s *SpanContext) IsNull() bool {
	return s.SpanID == 0 && s.TraceIDHi == 0 && s.TraceIDLo == 0
}

// Event represents an event sent from the kernel
type Event struct {
	Type  EventType  `json:"-"`
	Flags EventFlags `json:"-"`

	Rename RenameEvent `json:"rename"`

	ProcessContext   ProcessContext   `json:"process"`
	ContainerContext ContainerContext `json:"container"`
	SpanContext      SpanContext      `json:"span"`
}

// IsAsync returns whether the event was generated by a kernel-internal caller
func (ev *Event) IsAsync() bool {
	return ev.Flags.IsAsync()
}

// SetPathResolutionError sets the Event.pathResolutionError
func (ev *Event) SetPathResolutionError(fileFields *FileEvent, err error) {
	fileFields.PathResolutionError = err
}

// NullTerminatedString returns the string before the first NUL byte
func NullTerminatedString(d []byte) string {
	idx := bytes.IndexByte(d, 0)
	if idx == -1 {
		return string(d)
	}
	return string(d[:idx])
}
