// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package vfs

import (
	"errors"
)

// ErrFault is returned when a structure field can't be read
var ErrFault = errors.New("bad address")

// Stat holds the attributes of an inode
type Stat struct {
	Ino   uint64
	Mode  uint16
	UID   uint32
	GID   uint32
	NLink uint32
	CTime uint64
	MTime uint64
	// Upper is set for overlay inodes copied up to the upper layer
	Upper bool
}

// Mount describes a mounted filesystem
type Mount struct {
	ID     uint32
	FSType string
	Device uint32

	root *dentry
}

// IsOverlay returns whether the mount is an overlay filesystem
func (m *Mount) IsOverlay() bool {
	return m.FSType == "overlay"
}

// Dentry is a directory entry handle, as read by the probes
type Dentry interface {
	// Parent returns the parent entry, the root is its own parent
	Parent() Dentry
	// Name returns the name of the entry, "/" for the root
	Name() string
	// Ino returns the inode number, 0 for a negative entry
	Ino() uint64
	// Stat returns the inode attributes, false for a negative entry
	Stat() (Stat, bool)
	// Mount returns the mount the entry belongs to
	Mount() *Mount
}

type inode struct {
	Stat
}

type dentry struct {
	fs       *FS
	name     string
	parent   *dentry
	inode    *inode
	mount    *Mount
	children map[string]*dentry
}

func (d *dentry) Parent() Dentry {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.parent
}

func (d *dentry) Name() string {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.name
}

func (d *dentry) Ino() uint64 {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	if d.inode == nil {
		return 0
	}
	return d.inode.Ino
}

func (d *dentry) Stat() (Stat, bool) {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	if d.inode == nil {
		return Stat{}, false
	}
	return d.inode.Stat, true
}

func (d *dentry) Mount() *Mount {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.mount
}

func (d *dentry) isDir() bool {
	return d.inode != nil && d.inode.Mode&sIFMT == sIFDIR
}

// RenameData mirrors struct renamedata: the dentries are stored at the
// offsets of the running kernel layout
type RenameData struct {
	fields map[uint64]Dentry
}

// ReadDentry reads the dentry pointer stored at offset
func (r *RenameData) ReadDentry(offset uint64) (Dentry, error) {
	if r == nil {
		return nil, ErrFault
	}
	d, ok := r.fields[offset]
	if !ok {
		return nil, ErrFault
	}
	return d, nil
}

// Task is the task executing a hook
type Task struct {
	Pid    uint32
	Tid    uint32
	PPid   uint32
	UID    uint32
	GID    uint32
	Comm   string
	Cgroup string
}

// ProbeContext is the context of a hook invocation: the current task, the
// positional parameters of the probed function and its return value
type ProbeContext struct {
	Task   *Task
	Retval int64

	params []interface{}
}

// NewProbeContext returns a new probe context
func NewProbeContext(task *Task, params ...interface{}) *ProbeContext {
	return &ProbeContext{Task: task, params: params}
}

// Parm returns the nth parameter, starting at 1
func (c *ProbeContext) Parm(n int) interface{} {
	if n < 1 || n > len(c.params) {
		return nil
	}
	return c.params[n-1]
}

// Syscall identifies a syscall reported by the raw sys_exit tracepoint
type Syscall int

// Rename syscalls
const (
	SysRename Syscall = iota + 1
	SysRenameat
	SysRenameat2
	SysOther
)

// RenameHooks is the set of probes attached to the rename path
type RenameHooks interface {
	SysRenameEnter(ctx *ProbeContext, oldpath, newpath string)
	SysRenameatEnter(ctx *ProbeContext, olddirfd int32, oldpath string, newdirfd int32, newpath string)
	SysRenameat2Enter(ctx *ProbeContext, olddirfd int32, oldpath string, newdirfd int32, newpath string, flags uint32)
	DoRenameat2Enter(ctx *ProbeContext)
	VFSRename(ctx *ProbeContext)
	DoRenameat2Exit(ctx *ProbeContext)
	SysRenameExit(ctx *ProbeContext)
	SysRenameatExit(ctx *ProbeContext)
	SysRenameat2Exit(ctx *ProbeContext)
	// RawSyscallExit is the raw sys_exit tracepoint, the first parameter is the Syscall
	RawSyscallExit(ctx *ProbeContext)
}
