// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package vfs

import (
	"golang.org/x/sys/unix"

	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

const (
	// default offsets of old_dentry and new_dentry in struct renamedata
	renameDataOldDentryOffset = 16
	renameDataNewDentryOffset = 40

	supportedRenameFlags = RenameNoReplace | RenameExchange | RenameWhiteout
)

// renameat2 flags
const (
	RenameNoReplace uint32 = 1 << iota
	RenameExchange
	RenameWhiteout
)

// UsesRenameData returns whether vfs_rename takes a struct renamedata on this kernel
func (fs *FS) UsesRenameData() bool {
	return fs.opts.KernelVersion >= kernel.Kernel5_12
}

// RenameDataOffsets returns the offsets of old_dentry and new_dentry in struct renamedata
func (fs *FS) RenameDataOffsets() (uint64, uint64) {
	if fs.opts.RenameDataOffsets != nil {
		return fs.opts.RenameDataOffsets[0], fs.opts.RenameDataOffsets[1]
	}
	return renameDataOldDentryOffset, renameDataNewDentryOffset
}

func errno(err error) int64 {
	if e, ok := err.(unix.Errno); ok {
		return -int64(e)
	}
	return -int64(unix.EINVAL)
}

// Rename is the rename syscall
func (fs *FS) Rename(task *Task, oldpath, newpath string) int64 {
	hooks := fs.getHooks()
	ctx := NewProbeContext(task)
	if hooks != nil {
		hooks.SysRenameEnter(ctx, oldpath, newpath)
	}

	ret := fs.doRenameat2(task, AtFDCWD, oldpath, AtFDCWD, newpath, 0)

	if hooks != nil {
		ctx.Retval = ret
		hooks.SysRenameExit(ctx)
		fs.rawSyscallExit(hooks, task, SysRename, ret)
	}
	return ret
}

// Renameat is the renameat syscall
func (fs *FS) Renameat(task *Task, olddirfd int32, oldpath string, newdirfd int32, newpath string) int64 {
	hooks := fs.getHooks()
	ctx := NewProbeContext(task)
	if hooks != nil {
		hooks.SysRenameatEnter(ctx, olddirfd, oldpath, newdirfd, newpath)
	}

	ret := fs.doRenameat2(task, olddirfd, oldpath, newdirfd, newpath, 0)

	if hooks != nil {
		ctx.Retval = ret
		hooks.SysRenameatExit(ctx)
		fs.rawSyscallExit(hooks, task, SysRenameat, ret)
	}
	return ret
}

// Renameat2 is the renameat2 syscall
func (fs *FS) Renameat2(task *Task, olddirfd int32, oldpath string, newdirfd int32, newpath string, flags uint32) int64 {
	hooks := fs.getHooks()
	ctx := NewProbeContext(task)
	if hooks != nil {
		hooks.SysRenameat2Enter(ctx, olddirfd, oldpath, newdirfd, newpath, flags)
	}

	ret := fs.doRenameat2(task, olddirfd, oldpath, newdirfd, newpath, flags)

	if hooks != nil {
		ctx.Retval = ret
		hooks.SysRenameat2Exit(ctx)
		fs.rawSyscallExit(hooks, task, SysRenameat2, ret)
	}
	return ret
}

// KernelRename renames from a kernel context (io_uring, nfsd...), no syscall probe fires
func (fs *FS) KernelRename(task *Task, oldpath, newpath string, flags uint32) int64 {
	return fs.doRenameat2(task, AtFDCWD, oldpath, AtFDCWD, newpath, flags)
}

func (fs *FS) rawSyscallExit(hooks RenameHooks, task *Task, nr Syscall, ret int64) {
	ctx := NewProbeContext(task, nr)
	ctx.Retval = ret
	hooks.RawSyscallExit(ctx)
}

func (fs *FS) doRenameat2(task *Task, olddirfd int32, oldpath string, newdirfd int32, newpath string, flags uint32) int64 {
	hooks := fs.getHooks()
	ctx := NewProbeContext(task)
	if hooks != nil {
		hooks.DoRenameat2Enter(ctx)
	}

	ret := fs.renameat2(task, hooks, olddirfd, oldpath, newdirfd, newpath, flags)

	if hooks != nil {
		ctx.Retval = ret
		hooks.DoRenameat2Exit(ctx)
	}
	return ret
}

type renameTarget struct {
	oldParent *dentry
	src       *dentry
	newParent *dentry
	target    *dentry
}

func (fs *FS) lookupRename(oldpath, newpath string) (*renameTarget, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	oldParent, oldName, err := fs.lookupParent(oldpath)
	if err != nil {
		return nil, err
	}
	src, ok := oldParent.children[oldName]
	if !ok {
		return nil, unix.ENOENT
	}

	newParent, newName, err := fs.lookupParent(newpath)
	if err != nil {
		return nil, err
	}
	target, ok := newParent.children[newName]
	if !ok {
		// negative dentry
		target = &dentry{fs: fs, name: newName, parent: newParent, mount: newParent.mount}
	}

	return &renameTarget{oldParent: oldParent, src: src, newParent: newParent, target: target}, nil
}

func (fs *FS) vfsRename(task *Task, hooks RenameHooks, rt *renameTarget) {
	if hooks == nil {
		return
	}

	var ctx *ProbeContext
	if fs.UsesRenameData() {
		oldOffset, newOffset := fs.RenameDataOffsets()
		rd := &RenameData{fields: map[uint64]Dentry{
			oldOffset: rt.src,
			newOffset: rt.target,
		}}
		ctx = NewProbeContext(task, rd)
	} else {
		ctx = NewProbeContext(task, rt.oldParent, Dentry(rt.src), rt.newParent, Dentry(rt.target))
	}

	hooks.VFSRename(ctx)
	// overlayfs calls vfs_rename on the upper layer
	if rt.src.Mount().IsOverlay() {
		hooks.VFSRename(ctx)
	}
}

func isSubdir(d, ancestor *dentry) bool {
	for {
		if d == ancestor {
			return true
		}
		if d.parent == d {
			return false
		}
		d = d.parent
	}
}

func (fs *FS) renameat2(task *Task, hooks RenameHooks, olddirfd int32, oldpath string, newdirfd int32, newpath string, flags uint32) int64 {
	if olddirfd != AtFDCWD || newdirfd != AtFDCWD {
		return -int64(unix.EBADF)
	}
	if flags&^supportedRenameFlags != 0 {
		return -int64(unix.EINVAL)
	}
	if flags&RenameNoReplace != 0 && flags&RenameExchange != 0 {
		return -int64(unix.EINVAL)
	}

	// serializes renames as s_vfs_rename_mutex does
	fs.renameMu.Lock()
	defer fs.renameMu.Unlock()

	rt, err := fs.lookupRename(oldpath, newpath)
	if err != nil {
		return errno(err)
	}

	fs.vfsRename(task, hooks, rt)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkRename(rt, flags); err != nil {
		return errno(err)
	}
	if rt.src == rt.target {
		return 0
	}

	fs.move(rt)
	return 0
}

// checkRename must be called with mu held
func (fs *FS) checkRename(rt *renameTarget, flags uint32) error {
	if fault, ok := fs.faults[rt.src]; ok {
		delete(fs.faults, rt.src)
		return fault
	}
	// the simulated filesystems implement neither exchange nor whiteout
	if flags&(RenameExchange|RenameWhiteout) != 0 {
		return unix.EOPNOTSUPP
	}
	if rt.src.mount != rt.newParent.mount {
		return unix.EXDEV
	}
	if rt.src == rt.target {
		return nil
	}
	if rt.src == rt.src.mount.root || rt.target == rt.target.mount.root {
		return unix.EBUSY
	}

	positive := rt.target.inode != nil
	if positive && flags&RenameNoReplace != 0 {
		return unix.EEXIST
	}

	if rt.src.isDir() {
		if isSubdir(rt.newParent, rt.src) {
			return unix.EINVAL
		}
		if positive && !rt.target.isDir() {
			return unix.ENOTDIR
		}
		if positive && len(rt.target.children) > 0 {
			return unix.ENOTEMPTY
		}
	} else if positive && rt.target.isDir() {
		return unix.EISDIR
	}
	return nil
}

// move must be called with mu held, it applies the d_move semantics
func (fs *FS) move(rt *renameTarget) {
	now := uint64(fs.opts.Clock.Now().UnixNano())

	if rt.target.inode != nil {
		delete(rt.newParent.children, rt.target.name)
		if rt.target.isDir() {
			rt.newParent.inode.NLink--
		}
		fs.releaseInode(rt.target.inode)
		delete(fs.faults, rt.target)
	}

	delete(rt.oldParent.children, rt.src.name)
	if rt.src.isDir() && rt.oldParent != rt.newParent {
		rt.oldParent.inode.NLink--
		rt.newParent.inode.NLink++
	}

	rt.src.parent = rt.newParent
	rt.src.name = rt.target.name
	rt.newParent.children[rt.src.name] = rt.src

	rt.src.inode.CTime = now
	rt.oldParent.inode.MTime = now
	rt.newParent.inode.MTime = now
	if rt.src.mount.IsOverlay() {
		rt.src.inode.Upper = true
	}
}
