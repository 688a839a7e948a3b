// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"strings"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/constantfetch"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/syscallcache"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

func (p *Probe) traceSysRename(ctx *vfs.ProbeContext, async bool, flags uint32, oldpath, newpath string) {
	record := &syscallcache.SyscallCache{
		Type:   model.FileRenameEventType,
		Async:  async,
		Policy: p.policies.Get(model.FileRenameEventType).Policy,
	}
	record.Rename.Flags = flags

	if !async {
		p.contexts.CollectSyscallCtx(record, oldpath, newpath)
	}

	if err := p.syscalls.Push(ctx.Task.Tid, record); err != nil {
		// a slot past the vfs stage belongs to a rename whose exit was never seen
		if stale := p.syscalls.Peek(ctx.Task.Tid, model.FileRenameEventType); stale != nil && stale.Stage != syscallcache.PendingVFS {
			p.syscalls.PushAsyncFallback(ctx.Task.Tid, record)
			return
		}
		seclog.Tracef("rename of tid %d not cached: %v", ctx.Task.Tid, err)
	}
}

// SysRenameEnter is the rename syscall entry
func (p *Probe) SysRenameEnter(ctx *vfs.ProbeContext, oldpath, newpath string) {
	p.traceSysRename(ctx, false, 0, oldpath, newpath)
}

// SysRenameatEnter is the renameat syscall entry
func (p *Probe) SysRenameatEnter(ctx *vfs.ProbeContext, _ int32, oldpath string, _ int32, newpath string) {
	p.traceSysRename(ctx, false, 0, oldpath, newpath)
}

// SysRenameat2Enter is the renameat2 syscall entry
func (p *Probe) SysRenameat2Enter(ctx *vfs.ProbeContext, _ int32, oldpath string, _ int32, newpath string, flags uint32) {
	p.traceSysRename(ctx, false, flags, oldpath, newpath)
}

// DoRenameat2Enter catches the renames issued from the kernel, a rename
// already cached by a syscall entry is left untouched
func (p *Probe) DoRenameat2Enter(ctx *vfs.ProbeContext) {
	if p.Opts.DontHookDoRenameat2 {
		return
	}

	record := p.syscalls.Peek(ctx.Task.Tid, model.FileRenameEventType)
	if record == nil {
		p.traceSysRename(ctx, true, 0, "", "")
		return
	}

	// a slot past the vfs stage belongs to a rename whose exit was never seen
	if record.Stage != syscallcache.PendingVFS {
		async := &syscallcache.SyscallCache{
			Type:   model.FileRenameEventType,
			Async:  true,
			Policy: p.policies.Get(model.FileRenameEventType).Policy,
		}
		p.syscalls.PushAsyncFallback(ctx.Task.Tid, async)
	}
}

// readRenameDentries reads the vfs_rename source and target dentries according to the layout
func (p *Probe) readRenameDentries(ctx *vfs.ProbeContext) (vfs.Dentry, vfs.Dentry, error) {
	if p.layout.VFSRenameInputType == constantfetch.VFSRenameStructInput {
		rd, _ := ctx.Parm(1).(*vfs.RenameData)
		src, err := rd.ReadDentry(p.layout.RenameSrcDentryOffset)
		if err != nil {
			return nil, nil, err
		}
		target, err := rd.ReadDentry(p.layout.RenameTargetDentryOffset)
		if err != nil {
			return nil, nil, err
		}
		return src, target, nil
	}

	src, srcOk := ctx.Parm(2).(vfs.Dentry)
	target, targetOk := ctx.Parm(4).(vfs.Dentry)
	if !srcOk || !targetOk {
		return nil, nil, vfs.ErrFault
	}
	return src, target, nil
}

// fillFile fills the file fields from the inode of a dentry
func (p *Probe) fillFile(d vfs.Dentry, file *model.FileFields) {
	mount := d.Mount()
	stat, _ := d.Stat()

	file.PathKey = model.PathKey{
		Inode:   stat.Ino,
		MountID: mount.ID,
		PathID:  p.pathIDs.get(mount.ID, false),
	}
	file.Device = mount.Device
	file.UID = stat.UID
	file.GID = stat.GID
	file.NLink = stat.NLink
	file.Mode = stat.Mode
	file.CTime = stat.CTime
	file.MTime = stat.MTime

	file.Flags = 0
	if mount.IsOverlay() {
		if stat.Upper {
			file.Flags |= model.UpperLayer
		} else {
			file.Flags |= model.LowerLayer
		}
	}
}

// parentKeys returns the keys of the parents of a dentry, the closest first
func (p *Probe) parentKeys(d vfs.Dentry, depth int) []model.PathKey {
	var parents []model.PathKey
	for i := 0; i < depth; i++ {
		parent := d.Parent()
		if parent == d {
			break
		}
		parents = append(parents, model.PathKey{Inode: parent.Ino(), MountID: parent.Mount().ID})
		d = parent
	}
	return parents
}

// dentryPath walks the parents of a dentry up to the root, within the
// dentry resolver limits. It returns false when the walk was cut.
func (p *Probe) dentryPath(d vfs.Dentry) (string, bool) {
	maxDepth := p.Config.DentryResolverMaxTailCalls * p.Config.DentryResolverMaxIterationDepth

	var segments []string
	for depth := 0; depth < maxDepth; depth++ {
		name := d.Name()
		parent := d.Parent()
		if parent == d || name == "/" || name == "" {
			if len(segments) == 0 {
				return "/", true
			}
			var b strings.Builder
			for i := len(segments) - 1; i >= 0; i-- {
				b.WriteByte('/')
				b.WriteString(segments[i])
			}
			return b.String(), true
		}
		segments = append(segments, name)
		d = parent
	}
	return "", false
}

func (p *Probe) approveRename(ctx *vfs.ProbeContext, record *syscallcache.SyscallCache) kfilters.SyscallState {
	src := record.Rename.SrcDentry

	input := &kfilters.ApprovalInput{
		EventType: model.FileRenameEventType,
		Key:       model.PathKey{Inode: src.Ino(), MountID: src.Mount().ID},
		Parents:   p.parentKeys(src, p.discarders.MaxParentDepth()),
		Basename:  src.Name(),
		Flags:     record.Rename.Flags,
		Pid:       ctx.Task.Pid,
		UID:       ctx.Task.UID,
	}
	for _, d := range []vfs.Dentry{src, record.Rename.TargetDentry} {
		if path, ok := p.dentryPath(d); ok {
			input.Paths = append(input.Paths, path)
		}
	}

	return kfilters.ApproveSyscall(record.Policy, p.policies.Get(model.FileRenameEventType).Approvers, p.discarders, input)
}

// VFSRename captures the source and the target of the rename. The source is
// given a fake inode so that its old path survives the rename, the target
// takes the identity of the source with a new path id.
func (p *Probe) VFSRename(ctx *vfs.ProbeContext) {
	record := p.syscalls.Peek(ctx.Task.Tid, model.FileRenameEventType)
	if record == nil {
		return
	}

	// second pass, overlayfs for instance
	if record.Rename.TargetFile.Inode != 0 {
		return
	}

	src, target, err := p.readRenameDentries(ctx)
	if err != nil {
		seclog.Debugf("failed to read the vfs_rename dentries with layout %s: %v", p.layout, err)
		p.syscalls.Pop(ctx.Task.Tid, model.FileRenameEventType)
		p.eventsStats.CountDropped(model.FileRenameEventType, DropReasonLayout)
		return
	}
	record.Rename.SrcDentry = src
	record.Rename.TargetDentry = target

	p.fillFile(src, &record.Rename.SrcFile)
	record.Rename.TargetFile = record.Rename.SrcFile
	if src.Mount().IsOverlay() {
		// renaming copies the file up
		record.Rename.TargetFile.Flags = record.Rename.TargetFile.Flags&^model.LowerLayer | model.UpperLayer
	}

	// the target dentry is still empty, the target file will have the source inode
	mountID := src.Mount().ID
	record.Rename.TargetFile.PathKey = model.PathKey{
		Inode:   src.Ino(),
		MountID: mountID,
		PathID:  p.pathIDs.get(mountID, true),
	}

	// the old path is kept under a fake inode
	record.Rename.SrcFile.Inode = model.NewFakeInode(p.random())

	// the inode of an overwritten target is about to be released
	if ino := target.Ino(); ino != 0 {
		p.discarders.ExpireInodeDiscarders(target.Mount().ID, ino)
	}

	record.State = p.approveRename(ctx, record)
	record.Stage = syscallcache.VFSDetailed
	if record.State == kfilters.Discarded {
		p.eventsStats.CountDiscarded(model.FileRenameEventType)
		return
	}

	record.Resolver.Reset(src, record.Rename.SrcFile.PathKey, dentry.DRNoCallback)
	if err := p.dentryResolver.ResolveDentry(ctx, dentry.KprobeOrFentryType); err != nil {
		seclog.Debugf("failed to resolve the rename source of tid %d: %v", ctx.Task.Tid, err)
		p.syscalls.Pop(ctx.Task.Tid, model.FileRenameEventType)
		p.eventsStats.CountDropped(model.FileRenameEventType, DropReasonTailCall)
	}
}

// sysRenameRet invalidates the facts attached to the renamed inode and
// resolves the destination path. The record is popped by the callback, or
// here when no event has to be sent.
func (p *Probe) sysRenameRet(ctx *vfs.ProbeContext, progType dentry.ProgType) {
	tid := ctx.Task.Tid
	retval := ctx.Retval

	if p.IsUnhandledError(retval) {
		if record := p.syscalls.Pop(tid, model.FileRenameEventType); record != nil {
			p.eventsStats.CountUnhandledError(model.FileRenameEventType)
		}
		return
	}

	record := p.syscalls.Peek(tid, model.FileRenameEventType)
	if record == nil {
		return
	}

	if record.Stage == syscallcache.PendingVFS {
		p.syscalls.Pop(tid, model.FileRenameEventType)
		p.eventsStats.CountDropped(model.FileRenameEventType, DropReasonPendingVFS)
		return
	}

	p.invalidateRename(record, retval)

	if record.State != kfilters.Discarded && p.Config.IsEventTypeEnabled(model.FileRenameEventType) {
		record.Retval = retval
		record.Stage = syscallcache.Resolving

		// on success the source dentry was moved to the destination
		callback := dentry.SelectDRKey(progType, dentry.DentryResolverRenameCallbackKprobeKey, dentry.DentryResolverRenameCallbackTracepointKey)
		record.Resolver.Reset(record.Rename.SrcDentry, record.Rename.TargetFile.PathKey, callback)

		err := p.dentryResolver.ResolveDentry(ctx, progType)
		if err == nil {
			return
		}
		seclog.Debugf("failed to resolve the rename destination of tid %d: %v", tid, err)
		p.eventsStats.CountDropped(model.FileRenameEventType, DropReasonTailCall)
	}

	p.syscalls.Pop(tid, model.FileRenameEventType)
}

// DoRenameat2Exit is the do_renameat2 return hook
func (p *Probe) DoRenameat2Exit(ctx *vfs.ProbeContext) {
	if p.Opts.DontHookDoRenameat2 {
		return
	}
	p.sysRenameRet(ctx, dentry.KprobeOrFentryType)
}

func (p *Probe) sysExit(ctx *vfs.ProbeContext) {
	if p.Opts.UseSyscallExitTracepoint {
		return
	}
	p.sysRenameRet(ctx, dentry.KprobeOrFentryType)
}

// SysRenameExit is the rename syscall exit
func (p *Probe) SysRenameExit(ctx *vfs.ProbeContext) {
	p.sysExit(ctx)
}

// SysRenameatExit is the renameat syscall exit
func (p *Probe) SysRenameatExit(ctx *vfs.ProbeContext) {
	p.sysExit(ctx)
}

// SysRenameat2Exit is the renameat2 syscall exit
func (p *Probe) SysRenameat2Exit(ctx *vfs.ProbeContext) {
	p.sysExit(ctx)
}

// RawSyscallExit is the raw sys_exit tracepoint
func (p *Probe) RawSyscallExit(ctx *vfs.ProbeContext) {
	if !p.Opts.UseSyscallExitTracepoint {
		return
	}

	switch nr, _ := ctx.Parm(1).(vfs.Syscall); nr {
	case vfs.SysRename, vfs.SysRenameat, vfs.SysRenameat2:
		p.sysRenameRet(ctx, dentry.TracepointType)
	}
}

// resolverState returns the resolver cursor of the rename in flight for the current task
func (p *Probe) resolverState(ctx *vfs.ProbeContext) *dentry.ResolverState {
	record := p.syscalls.Peek(ctx.Task.Tid, model.FileRenameEventType)
	if record == nil {
		return nil
	}
	return &record.Resolver
}
