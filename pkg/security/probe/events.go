// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"fmt"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/syscallcache"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// drRenameCallback runs once the destination path is resolved, it sends the
// rename event. The record is popped first so that an event is sent at most once.
func (p *Probe) drRenameCallback(ctx *vfs.ProbeContext) (dentry.TailCall, error) {
	record := p.syscalls.Pop(ctx.Task.Tid, model.FileRenameEventType)
	if record == nil {
		return dentry.TailCall{}, nil
	}
	if p.IsUnhandledError(record.Retval) {
		return dentry.TailCall{}, nil
	}
	record.Stage = syscallcache.Done

	event := p.newRenameEvent(ctx.Task, record)

	data, err := event.MarshalBinary()
	if err != nil {
		seclog.Errorf("failed to serialize rename event: %v", err)
		p.eventsStats.CountDropped(model.FileRenameEventType, DropReasonEncoding)
		return dentry.TailCall{}, nil
	}

	// lost events are counted by the ring buffer monitor
	if p.ringBuffer.Enqueue(model.FileRenameEventType, data) {
		p.eventsStats.CountSent(model.FileRenameEventType)
	}

	return dentry.TailCall{}, nil
}

func (p *Probe) newRenameEvent(task *vfs.Task, record *syscallcache.SyscallCache) *model.Event {
	event := &model.Event{Type: model.FileRenameEventType}
	if record.Async {
		event.Flags |= model.EventFlagsAsync
	}

	event.Rename.Retval = record.Retval
	event.Rename.SyscallContext.ID = record.CtxID
	event.Rename.Old.FileFields = record.Rename.SrcFile
	event.Rename.New.FileFields = record.Rename.TargetFile

	if entry := p.resolvers.ProcessResolver.FillProcessContext(task, &event.ProcessContext); entry != nil {
		p.resolvers.CGroupResolver.FillContainerContext(entry.Pid, entry.CGroup, &event.ContainerContext)
	}
	p.resolvers.SpanResolver.FillSpanContext(task.Tid, &event.SpanContext)

	return event
}

// resolveFile resolves the path and the basename of a file from the path leaves
func (p *Probe) resolveFile(ev *model.Event, file *model.FileEvent) {
	pathname, err := p.resolvers.DentryResolver.Resolve(file.PathKey)
	if err != nil {
		ev.SetPathResolutionError(file, err)
	}
	file.SetPathnameStr(pathname)

	if name, err := p.resolvers.DentryResolver.ResolveName(file.PathKey); err == nil {
		file.BasenameStr = name
	}
}

// DecodeEvent unmarshals an event read from the ring buffer and resolves its paths
func (p *Probe) DecodeEvent(data []byte) (*model.Event, error) {
	event := &model.Event{}
	if _, err := event.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	switch event.Type {
	case model.FileRenameEventType:
		p.resolveFile(event, &event.Rename.Old)
		p.resolveFile(event, &event.Rename.New)
	default:
		return nil, &ErrUnexpectedEventType{EventType: event.Type}
	}

	return event, nil
}
