// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package serializers holds the JSON representation of the events
package serializers

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sys/unix"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileSerializer serializes a file to JSON
type FileSerializer struct {
	// File path
	Path string `json:"path,omitempty"`
	// File basename
	Name string `json:"name,omitempty"`
	// Error message from path resolution
	PathResolutionError string `json:"path_resolution_error,omitempty"`
	// File inode number
	Inode uint64 `json:"inode,omitempty"`
	// File mount ID
	MountID uint32 `json:"mount_id,omitempty"`
	// File mode
	Mode uint16 `json:"mode,omitempty"`
	// File User ID
	UID uint32 `json:"uid"`
	// File Group ID
	GID uint32 `json:"gid"`
	// File modified time
	Mtime *time.Time `json:"modification_time,omitempty"`
	// File change time
	Ctime *time.Time `json:"change_time,omitempty"`
	// Indicator of file OverlayFS layer
	InUpperLayer *bool `json:"in_upper_layer,omitempty"`
}

// ProcessContextSerializer serializes a process context to JSON
type ProcessContextSerializer struct {
	Pid  uint32 `json:"pid"`
	Tid  uint32 `json:"tid"`
	PPid uint32 `json:"ppid,omitempty"`
	UID  uint32 `json:"uid"`
	GID  uint32 `json:"gid"`
	Comm string `json:"comm,omitempty"`
}

// ContainerContextSerializer serializes a container context to JSON
type ContainerContextSerializer struct {
	// Container ID
	ID string `json:"id,omitempty"`
}

// DDContextSerializer serializes a span context to JSON
type DDContextSerializer struct {
	// Span ID used for APM correlation
	SpanID uint64 `json:"span_id,omitempty"`
	// Trace ID used for APM correlation
	TraceID string `json:"trace_id,omitempty"`
}

// SyscallContextSerializer serializes the arguments of the syscall
type SyscallContextSerializer struct {
	ID   uint64   `json:"id"`
	Args []string `json:"args,omitempty"`
}

// RenameEventSerializer serializes a rename event to JSON
type RenameEventSerializer struct {
	Old     *FileSerializer           `json:"old"`
	New     *FileSerializer           `json:"new"`
	Syscall *SyscallContextSerializer `json:"syscall,omitempty"`
}

// EventContextSerializer serializes an event context to JSON
type EventContextSerializer struct {
	// Event name
	Name string `json:"name"`
	// Event outcome
	Outcome string `json:"outcome"`
	// Return code of the syscall
	RetVal int64 `json:"return_code"`
	// True if the event was generated by a kernel-internal caller
	Async bool `json:"async,omitempty"`
}

// EventSerializer serializes an event to JSON
type EventSerializer struct {
	Date      time.Time                   `json:"date"`
	Event     EventContextSerializer      `json:"evt"`
	Rename    *RenameEventSerializer      `json:"rename,omitempty"`
	Process   *ProcessContextSerializer   `json:"process,omitempty"`
	Container *ContainerContextSerializer `json:"container,omitempty"`
	DDContext *DDContextSerializer        `json:"dd,omitempty"`
}

func getTimeIfNotZero(ns uint64) *time.Time {
	if ns == 0 {
		return nil
	}
	t := time.Unix(0, int64(ns)).UTC()
	return &t
}

func newFileSerializer(fe *model.FileEvent) *FileSerializer {
	fs := &FileSerializer{
		Path:                fe.PathnameStr,
		Name:                fe.BasenameStr,
		PathResolutionError: fe.GetPathResolutionError(),
		Inode:               fe.Inode,
		MountID:             fe.MountID,
		Mode:                fe.Mode,
		UID:                 fe.UID,
		GID:                 fe.GID,
		Mtime:               getTimeIfNotZero(fe.MTime),
		Ctime:               getTimeIfNotZero(fe.CTime),
	}
	if fe.GetInUpperLayer() || fe.GetInLowerLayer() {
		upper := fe.GetInUpperLayer()
		fs.InUpperLayer = &upper
	}
	return fs
}

// formatTraceID returns the 128 bits trace id in hexadecimal
func formatTraceID(hi, lo uint64) string {
	if hi == 0 {
		return fmt.Sprintf("%x", lo)
	}
	return fmt.Sprintf("%x%016x", hi, lo)
}

// serializeOutcome maps a return value to success, refused or error
func serializeOutcome(retval int64) string {
	switch {
	case retval >= 0:
		return "Success"
	case retval == -int64(unix.EACCES) || retval == -int64(unix.EPERM):
		return "Refused"
	default:
		return "Error"
	}
}

// NewEventSerializer creates a new event serializer, args are the syscall
// arguments matching the syscall context of the event, if any
func NewEventSerializer(event *model.Event, date time.Time, args []string) *EventSerializer {
	s := &EventSerializer{
		Date: date.UTC(),
		Event: EventContextSerializer{
			Name:    event.Type.String(),
			Outcome: serializeOutcome(event.Rename.Retval),
			RetVal:  event.Rename.Retval,
			Async:   event.IsAsync(),
		},
	}

	if event.Type == model.FileRenameEventType {
		s.Rename = &RenameEventSerializer{
			Old: newFileSerializer(&event.Rename.Old),
			New: newFileSerializer(&event.Rename.New),
		}
		if id := event.Rename.SyscallContext.ID; id != 0 {
			s.Rename.Syscall = &SyscallContextSerializer{ID: id, Args: args}
		}
	}

	if pc := event.ProcessContext; pc.Pid != 0 {
		s.Process = &ProcessContextSerializer{
			Pid:  pc.Pid,
			Tid:  pc.Tid,
			PPid: pc.PPid,
			UID:  pc.UID,
			GID:  pc.GID,
			Comm: pc.Comm,
		}
	}

	if event.ContainerContext.ID != "" {
		s.Container = &ContainerContextSerializer{ID: event.ContainerContext.ID}
	}

	if !event.SpanContext.IsNull() {
		s.DDContext = &DDContextSerializer{
			SpanID:  event.SpanContext.SpanID,
			TraceID: formatTraceID(event.SpanContext.TraceIDHi, event.SpanContext.TraceIDLo),
		}
	}

	return s
}

// ToJSON returns json
func (e *EventSerializer) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// MarshalEvent marshal the event
func MarshalEvent(event *model.Event, date time.Time, args []string) ([]byte, error) {
	return NewEventSerializer(event, date, args).ToJSON()
}
