// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// DropReason is the reason a syscall was dropped before its event was sent
type DropReason uint8

const (
	// DropReasonPendingVFS the syscall returned before reaching vfs_rename
	DropReasonPendingVFS DropReason = iota
	// DropReasonLayout the vfs_rename arguments couldn't be read
	DropReasonLayout
	// DropReasonTailCall the dentry resolver couldn't complete
	DropReasonTailCall
	// DropReasonEncoding the event couldn't be serialized
	DropReasonEncoding
	maxDropReason
)

func (r DropReason) String() string {
	switch r {
	case DropReasonPendingVFS:
		return "pending_vfs"
	case DropReasonLayout:
		return "layout"
	case DropReasonTailCall:
		return "tail_call"
	case DropReasonEncoding:
		return "encoding"
	}
	return "unknown"
}

// EventTypeStats holds the counters of an event type
type EventTypeStats struct {
	Sent           *atomic.Uint64
	Lost           *atomic.Uint64
	Discarded      *atomic.Uint64
	UnhandledError *atomic.Uint64
	Dropped        [maxDropReason]*atomic.Uint64
}

// EventsStats holds statistics about the number of sent, lost and dropped events
type EventsStats struct {
	PerEventType [model.MaxKernelEventType]EventTypeStats
}

// NewEventsStats returns zeroed events statistics
func NewEventsStats() *EventsStats {
	stats := &EventsStats{}
	for i := range stats.PerEventType {
		s := &stats.PerEventType[i]
		s.Sent = atomic.NewUint64(0)
		s.Lost = atomic.NewUint64(0)
		s.Discarded = atomic.NewUint64(0)
		s.UnhandledError = atomic.NewUint64(0)
		for j := range s.Dropped {
			s.Dropped[j] = atomic.NewUint64(0)
		}
	}
	return stats
}

func (e *EventsStats) get(eventType model.EventType) *EventTypeStats {
	if eventType >= model.MaxKernelEventType {
		eventType = model.UnknownEventType
	}
	return &e.PerEventType[eventType]
}

// CountSent increments the number of events sent
func (e *EventsStats) CountSent(eventType model.EventType) {
	e.get(eventType).Sent.Inc()
}

// CountLostEvent adds count to the number of events lost by the transport
func (e *EventsStats) CountLostEvent(count uint64, eventType model.EventType) {
	e.get(eventType).Lost.Add(count)
}

// CountDiscarded increments the number of syscalls discarded by the filters
func (e *EventsStats) CountDiscarded(eventType model.EventType) {
	e.get(eventType).Discarded.Inc()
}

// CountUnhandledError increments the number of syscalls ignored because of their return value
func (e *EventsStats) CountUnhandledError(eventType model.EventType) {
	e.get(eventType).UnhandledError.Inc()
}

// CountDropped increments the number of syscalls dropped for the given reason
func (e *EventsStats) CountDropped(eventType model.EventType, reason DropReason) {
	if reason >= maxDropReason {
		return
	}
	e.get(eventType).Dropped[reason].Inc()
}

// GetSent returns the number of events sent
func (e *EventsStats) GetSent(eventType model.EventType) uint64 {
	return e.get(eventType).Sent.Load()
}

// GetLost returns the number of events lost
func (e *EventsStats) GetLost(eventType model.EventType) uint64 {
	return e.get(eventType).Lost.Load()
}

// GetDiscarded returns the number of syscalls discarded
func (e *EventsStats) GetDiscarded(eventType model.EventType) uint64 {
	return e.get(eventType).Discarded.Load()
}

// GetUnhandledError returns the number of syscalls ignored because of their return value
func (e *EventsStats) GetUnhandledError(eventType model.EventType) uint64 {
	return e.get(eventType).UnhandledError.Load()
}

// GetDropped returns the number of syscalls dropped for the given reason
func (e *EventsStats) GetDropped(eventType model.EventType, reason DropReason) uint64 {
	if reason >= maxDropReason {
		return 0
	}
	return e.get(eventType).Dropped[reason].Load()
}
