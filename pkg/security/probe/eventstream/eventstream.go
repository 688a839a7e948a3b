// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package eventstream holds the transports of the kernel events
package eventstream

import (
	"context"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// EventStreamMap is the name of the map the events are sent to
const EventStreamMap = "events"

// LostEventCounter counts the events that couldn't be sent to user space
type LostEventCounter interface {
	CountLostEvent(count uint64, eventType model.EventType)
}

// EventHandler handles the raw events read from a stream
type EventHandler func(data []byte)

// EventStream describes the interface implemented by the event transports
type EventStream interface {
	// Enqueue sends an event without blocking, false when the event was lost
	Enqueue(eventType model.EventType, data []byte) bool
	// Read consumes the events until the context is done
	Read(ctx context.Context, handler EventHandler) error
	SetMonitor(counter LostEventCounter)
}
