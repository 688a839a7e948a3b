// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package ringbuffer holds ring buffer related files
package ringbuffer

import (
	"context"
	"errors"

	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/eventstream"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// ErrInvalidSize is returned for a ring buffer without capacity
var ErrInvalidSize = errors.New("invalid ring buffer size")

// RingBuffer is a bounded event transport: producers never block, an event
// that doesn't fit is lost and counted
type RingBuffer struct {
	events  chan []byte
	lost    *atomic.Uint64
	monitor eventstream.LostEventCounter
}

// New returns a ring buffer holding at most size events
func New(size int) (*RingBuffer, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &RingBuffer{
		events: make(chan []byte, size),
		lost:   atomic.NewUint64(0),
	}, nil
}

// SetMonitor sets the lost event counter
func (rb *RingBuffer) SetMonitor(counter eventstream.LostEventCounter) {
	rb.monitor = counter
}

// Enqueue sends an event, false when the buffer was full
func (rb *RingBuffer) Enqueue(eventType model.EventType, data []byte) bool {
	select {
	case rb.events <- data:
		return true
	default:
		rb.lost.Inc()
		if rb.monitor != nil {
			rb.monitor.CountLostEvent(1, eventType)
		}
		return false
	}
}

// Read calls the handler for each event until the context is done
func (rb *RingBuffer) Read(ctx context.Context, handler eventstream.EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-rb.events:
			handler(data)
		}
	}
}

// Poll returns the next event without blocking
func (rb *RingBuffer) Poll() ([]byte, bool) {
	select {
	case data := <-rb.events:
		return data, true
	default:
		return nil, false
	}
}

// Len returns the number of pending events
func (rb *RingBuffer) Len() int {
	return len(rb.events)
}

// Lost returns the number of lost events
func (rb *RingBuffer) Lost() uint64 {
	return rb.lost.Load()
}
