// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package span holds the span contexts registered by the traced applications
package span

import (
	"sync"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// Resolver stores the active span of each thread
type Resolver struct {
	sync.RWMutex
	spans map[uint32]model.SpanContext
}

// NewResolver returns a new span resolver
func NewResolver() *Resolver {
	return &Resolver{spans: make(map[uint32]model.SpanContext)}
}

// Register sets the active span of a thread, a null span unregisters it
func (r *Resolver) Register(tid uint32, span model.SpanContext) {
	r.Lock()
	defer r.Unlock()

	if span.IsNull() {
		delete(r.spans, tid)
		return
	}
	r.spans[tid] = span
}

// Unregister removes the active span of a thread
func (r *Resolver) Unregister(tid uint32) {
	r.Lock()
	delete(r.spans, tid)
	r.Unlock()
}

// FillSpanContext fills the span context with the active span of the thread
func (r *Resolver) FillSpanContext(tid uint32, span *model.SpanContext) {
	r.RLock()
	defer r.RUnlock()

	*span = r.spans[tid]
}
