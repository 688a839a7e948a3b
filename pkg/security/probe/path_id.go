// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"sync"

	"go.uber.org/atomic"
)

// pathIDs holds a path id per mount. Invalidating a path id makes the path
// leaves written with the previous one unreachable from new keys.
type pathIDs struct {
	sync.RWMutex
	ids map[uint32]*atomic.Uint32
}

func newPathIDs() *pathIDs {
	return &pathIDs{ids: make(map[uint32]*atomic.Uint32)}
}

func (p *pathIDs) counter(mountID uint32) *atomic.Uint32 {
	p.RLock()
	id, ok := p.ids[mountID]
	p.RUnlock()
	if ok {
		return id
	}

	p.Lock()
	defer p.Unlock()
	if id, ok = p.ids[mountID]; !ok {
		id = atomic.NewUint32(0)
		p.ids[mountID] = id
	}
	return id
}

// get returns the path id of a mount, a new one when invalidate is set
func (p *pathIDs) get(mountID uint32, invalidate bool) uint32 {
	if invalidate {
		return p.counter(mountID).Inc()
	}
	return p.counter(mountID).Load()
}

func (p *pathIDs) current(mountID uint32) uint32 {
	return p.get(mountID, false)
}
