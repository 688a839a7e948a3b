// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package syscallcache

import (
	"fmt"
	"math/rand"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxSyscallCtxArgStrLen is the maximum length of a captured string argument
const MaxSyscallCtxArgStrLen = 128

// SyscallCtx holds the arguments of a synchronous syscall
type SyscallCtx struct {
	ID   uint64   `json:"id"`
	Args []string `json:"args"`
}

// Contexts stores the syscall arguments by correlation id
type Contexts struct {
	entries *lru.Cache[uint64, *SyscallCtx]
	random  func() uint64
}

// NewContexts returns a new syscall context store
func NewContexts(size int) (*Contexts, error) {
	entries, err := lru.New[uint64, *SyscallCtx](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create syscall context store: %w", err)
	}
	return &Contexts{entries: entries, random: rand.Uint64}, nil
}

// CollectSyscallCtx captures the string arguments of a syscall under a new correlation id
func (c *Contexts) CollectSyscallCtx(record *SyscallCache, args ...string) uint64 {
	id := c.random()
	for id == 0 {
		id = c.random()
	}

	ctx := &SyscallCtx{ID: id, Args: make([]string, 0, len(args))}
	for _, arg := range args {
		if len(arg) > MaxSyscallCtxArgStrLen {
			arg = arg[:MaxSyscallCtxArgStrLen]
		}
		ctx.Args = append(ctx.Args, arg)
	}

	c.entries.Add(id, ctx)
	record.CtxID = id
	return id
}

// Get returns the arguments captured under a correlation id
func (c *Contexts) Get(id uint64) (*SyscallCtx, bool) {
	return c.entries.Get(id)
}
