// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dentry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

var (
	// ErrProgNotFound is returned when a tail call targets an empty slot
	ErrProgNotFound = errors.New("program not found")
	// ErrTailCallLimit is returned when a chain of tail calls exceeds MaxTailCallCount
	ErrTailCallLimit = errors.New("tail call limit reached")
)

// TailCall describes the program to run next, a nil table ends the chain
type TailCall struct {
	Table *ProgArray
	Key   uint32
}

// Program is a program stored in a ProgArray
type Program func(ctx *vfs.ProbeContext) (TailCall, error)

// ProgArray is a table of programs indexed by key
type ProgArray struct {
	sync.RWMutex
	name  string
	progs map[uint32]Program
}

// NewProgArray returns a new program table
func NewProgArray(name string) *ProgArray {
	return &ProgArray{
		name:  name,
		progs: make(map[uint32]Program),
	}
}

// Name returns the name of the table
func (pa *ProgArray) Name() string {
	return pa.name
}

// Set stores a program at key
func (pa *ProgArray) Set(key uint32, prog Program) {
	pa.Lock()
	pa.progs[key] = prog
	pa.Unlock()
}

// Delete removes the program stored at key
func (pa *ProgArray) Delete(key uint32) {
	pa.Lock()
	delete(pa.progs, key)
	pa.Unlock()
}

// Get returns the program stored at key
func (pa *ProgArray) Get(key uint32) (Program, bool) {
	pa.RLock()
	defer pa.RUnlock()
	prog, ok := pa.progs[key]
	return prog, ok
}

// Trampoline runs chains of tail calls
type Trampoline struct {
	maxTailCalls int
}

// NewTrampoline returns a trampoline allowing at most maxTailCalls chained tail calls
func NewTrampoline(maxTailCalls int) *Trampoline {
	return &Trampoline{maxTailCalls: maxTailCalls}
}

// Run tail calls the program at key and the programs it chains to
func (t *Trampoline) Run(ctx *vfs.ProbeContext, table *ProgArray, key uint32) error {
	for calls := 0; table != nil; calls++ {
		if calls >= t.maxTailCalls {
			return ErrTailCallLimit
		}

		prog, ok := table.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s[%d]", ErrProgNotFound, table.name, key)
		}

		next, err := prog(ctx)
		if err != nil {
			return err
		}
		table, key = next.Table, next.Key
	}
	return nil
}
