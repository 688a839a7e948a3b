// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dentry

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// PathnamesMap is the map shared by the kernel resolver, which writes the
// path leaves, and the user space resolver, which reads them
type PathnamesMap struct {
	leaves *lru.Cache[model.PathKey, model.PathLeaf]
}

// NewPathnamesMap returns a new pathnames map holding at most size leaves
func NewPathnamesMap(size int) (*PathnamesMap, error) {
	leaves, err := lru.New[model.PathKey, model.PathLeaf](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pathnames map: %w", err)
	}
	return &PathnamesMap{leaves: leaves}, nil
}

// Update inserts or replaces the leaf of a key
func (m *PathnamesMap) Update(key model.PathKey, leaf model.PathLeaf) {
	m.leaves.Add(key, leaf)
}

// Lookup returns the leaf of a key
func (m *PathnamesMap) Lookup(key model.PathKey) (model.PathLeaf, bool) {
	return m.leaves.Get(key)
}

// Delete removes the leaf of a key
func (m *PathnamesMap) Delete(key model.PathKey) {
	m.leaves.Remove(key)
}

// Len returns the number of leaves
func (m *PathnamesMap) Len() int {
	return m.leaves.Len()
}
