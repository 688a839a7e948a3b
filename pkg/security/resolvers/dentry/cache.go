// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dentry

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// pathCache holds the resolved paths by path key
type pathCache struct {
	sync.Mutex
	paths *simplelru.LRU[model.PathKey, string]
}

func newPathCache(size int) (*pathCache, error) {
	paths, err := simplelru.NewLRU[model.PathKey, string](size, nil)
	if err != nil {
		return nil, err
	}
	return &pathCache{paths: paths}, nil
}

func (c *pathCache) get(key model.PathKey) (string, bool) {
	c.Lock()
	defer c.Unlock()
	return c.paths.Get(key)
}

func (c *pathCache) add(key model.PathKey, path string) {
	c.Lock()
	c.paths.Add(key, path)
	c.Unlock()
}

func (c *pathCache) len() int {
	c.Lock()
	defer c.Unlock()
	return c.paths.Len()
}

// purgeMount drops the paths of a mount and returns how many were dropped
func (c *pathCache) purgeMount(mountID uint32) int {
	c.Lock()
	defer c.Unlock()

	var purged int
	for _, key := range c.paths.Keys() {
		if key.MountID == mountID && c.paths.Remove(key) {
			purged++
		}
	}
	return purged
}
