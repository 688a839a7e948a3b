// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dentry holds dentry related files
package dentry

import (
	"fmt"
	"strings"

	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/metrics"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// Resolver resolves inode/mountID to full paths
type Resolver struct {
	pathnames    *PathnamesMap
	cache        *pathCache
	statsdClient statsd.ClientInterface

	hitsCounter *atomic.Int64
	missCounter *atomic.Int64
	errCounter  *atomic.Int64
}

// NewResolver returns a new dentry resolver
func NewResolver(pathnames *PathnamesMap, cacheSize int, statsdClient statsd.ClientInterface) (*Resolver, error) {
	cache, err := newPathCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dentry cache: %w", err)
	}

	return &Resolver{
		pathnames:    pathnames,
		cache:        cache,
		statsdClient: statsdClient,
		hitsCounter:  atomic.NewInt64(0),
		missCounter:  atomic.NewInt64(0),
		errCounter:   atomic.NewInt64(0),
	}, nil
}

// Pathnames returns the pathnames map
func (dr *Resolver) Pathnames() *PathnamesMap {
	return dr.pathnames
}

// GetParent returns the parent key of a path key
func (dr *Resolver) GetParent(key model.PathKey) (model.PathKey, error) {
	if key.IsNull() {
		return model.PathKey{}, ErrInvalidKey{Key: key}
	}

	leaf, ok := dr.pathnames.Lookup(key)
	if !ok {
		return model.PathKey{}, ErrEntryNotFound
	}
	return leaf.Parent, nil
}

// ResolveName returns the last segment of the path of a key
func (dr *Resolver) ResolveName(key model.PathKey) (string, error) {
	leaf, ok := dr.pathnames.Lookup(key)
	if !ok {
		return "", ErrEntryNotFound
	}
	return leaf.GetName(), nil
}

// Resolve walks the path leaves from the given key up to the root and returns the absolute path
func (dr *Resolver) Resolve(key model.PathKey) (string, error) {
	if key.IsNull() {
		return "", ErrInvalidKey{Key: key}
	}

	if path, ok := dr.cache.get(key); ok {
		dr.hitsCounter.Inc()
		return path, nil
	}
	dr.missCounter.Inc()

	path, err := dr.resolveFromMap(key)
	if err != nil {
		dr.errCounter.Inc()
		return path, &ErrPathResolution{Err: err}
	}

	dr.cache.add(key, path)
	return path, nil
}

func (dr *Resolver) resolveFromMap(key model.PathKey) (string, error) {
	var segments []string

	for i := 0; i <= model.MaxPathDepth; i++ {
		leaf, ok := dr.pathnames.Lookup(key)
		if !ok {
			if len(segments) == 0 {
				return "", ErrEntryNotFound
			}
			return computeFilenameFromParts(segments, true), ErrTruncatedParents
		}

		name := leaf.GetName()
		if len(name) == 0 {
			// written when the kernel resolver reached its iteration cap
			return computeFilenameFromParts(segments, true), ErrTruncatedParents
		}

		if name != "/" {
			segments = append(segments, name)
		}
		if leaf.Parent.Inode == 0 {
			return computeFilenameFromParts(segments, false), nil
		}
		key = leaf.Parent
	}

	return computeFilenameFromParts(segments, true), ErrTruncatedParents
}

func computeFilenameFromParts(segments []string, truncated bool) string {
	var builder strings.Builder
	if truncated {
		builder.WriteString("...")
	}
	if len(segments) == 0 {
		builder.WriteByte('/')
	}
	for i := len(segments) - 1; i >= 0; i-- {
		builder.WriteByte('/')
		builder.WriteString(segments[i])
	}
	return builder.String()
}

// DelCacheEntries removes the cached paths of a mount and returns how many
// were removed
func (dr *Resolver) DelCacheEntries(mountID uint32) int {
	return dr.cache.purgeMount(mountID)
}

// CacheLen returns the number of cached paths
func (dr *Resolver) CacheLen() int {
	return dr.cache.len()
}

// SendStats sends the dentry resolver metrics
func (dr *Resolver) SendStats() error {
	if count := dr.hitsCounter.Swap(0); count > 0 {
		if err := dr.statsdClient.Count(metrics.MetricDentryResolverHits, count, []string{metrics.CacheTag}, 1.0); err != nil {
			return fmt.Errorf("failed to send dentry resolver hits: %w", err)
		}
	}
	if count := dr.missCounter.Swap(0); count > 0 {
		if err := dr.statsdClient.Count(metrics.MetricDentryResolverMiss, count, []string{metrics.CacheTag}, 1.0); err != nil {
			return fmt.Errorf("failed to send dentry resolver misses: %w", err)
		}
	}
	if count := dr.errCounter.Swap(0); count > 0 {
		if err := dr.statsdClient.Count(metrics.MetricDentryResolverErrors, count, nil, 1.0); err != nil {
			return fmt.Errorf("failed to send dentry resolver errors: %w", err)
		}
	}
	return nil
}
