// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package resolvers holds resolvers related files
package resolvers

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/benbjohnson/clock"

	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/cgroup"
	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/dentry"
	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/dns"
	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/process"
	"github.com/DataDog/cws-rename-probe/pkg/security/resolvers/span"
)

// Resolvers holds the list of the event attribute resolvers
type Resolvers struct {
	DentryResolver  *dentry.Resolver
	ProcessResolver *process.Resolver
	CGroupResolver  *cgroup.Resolver
	SpanResolver    *span.Resolver
	DNSDeduplicator *dns.Deduplicator
}

// NewResolvers creates a new instance of Resolvers
func NewResolvers(cfg *config.Config, statsdClient statsd.ClientInterface, clk clock.Clock) (*Resolvers, error) {
	pathnames, err := dentry.NewPathnamesMap(cfg.PathnamesMapSize)
	if err != nil {
		return nil, err
	}

	dentryResolver, err := dentry.NewResolver(pathnames, cfg.DentryCacheSize, statsdClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create the dentry resolver: %w", err)
	}

	processResolver, err := process.NewResolver(process.Opts{
		CacheSize: cfg.ProcessCacheSize,
		ProcRoot:  cfg.ProcRoot,
	}, statsdClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create the process resolver: %w", err)
	}

	cgroupResolver, err := cgroup.NewResolver(cfg.ProcessCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create the cgroup resolver: %w", err)
	}

	dnsDeduplicator, err := dns.NewDeduplicator(cfg.DNSDedupeCacheSize, cfg.DNSDedupeWindow, clk, statsdClient)
	if err != nil {
		return nil, err
	}

	return &Resolvers{
		DentryResolver:  dentryResolver,
		ProcessResolver: processResolver,
		CGroupResolver:  cgroupResolver,
		SpanResolver:    span.NewResolver(),
		DNSDeduplicator: dnsDeduplicator,
	}, nil
}

// SendStats sends the resolvers metrics
func (r *Resolvers) SendStats() error {
	if err := r.ProcessResolver.SendStats(); err != nil {
		return fmt.Errorf("failed to send process_resolver stats: %w", err)
	}
	if err := r.DentryResolver.SendStats(); err != nil {
		return fmt.Errorf("failed to send dentry_resolver stats: %w", err)
	}
	if err := r.DNSDeduplicator.SendStats(); err != nil {
		return fmt.Errorf("failed to send dns stats: %w", err)
	}
	return nil
}
