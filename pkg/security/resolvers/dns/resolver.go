// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package dns filters the DNS responses forwarded to user space
package dns

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"

	"github.com/DataDog/cws-rename-probe/pkg/security/metrics"
	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// CacheStats defines metrics for the LRU
type CacheStats struct {
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	cacheInsertions atomic.Int64
	cacheEvictions  atomic.Int64
}

// Deduplicator drops the responses already forwarded to user space. A
// response is a duplicate when a response with the same id and the same size
// was forwarded less than a window ago.
type Deduplicator struct {
	responses *lru.Cache[uint16, model.DNSResponseLRUEntry]
	window    time.Duration
	clock     clock.Clock

	filteredDNSPackets  *atomic.Uint32
	sameIDDifferentSize *atomic.Uint32

	statsdClient statsd.ClientInterface
	cacheStats   *CacheStats
}

// NewDeduplicator returns a new DNS response deduplicator
func NewDeduplicator(size int, window time.Duration, clk clock.Clock, statsdClient statsd.ClientInterface) (*Deduplicator, error) {
	if clk == nil {
		clk = clock.New()
	}

	d := &Deduplicator{
		window:              window,
		clock:               clk,
		filteredDNSPackets:  atomic.NewUint32(0),
		sameIDDifferentSize: atomic.NewUint32(0),
		statsdClient:        statsdClient,
		cacheStats:          &CacheStats{},
	}

	responses, err := lru.NewWithEvict[uint16, model.DNSResponseLRUEntry](size, func(uint16, model.DNSResponseLRUEntry) {
		d.cacheStats.cacheEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DNS responses cache: %w", err)
	}
	d.responses = responses

	return d, nil
}

// ShouldForward returns whether a response has to be forwarded to user space
func (d *Deduplicator) ShouldForward(packet []byte) (bool, error) {
	var header model.DNSHeader
	if _, err := header.UnmarshalBinary(packet); err != nil {
		return false, err
	}
	if !header.QR() {
		// only responses are deduplicated
		return true, nil
	}

	now := uint64(d.clock.Now().UnixNano())
	size := uint64(len(packet))

	if entry, ok := d.responses.Get(header.ID); ok {
		d.cacheStats.cacheHits.Inc()

		if entry.PacketSize != size {
			d.sameIDDifferentSize.Inc()
		} else if now-entry.Timestamp < uint64(d.window.Nanoseconds()) {
			d.filteredDNSPackets.Inc()
			return false, nil
		}
	} else {
		d.cacheStats.cacheMisses.Inc()
	}

	d.responses.Add(header.ID, model.DNSResponseLRUEntry{Timestamp: now, PacketSize: size})
	d.cacheStats.cacheInsertions.Inc()

	return true, nil
}

// ReceiverStats returns the filtering counters
func (d *Deduplicator) ReceiverStats() model.DNSReceiverStats {
	return model.DNSReceiverStats{
		FilteredDNSPackets:  d.filteredDNSPackets.Load(),
		SameIDDifferentSize: d.sameIDDifferentSize.Load(),
	}
}

// SendStats sends the DNS deduplicator metrics
func (d *Deduplicator) SendStats() error {
	if count := d.filteredDNSPackets.Swap(0); count > 0 {
		_ = d.statsdClient.Count(metrics.MetricDNSFiltered, int64(count), []string{}, 1.0)
	}
	if count := d.sameIDDifferentSize.Swap(0); count > 0 {
		_ = d.statsdClient.Count(metrics.MetricDNSSameIDDifferentSize, int64(count), []string{}, 1.0)
	}

	for tag, counter := range map[string]*atomic.Int64{
		"hit":       &d.cacheStats.cacheHits,
		"miss":      &d.cacheStats.cacheMisses,
		"insertion": &d.cacheStats.cacheInsertions,
		"eviction":  &d.cacheStats.cacheEvictions,
	} {
		_ = d.statsdClient.Count(metrics.MetricDNSFiltered+".cache", counter.Swap(0), []string{tag}, 1.0)
	}

	return nil
}
