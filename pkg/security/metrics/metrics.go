// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package metrics holds the metric names sent by the rename probe
package metrics

// MetricRuntimePrefix is the prefix of the metrics sent by the runtime security module
const MetricRuntimePrefix = "datadog.runtime_security"

var (
	// Syscall cache metrics

	// MetricSyscallCacheInFlight is the name of the metric used to report the number of in-flight syscalls
	// Tags: -
	MetricSyscallCacheInFlight = newRuntimeMetric(".syscall_cache.in_flight")
	// MetricSyscallCacheSlotBusy is the name of the metric used to count the pushes rejected because a slot was busy
	// Tags: event_type
	MetricSyscallCacheSlotBusy = newRuntimeMetric(".syscall_cache.slot_busy")

	// Rename outcomes

	// MetricEventSent is the name of the metric used to count the events sent to the ring buffer
	// Tags: event_type, async
	MetricEventSent = newRuntimeMetric(".events.sent")
	// MetricEventDiscarded is the name of the metric used to count the syscalls discarded by the filters
	// Tags: event_type
	MetricEventDiscarded = newRuntimeMetric(".events.discarded")
	// MetricEventUnhandledError is the name of the metric used to count the syscalls dropped because of an unhandled error
	// Tags: event_type
	MetricEventUnhandledError = newRuntimeMetric(".events.unhandled_error")
	// MetricEventDropped is the name of the metric used to count the syscalls dropped before being resolved
	// Tags: event_type, reason
	MetricEventDropped = newRuntimeMetric(".events.dropped")
	// MetricEventLost is the name of the metric used to count the events lost because the ring buffer was full
	// Tags: event_type
	MetricEventLost = newRuntimeMetric(".events.lost")

	// Dentry resolver metrics

	// MetricDentryResolverHits is the name of the metric used to report the number of user space dentry resolutions
	// Tags: cache
	MetricDentryResolverHits = newRuntimeMetric(".dentry_resolver.hits")
	// MetricDentryResolverMiss is the name of the metric used to report the number of user space dentry resolution misses
	// Tags: cache
	MetricDentryResolverMiss = newRuntimeMetric(".dentry_resolver.miss")
	// MetricDentryResolverErrors is the name of the metric used to report the number of failed resolutions
	// Tags: -
	MetricDentryResolverErrors = newRuntimeMetric(".dentry_resolver.errors")
	// MetricDentryResolverTruncated is the name of the metric used to count the kernel resolutions that reached the iteration cap
	// Tags: -
	MetricDentryResolverTruncated = newRuntimeMetric(".dentry_resolver.truncated")
	// MetricDentryResolverTailCallFailed is the name of the metric used to count the failed tail calls
	// Tags: prog_type
	MetricDentryResolverTailCallFailed = newRuntimeMetric(".dentry_resolver.tail_call_failed")

	// Discarder metrics

	// MetricDiscarderAdded is the number of discarder added
	// Tags: -
	MetricDiscarderAdded = newRuntimeMetric(".discarders.discarder_added")
	// MetricEventDiscardedByDiscarder is the number of events discarded by a discarder
	// Tags: -
	MetricEventDiscardedByDiscarder = newRuntimeMetric(".discarders.event_discarded")
	// MetricDiscarderExpired is the number of discarders expired because their inode was renamed or overwritten
	// Tags: -
	MetricDiscarderExpired = newRuntimeMetric(".discarders.discarder_expired")
	// MetricMountRevisionBumped is the number of mount revisions bumped by directory renames
	// Tags: -
	MetricMountRevisionBumped = newRuntimeMetric(".discarders.mount_revision_bumped")

	// Process resolver metrics

	// MetricProcessResolverHits is the name of the metric used to report the process resolver hits
	// Tags: type
	MetricProcessResolverHits = newRuntimeMetric(".process_resolver.hits")
	// MetricProcessResolverMiss is the name of the metric used to report the process resolver misses
	// Tags: -
	MetricProcessResolverMiss = newRuntimeMetric(".process_resolver.cache_miss")

	// DNS metrics

	// MetricDNSSameIDDifferentSize is the name of the metric used to count the DNS responses sharing an id with a different size
	// Tags: -
	MetricDNSSameIDDifferentSize = newRuntimeMetric(".dns.same_id_different_size")
	// MetricDNSFiltered is the name of the metric used to count the DNS responses filtered as duplicates
	// Tags: -
	MetricDNSFiltered = newRuntimeMetric(".dns.filtered")
)

// Tags
const (
	// CacheTag is assigned to metrics related to caches
	CacheTag = "type:cache"
	// ProcFSTag is assigned to metrics related to procfs
	ProcFSTag = "type:procfs"
	// KernelTag is assigned to metrics related to values provided by the kernel
	KernelTag = "type:kernel"
)

func newRuntimeMetric(name string) string {
	return MetricRuntimePrefix + name
}
