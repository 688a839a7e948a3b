// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package constantfetch

import (
	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

// FallbackConstantFetcher is a constant fetcher that uses the old fallback
// heuristics to fetch constants
type FallbackConstantFetcher struct {
	kernelVersion kernel.Version
	res           map[string]uint64
}

// NewFallbackConstantFetcher returns a new FallbackConstantFetcher
func NewFallbackConstantFetcher(kv kernel.Version) *FallbackConstantFetcher {
	return &FallbackConstantFetcher{
		kernelVersion: kv,
		res:           make(map[string]uint64),
	}
}

func (f *FallbackConstantFetcher) String() string {
	return "fallback"
}

func (f *FallbackConstantFetcher) appendRequest(id string) {
	var value = ErrorSentinel
	switch id {
	case OffsetNameRenameStructOldDentry:
		value = getRenameStructOldDentryOffset(f.kernelVersion)
	case OffsetNameRenameStructNewDentry:
		value = getRenameStructNewDentryOffset(f.kernelVersion)
	case SizeOfRenameData:
		value = getSizeOfRenameData(f.kernelVersion)
	}
	f.res[id] = value
}

// AppendSizeofRequest appends a sizeof request
func (f *FallbackConstantFetcher) AppendSizeofRequest(id, _, _ string) {
	f.appendRequest(id)
}

// AppendOffsetofRequest appends an offset request
func (f *FallbackConstantFetcher) AppendOffsetofRequest(id, _, _, _ string) {
	f.appendRequest(id)
}

// FinishAndGetResults returns the results
func (f *FallbackConstantFetcher) FinishAndGetResults() (map[string]uint64, error) {
	return f.res, nil
}

// vfs_rename takes a struct renamedata since 5.12, before that the dentries
// are passed as parameters
func getRenameStructOldDentryOffset(kv kernel.Version) uint64 {
	if kv >= kernel.Kernel5_12 {
		return 16
	}
	return ErrorSentinel
}

func getRenameStructNewDentryOffset(kv kernel.Version) uint64 {
	if kv >= kernel.Kernel5_12 {
		return 40
	}
	return ErrorSentinel
}

func getSizeOfRenameData(kv kernel.Version) uint64 {
	if kv >= kernel.Kernel5_12 {
		return 64
	}
	return ErrorSentinel
}
