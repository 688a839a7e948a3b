// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package constantfetch

import (
	"fmt"
	"os"
	"runtime"

	jsoniter "github.com/json-iterator/go"
)

// BTFHubConstants represents all the information required for identifying
// a unique btf file from BTFHub
type BTFHubConstants struct {
	Constants []map[string]uint64 `json:"constants"`
	Kernels   []BTFHubKernel      `json:"kernels"`
}

// BTFHubKernel represents all the information required for identifying
// a unique btf file from BTFHub
type BTFHubKernel struct {
	Distribution   string `json:"distrib"`
	DistribVersion string `json:"version"`
	Arch           string `json:"arch"`
	UnameRelease   string `json:"uname_release"`
	ConstantsIndex int    `json:"cindex"`
}

// BTFHubConstantFetcher is a constant fetcher based on BTFHub constants
type BTFHubConstantFetcher struct {
	arch         string
	unameRelease string
	inStore      map[string]uint64
	res          map[string]uint64
}

// NewBTFHubConstantFetcher returns a new BTFHubConstantFetcher matching the given uname release
func NewBTFHubConstantFetcher(constants *BTFHubConstants, unameRelease string) *BTFHubConstantFetcher {
	fetcher := &BTFHubConstantFetcher{
		arch:         kernelArch(),
		unameRelease: unameRelease,
		res:          make(map[string]uint64),
	}

	for _, kernel := range constants.Kernels {
		if kernel.Arch == fetcher.arch && kernel.UnameRelease == unameRelease &&
			kernel.ConstantsIndex >= 0 && kernel.ConstantsIndex < len(constants.Constants) {
			fetcher.inStore = constants.Constants[kernel.ConstantsIndex]
			break
		}
	}

	return fetcher
}

// LoadBTFHubConstants reads a constants file produced by the btfhub tool
func LoadBTFHubConstants(path string) (*BTFHubConstants, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var constants BTFHubConstants
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(content, &constants); err != nil {
		return nil, fmt.Errorf("failed to parse btfhub constants %s: %w", path, err)
	}
	return &constants, nil
}

// HasConstantsInStore returns true if there is constants in store in BTFHub
func (f *BTFHubConstantFetcher) HasConstantsInStore() bool {
	return len(f.inStore) != 0
}

func (f *BTFHubConstantFetcher) String() string {
	return "btfhub"
}

func (f *BTFHubConstantFetcher) appendRequest(id string) {
	if value, ok := f.inStore[id]; ok {
		f.res[id] = value
	} else {
		f.res[id] = ErrorSentinel
	}
}

// AppendSizeofRequest appends a sizeof request
func (f *BTFHubConstantFetcher) AppendSizeofRequest(id, _, _ string) {
	f.appendRequest(id)
}

// AppendOffsetofRequest appends an offset request
func (f *BTFHubConstantFetcher) AppendOffsetofRequest(id, _, _, _ string) {
	f.appendRequest(id)
}

// FinishAndGetResults returns the results
func (f *BTFHubConstantFetcher) FinishAndGetResults() (map[string]uint64, error) {
	return f.res, nil
}

func kernelArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "arm64"
	}
	return runtime.GOARCH
}
