// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package constantfetch holds code related to the constant fetcher
package constantfetch

import (
	"fmt"

	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
)

// ErrorSentinel is the value of an unknown constant
const ErrorSentinel uint64 = ^uint64(0)

// Constant names
const (
	OffsetNameRenameStructOldDentry = "vfs_rename_src_dentry_offset"
	OffsetNameRenameStructNewDentry = "vfs_rename_target_dentry_offset"
	SizeOfRenameData                = "sizeof_renamedata"
)

// ConstantFetcher represents a source of constants that can be used to fill up
// eBPF relocations
type ConstantFetcher interface {
	fmt.Stringer
	AppendSizeofRequest(id, typeName, headerName string)
	AppendOffsetofRequest(id, typeName, fieldName, headerName string)
	FinishAndGetResults() (map[string]uint64, error)
}

// ComposeConstantFetcher represents a composition of child constant fetchers
// It allows the usage of fallbacks if the main source is not working
type ComposeConstantFetcher struct {
	fetchers []ConstantFetcher
	requests []*composeRequest
	sources  map[string]string
}

// ComposeConstantFetchers creates a ComposeConstantFetcher based on the provided children fetchers
func ComposeConstantFetchers(fetchers []ConstantFetcher) *ComposeConstantFetcher {
	return &ComposeConstantFetcher{
		fetchers: fetchers,
		sources:  make(map[string]string),
	}
}

func (f *ComposeConstantFetcher) String() string {
	return "composition"
}

func (f *ComposeConstantFetcher) appendRequest(req *composeRequest) {
	f.requests = append(f.requests, req)
}

// AppendSizeofRequest appends a sizeof request
func (f *ComposeConstantFetcher) AppendSizeofRequest(id, typeName, headerName string) {
	f.appendRequest(&composeRequest{
		id:         id,
		sizeof:     true,
		typeName:   typeName,
		headerName: headerName,
		value:      ErrorSentinel,
	})
}

// AppendOffsetofRequest appends an offset request
func (f *ComposeConstantFetcher) AppendOffsetofRequest(id, typeName, fieldName, headerName string) {
	f.appendRequest(&composeRequest{
		id:         id,
		typeName:   typeName,
		fieldName:  fieldName,
		headerName: headerName,
		value:      ErrorSentinel,
	})
}

// FinishAndGetResults does the actual fetching and returns the results
func (f *ComposeConstantFetcher) FinishAndGetResults() (map[string]uint64, error) {
	for _, fetcher := range f.fetchers {
		for _, req := range f.requests {
			if req.value == ErrorSentinel {
				if req.sizeof {
					fetcher.AppendSizeofRequest(req.id, req.typeName, req.headerName)
				} else {
					fetcher.AppendOffsetofRequest(req.id, req.typeName, req.fieldName, req.headerName)
				}
			}
		}

		res, err := fetcher.FinishAndGetResults()
		if err != nil {
			seclog.Errorf("failed to run constant fetcher %s: %v", fetcher, err)
		}

		for _, req := range f.requests {
			if req.value == ErrorSentinel {
				if newValue, present := res[req.id]; present && newValue != ErrorSentinel {
					req.value = newValue
					f.sources[req.id] = fetcher.String()
				}
			}
		}
	}

	finalRes := make(map[string]uint64)
	for _, req := range f.requests {
		finalRes[req.id] = req.value
	}
	return finalRes, nil
}

// Source returns the name of the fetcher which provided the constant
func (f *ComposeConstantFetcher) Source(id string) string {
	return f.sources[id]
}

type composeRequest struct {
	id                  string
	sizeof              bool
	typeName, fieldName string
	headerName          string
	value               uint64
}
