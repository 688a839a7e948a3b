// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package constantfetch

import (
	"errors"
	"fmt"
	"io"

	"github.com/cilium/ebpf/btf"
)

// BTFConstantFetcher is a constant fetcher based on BTF data (from file or current kernel)
type BTFConstantFetcher struct {
	spec      *btf.Spec
	constants map[string]uint64
	err       error
}

// NewBTFConstantFetcherFromSpec creates a BTFConstantFetcher directly from a BTF spec
func NewBTFConstantFetcherFromSpec(spec *btf.Spec) *BTFConstantFetcher {
	return &BTFConstantFetcher{
		spec:      spec,
		constants: make(map[string]uint64),
	}
}

// NewBTFConstantFetcherFromReader creates a BTFConstantFetcher reading BTF data from an io.ReaderAt
func NewBTFConstantFetcherFromReader(btfReader io.ReaderAt) (*BTFConstantFetcher, error) {
	spec, err := btf.LoadSpecFromReader(btfReader)
	if err != nil {
		return nil, err
	}
	return NewBTFConstantFetcherFromSpec(spec), nil
}

// NewBTFConstantFetcherFromPath creates a BTFConstantFetcher reading BTF data from a file
func NewBTFConstantFetcherFromPath(path string) (*BTFConstantFetcher, error) {
	spec, err := btf.LoadSpec(path)
	if err != nil {
		return nil, err
	}
	return NewBTFConstantFetcherFromSpec(spec), nil
}

// NewBTFConstantFetcherFromCurrentKernel creates a BTFConstantFetcher reading BTF data from the current kernel
func NewBTFConstantFetcherFromCurrentKernel() (*BTFConstantFetcher, error) {
	spec, err := btf.LoadKernelSpec()
	if err != nil {
		return nil, err
	}
	return NewBTFConstantFetcherFromSpec(spec), nil
}

func (f *BTFConstantFetcher) String() string {
	return "btf"
}

func (f *BTFConstantFetcher) findStruct(typeName string) (*btf.Struct, error) {
	var s *btf.Struct
	if err := f.spec.TypeByName(typeName, &s); err != nil {
		return nil, fmt.Errorf("struct %s: %w", typeName, err)
	}
	return s, nil
}

// AppendSizeofRequest appends a sizeof request
func (f *BTFConstantFetcher) AppendSizeofRequest(id, typeName, _ string) {
	s, err := f.findStruct(typeName)
	if err != nil {
		f.runRequestError(id, err)
		return
	}

	size, err := btf.Sizeof(s)
	if err != nil {
		f.runRequestError(id, err)
		return
	}
	f.constants[id] = uint64(size)
}

// AppendOffsetofRequest appends an offset request
func (f *BTFConstantFetcher) AppendOffsetofRequest(id, typeName, fieldName, _ string) {
	s, err := f.findStruct(typeName)
	if err != nil {
		f.runRequestError(id, err)
		return
	}

	for _, member := range s.Members {
		if member.Name == fieldName {
			f.constants[id] = uint64(member.Offset.Bytes())
			return
		}
	}
	f.runRequestError(id, fmt.Errorf("field %s not found in struct %s", fieldName, typeName))
}

func (f *BTFConstantFetcher) runRequestError(id string, err error) {
	f.constants[id] = ErrorSentinel
	// a missing struct is not an error, the kernel may simply predate it
	if !errors.Is(err, btf.ErrNotFound) {
		f.err = errors.Join(f.err, err)
	}
}

// FinishAndGetResults returns the results
func (f *BTFConstantFetcher) FinishAndGetResults() (map[string]uint64, error) {
	return f.constants, f.err
}
