// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package constantfetch

import (
	"errors"
	"fmt"

	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

// VFSRenameInputType describes how vfs_rename receives its arguments
type VFSRenameInputType uint64

const (
	// VFSRenameRegisterInput the dentries are the 2nd and 4th parameters
	VFSRenameRegisterInput VFSRenameInputType = 1
	// VFSRenameStructInput the first parameter is a struct renamedata
	VFSRenameStructInput VFSRenameInputType = 2
)

func (t VFSRenameInputType) String() string {
	switch t {
	case VFSRenameRegisterInput:
		return "register"
	case VFSRenameStructInput:
		return "struct"
	}
	return "unknown"
}

// ErrLayoutUnavailable is returned when the renamedata offsets are required but unknown
var ErrLayoutUnavailable = errors.New("vfs_rename layout unavailable")

// Layout describes how the vfs_rename hook reads its source and target dentries
type Layout struct {
	VFSRenameInputType       VFSRenameInputType
	RenameSrcDentryOffset    uint64
	RenameTargetDentryOffset uint64
}

func (l Layout) String() string {
	if l.VFSRenameInputType == VFSRenameStructInput {
		return fmt.Sprintf("struct(src=%d,target=%d)", l.RenameSrcDentryOffset, l.RenameTargetDentryOffset)
	}
	return l.VFSRenameInputType.String()
}

// AppendProbeRequestsToFetcher adds the requests required by the rename probe
func AppendProbeRequestsToFetcher(constantFetcher ConstantFetcher, kv kernel.Version) {
	if kv >= kernel.Kernel5_12 {
		constantFetcher.AppendOffsetofRequest(OffsetNameRenameStructOldDentry, "renamedata", "old_dentry", "linux/fs.h")
		constantFetcher.AppendOffsetofRequest(OffsetNameRenameStructNewDentry, "renamedata", "new_dentry", "linux/fs.h")
	}
}

// ResolveLayout fetches the constants and selects the vfs_rename layout
func ResolveLayout(constantFetcher ConstantFetcher, kv kernel.Version) (Layout, error) {
	if kv < kernel.Kernel5_12 {
		return Layout{VFSRenameInputType: VFSRenameRegisterInput}, nil
	}

	AppendProbeRequestsToFetcher(constantFetcher, kv)
	constants, err := constantFetcher.FinishAndGetResults()
	if err != nil {
		return Layout{}, err
	}

	src, srcOk := constants[OffsetNameRenameStructOldDentry]
	target, targetOk := constants[OffsetNameRenameStructNewDentry]
	if !srcOk || !targetOk || src == ErrorSentinel || target == ErrorSentinel {
		return Layout{}, fmt.Errorf("%w for kernel %s", ErrLayoutUnavailable, kv)
	}

	return Layout{
		VFSRenameInputType:       VFSRenameStructInput,
		RenameSrcDentryOffset:    src,
		RenameTargetDentryOffset: target,
	}, nil
}
