// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package kernel holds kernel version helpers
package kernel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a numerical representation of a kernel version
type Version uint32

// Kernel versions the probe layouts depend on
var (
	// Kernel4_14 is the KernelVersion representation of kernel version 4.14
	Kernel4_14 = VersionCode(4, 14, 0)
	// Kernel5_0 is the KernelVersion representation of kernel version 5.0
	Kernel5_0 = VersionCode(5, 0, 0)
	// Kernel5_12 is the KernelVersion representation of kernel version 5.12
	Kernel5_12 = VersionCode(5, 12, 0)
	// Kernel6_0 is the KernelVersion representation of kernel version 6.0
	Kernel6_0 = VersionCode(6, 0, 0)
)

// String returns a string representing the version in x.x.x format
func (v Version) String() string {
	a, b, c := v>>16, v>>8&0xff, v&0xff
	return fmt.Sprintf("%d.%d.%d", a, b, c)
}

// Major returns the major number of the version code
func (v Version) Major() uint8 {
	return (uint8)(v >> 16)
}

// Minor returns the minor number of the version code
func (v Version) Minor() uint8 {
	return (uint8)((v >> 8) & 0xff)
}

// Patch returns the patch number of the version code
func (v Version) Patch() uint8 {
	return (uint8)(v & 0xff)
}

// ParseVersion parses a string in the format of x.x.x to a Version
func ParseVersion(s string) Version {
	var a, b, c byte
	fmt.Sscanf(s, "%d.%d.%d", &a, &b, &c) //nolint:errcheck
	return VersionCode(a, b, c)
}

// VersionCode returns a Version computed from the individual parts of a x.x.x version
func VersionCode(major, minor, patch byte) Version {
	// KERNEL_VERSION(a,b,c) = (a << 16) + (b << 8) + (c)
	// Per https://github.com/torvalds/linux/blob/db7c953555388571a96ed8783ff6c5745ba18ab9/Makefile#L1250
	return Version((uint32(major) << 16) + (uint32(minor) << 8) + uint32(patch))
}

// ParseReleaseString parses a uname release string, ignoring distribution suffixes
func ParseReleaseString(releaseString string) (Version, error) {
	versionParts := strings.SplitN(releaseString, ".", 3)
	if len(versionParts) < 2 {
		return 0, fmt.Errorf("invalid kernel release `%s`", releaseString)
	}

	major, err := strconv.ParseUint(versionParts[0], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid kernel release `%s`: %w", releaseString, err)
	}

	minor, err := strconv.ParseUint(versionParts[1], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid kernel release `%s`: %w", releaseString, err)
	}

	var patch uint64
	if len(versionParts) == 3 {
		digits := strings.IndexFunc(versionParts[2], func(r rune) bool { return r < '0' || r > '9' })
		if digits == -1 {
			digits = len(versionParts[2])
		}
		if digits > 0 {
			patch, err = strconv.ParseUint(versionParts[2][:digits], 10, 16)
			if err != nil {
				return 0, fmt.Errorf("invalid kernel release `%s`: %w", releaseString, err)
			}
			// some distributions report patch levels above 255
			if patch > 255 {
				patch = 255
			}
		}
	}

	return VersionCode(byte(major), byte(minor), byte(patch)), nil
}

// UbuntuKernelVersion represents a version from an ubuntu kernel
// Examples: 5.13.0-35.40-generic-lpae
type UbuntuKernelVersion struct {
	Major  int
	Minor  int
	Patch  int // always 0
	Abi    int
	Upload int
	Flavor string
}

var ubuntuKernelVersionRegex = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)-(\d+)\.(\d+)-(.+)$`)

// NewUbuntuKernelVersion parses the ubuntu release string and returns a structure with each extracted fields
func NewUbuntuKernelVersion(unameRelease string) (*UbuntuKernelVersion, error) {
	match := ubuntuKernelVersionRegex.FindStringSubmatch(unameRelease)
	if len(match) == 0 {
		return nil, fmt.Errorf("failed to parse ubuntu kernel version `%s`", unameRelease)
	}

	ints := make([]int, 5)
	for i := 0; i < 5; i++ {
		val, err := strconv.Atoi(match[i+1])
		if err != nil {
			return nil, err
		}
		ints[i] = val
	}

	return &UbuntuKernelVersion{
		Major:  ints[0],
		Minor:  ints[1],
		Patch:  ints[2],
		Abi:    ints[3],
		Upload: ints[4],
		Flavor: match[6],
	}, nil
}
