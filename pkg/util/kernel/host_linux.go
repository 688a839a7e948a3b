// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build linux

package kernel

import (
	"sync"

	"golang.org/x/sys/unix"
)

var (
	hostVersionOnce sync.Once
	hostVersion     Version
	hostVersionErr  error
)

// Release returns the uname release string of the running kernel
func Release() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}

// HostVersion returns the version of the running kernel
func HostVersion() (Version, error) {
	hostVersionOnce.Do(func() {
		var release string
		if release, hostVersionErr = Release(); hostVersionErr != nil {
			return
		}
		hostVersion, hostVersionErr = ParseReleaseString(release)
	})
	return hostVersion, hostVersionErr
}
