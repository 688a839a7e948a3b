// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build !linux

package kernel

import "errors"

// ErrNonLinux is returned on platforms without a linux kernel
var ErrNonLinux = errors.New("kernel version is only available on linux")

// Release returns the uname release string of the running kernel
func Release() (string, error) {
	return "", ErrNonLinux
}

// HostVersion returns the version of the running kernel
func HostVersion() (Version, error) {
	return 0, ErrNonLinux
}
