// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package version defines the version of the probe
package version

import (
	"fmt"
	"runtime"
)

// ProbeVersion contains the version of the probe.
// It is populated at build time using build flags
var ProbeVersion string

// Commit is populated with the short commit hash from which the probe was built
var Commit string

var probeVersionDefault = "0.1.0"

func init() {
	if ProbeVersion == "" {
		ProbeVersion = probeVersionDefault
	}
}

// String returns the version, the commit and the Go version the probe was built with
func String() string {
	commit := Commit
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("cws-rename-probe %s - Commit: %s - Go version: %s", ProbeVersion, commit, runtime.Version())
}
