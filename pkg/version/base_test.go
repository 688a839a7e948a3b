// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	defer func(commit string) { Commit = commit }(Commit)

	Commit = ""
	assert.Contains(t, String(), "Commit: unknown")

	Commit = "abcdef0"
	assert.Contains(t, String(), ProbeVersion)
	assert.Contains(t, String(), "Commit: abcdef0")
	assert.Contains(t, String(), runtime.Version())
}
