// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package containerutils holds multiple utils functions around Container IDs and their patterns
package containerutils

import (
	"strings"
)

// ContainerIDLen is the length of a container ID
const ContainerIDLen = 64

func isSystemdCgroup(cgroup CGroupID) bool {
	return strings.HasSuffix(string(cgroup), ".service") || strings.HasSuffix(string(cgroup), ".scope")
}

func isContainerID(id ContainerID) bool {
	if len(id) != ContainerIDLen {
		return false
	}
	for _, c := range []byte(id) {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// FindContainerID returns the container ID held by the last segment of a
// cgroup path, either a bare ID or a runtime scope such as
// docker-<id>.scope, along with the flags of the runtime.
func FindContainerID(s CGroupID) (ContainerID, uint64) {
	segment := string(s)
	if i := strings.LastIndexByte(segment, '/'); i >= 0 {
		segment = segment[i+1:]
	}
	segment = strings.TrimSuffix(segment, ".scope")

	containerID, flags := getContainerFromCgroup(CGroupID(segment))
	if containerID == "" {
		containerID = ContainerID(segment)
	}
	if isContainerID(containerID) {
		return containerID, uint64(flags)
	}

	if isSystemdCgroup(s) {
		return "", uint64(CGroupManagerSystemd)
	}
	return "", 0
}
