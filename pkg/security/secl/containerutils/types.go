// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package containerutils

import "strings"

// ContainerID represents a container ID
type ContainerID string

// CGroupID represents a cgroup ID
type CGroupID string

// CGroupFlags represents the flags of a cgroup
type CGroupFlags uint64

// CGroupManager represents a cgroup manager
type CGroupManager uint64

// CGroup managers
const (
	CGroupManagerDocker  CGroupManager = 1
	CGroupManagerCRIO    CGroupManager = 2
	CGroupManagerPodman  CGroupManager = 3
	CGroupManagerCRI     CGroupManager = 4
	CGroupManagerSystemd CGroupManager = 5
)

// CGroupManagerMask masks the manager bits of the flags
const CGroupManagerMask CGroupFlags = 0b111

// IsContainer returns whether the flags were set by a container runtime
func (f CGroupFlags) IsContainer() bool {
	manager := CGroupManager(f & CGroupManagerMask)
	return manager != 0 && manager != CGroupManagerSystemd
}

func (m CGroupManager) String() string {
	switch m {
	case CGroupManagerDocker:
		return "docker"
	case CGroupManagerCRIO:
		return "cri-o"
	case CGroupManagerPodman:
		return "podman"
	case CGroupManagerCRI:
		return "containerd"
	case CGroupManagerSystemd:
		return "systemd"
	default:
		return ""
	}
}

// RuntimePrefixes maps the cgroup path prefixes of the container runtimes to their manager
var RuntimePrefixes = []struct {
	prefix  string
	runtime CGroupManager
}{
	{"docker-", CGroupManagerDocker},
	{"cri-containerd-", CGroupManagerCRI},
	{"crio-", CGroupManagerCRIO},
	{"libpod-", CGroupManagerPodman},
}

func getContainerFromCgroup(cgroup CGroupID) (ContainerID, CGroupFlags) {
	for _, runtimePrefix := range RuntimePrefixes {
		if strings.HasPrefix(string(cgroup), runtimePrefix.prefix) {
			return ContainerID(cgroup[len(runtimePrefix.prefix):]), CGroupFlags(runtimePrefix.runtime)
		}
	}
	return "", 0
}
