// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"github.com/DataDog/cws-rename-probe/pkg/security/probe/constantfetch"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/util/kernel"
)

// getConstantFetcher returns the constant fetchers by order of preference:
// btfhub, the BTF of the kernel, then the kernel version heuristics
func (p *Probe) getConstantFetcher(kv kernel.Version) constantfetch.ConstantFetcher {
	var fetchers []constantfetch.ConstantFetcher

	if path := p.Config.BTFHubConstantsPath; path != "" {
		constants, err := constantfetch.LoadBTFHubConstants(path)
		if err != nil {
			seclog.Warnf("failed to load btfhub constants: %v", err)
		} else {
			release := p.Config.KernelVersion
			if release == "" {
				release, _ = kernel.Release()
			}
			if fetcher := constantfetch.NewBTFHubConstantFetcher(constants, release); fetcher.HasConstantsInStore() {
				fetchers = append(fetchers, fetcher)
			}
		}
	}

	if path := p.Config.BTFPath; path != "" {
		fetcher, err := constantfetch.NewBTFConstantFetcherFromPath(path)
		if err != nil {
			seclog.Warnf("failed to create btf constant fetcher: %v", err)
		} else {
			fetchers = append(fetchers, fetcher)
		}
	}

	fetchers = append(fetchers, constantfetch.NewFallbackConstantFetcher(kv))

	return constantfetch.ComposeConstantFetchers(fetchers)
}
