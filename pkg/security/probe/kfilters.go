// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/DataDog/cws-rename-probe/pkg/security/probe/kfilters"
	"github.com/DataDog/cws-rename-probe/pkg/security/seclog"
	"github.com/DataDog/cws-rename-probe/pkg/security/vfs"
)

// loadPolicies returns the in-kernel filter policies, none when the kernel filters are disabled
func (p *Probe) loadPolicies() (kfilters.Policies, error) {
	if !p.Config.EnableKernelFilters {
		return kfilters.Policies{}, nil
	}
	if p.Opts.Policies != nil {
		return p.Opts.Policies, nil
	}
	if p.Config.PolicyFile == "" {
		return kfilters.Policies{}, nil
	}
	return kfilters.LoadPolicyFile(p.Config.PolicyFile)
}

// applyPolicyDiscarders adds the discarders listed by the policies
func (p *Probe) applyPolicyDiscarders(fs *vfs.FS) error {
	var result *multierror.Error

	for eventType, policy := range p.policies {
		seclog.Infof("Setting in-kernel filter policy to `%s` for `%s`", policy.Policy, eventType)

		for _, def := range policy.Discarders {
			d, err := fs.Lookup(def.Path)
			if err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "failed to lookup discarder `%s`", def.Path))
				continue
			}

			if err := p.discarders.DiscardInode(eventType, d.Mount().ID, d.Ino(), !def.Recursive); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "failed to add discarder `%s`", def.Path))
				continue
			}
			seclog.Debugf("discarder added for `%s` on %s (recursive: %t)", eventType, def.Path, def.Recursive)
		}
	}

	return result.ErrorOrNil()
}
