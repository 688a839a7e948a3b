// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kfilters

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// renameFlags maps the renameat2 flag names
var renameFlags = map[string]uint32{
	"noreplace": 1 << 0,
	"exchange":  1 << 1,
	"whiteout":  1 << 2,
}

// DiscarderDefinition describes a path whose inode is discarded when the policy is applied
type DiscarderDefinition struct {
	Path string `yaml:"path"`
	// Recursive discarders also apply to the children
	Recursive bool `yaml:"recursive"`
}

// EventTypePolicyDefinition describes the filters of an event type
type EventTypePolicyDefinition struct {
	Mode       string                `yaml:"mode"`
	Basenames  []string              `yaml:"basenames"`
	Paths      []string              `yaml:"paths"`
	Pids       []uint32              `yaml:"pids"`
	UIDs       []uint32              `yaml:"uids"`
	Flags      []string              `yaml:"flags"`
	Discarders []DiscarderDefinition `yaml:"discarders"`
}

// PolicyDefinition describes a policy file, keyed by event type
type PolicyDefinition map[string]*EventTypePolicyDefinition

// EventTypePolicy is the compiled policy of an event type
type EventTypePolicy struct {
	Policy     FilterPolicy
	Approvers  *Approvers
	Discarders []DiscarderDefinition
}

// Policies holds the compiled policies, read only once loaded
type Policies map[model.EventType]*EventTypePolicy

// Get returns the policy of an event type, no filter when none was defined
func (p Policies) Get(eventType model.EventType) *EventTypePolicy {
	if policy, ok := p[eventType]; ok {
		return policy
	}
	return &EventTypePolicy{Approvers: NewApprovers()}
}

// LoadPolicyFile loads and compiles a policy file
func LoadPolicyFile(filename string) (Policies, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open policy file `%s`", filename)
	}
	defer f.Close()

	policies, err := LoadPolicy(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load policy file `%s`", filename)
	}
	return policies, nil
}

// LoadPolicy loads and compiles a policy
func LoadPolicy(r io.Reader) (Policies, error) {
	var def PolicyDefinition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode policy")
	}

	var result *multierror.Error
	policies := make(Policies)

	for name, etDef := range def {
		eventType := model.ParseEvalEventType(name)
		if eventType == model.UnknownEventType {
			result = multierror.Append(result, errors.Errorf("unknown event type `%s`", name))
			continue
		}
		if etDef == nil {
			continue
		}

		policy, err := compileEventTypePolicy(etDef)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "invalid policy for `%s`", name))
			continue
		}
		policies[eventType] = policy
	}

	return policies, result.ErrorOrNil()
}

func compileEventTypePolicy(def *EventTypePolicyDefinition) (*EventTypePolicy, error) {
	var result *multierror.Error

	mode, err := ParsePolicyMode(def.Mode)
	if err != nil {
		result = multierror.Append(result, err)
	}

	approvers := NewApprovers()
	for _, basename := range def.Basenames {
		if err := approvers.AddBasename(basename); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, pattern := range def.Paths {
		if err := approvers.AddPath(pattern); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, pid := range def.Pids {
		approvers.Pids[pid] = true
	}
	for _, uid := range def.UIDs {
		approvers.UIDs[uid] = true
	}
	for _, name := range def.Flags {
		flag, ok := renameFlags[name]
		if !ok {
			result = multierror.Append(result, errors.Errorf("unknown flag `%s`", name))
			continue
		}
		approvers.Flags |= flag
	}
	for _, discarder := range def.Discarders {
		if len(discarder.Path) == 0 || discarder.Path[0] != '/' {
			result = multierror.Append(result, errors.Errorf("discarder path `%s` isn't absolute", discarder.Path))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &EventTypePolicy{
		Policy:     approvers.Policy(mode),
		Approvers:  approvers,
		Discarders: def.Discarders,
	}, nil
}
