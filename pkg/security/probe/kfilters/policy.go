// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package kfilters holds the in-kernel filtering logic: policies, approvers and discarders
package kfilters

import (
	"errors"
	"fmt"
	"strings"
)

// PolicyMode represents the policy mode (accept or deny)
type PolicyMode uint8

// PolicyFlag is a bitmask of the active filtering policies
type PolicyFlag uint8

// Policy modes
const (
	PolicyModeNoFilter PolicyMode = iota
	PolicyModeAccept
	PolicyModeDeny
)

// Policy flags
const (
	PolicyFlagBasename PolicyFlag = 1 << iota
	PolicyFlagFlags
	PolicyFlagProcess
	PolicyFlagPath

	// need to be aligned with the kernel size
	BasenameFilterSize = 32
)

func (m PolicyMode) String() string {
	switch m {
	case PolicyModeNoFilter:
		return "no_filter"
	case PolicyModeAccept:
		return "accept"
	case PolicyModeDeny:
		return "deny"
	}
	return ""
}

// ParsePolicyMode parses a policy mode
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch strings.ToLower(s) {
	case "", "no_filter":
		return PolicyModeNoFilter, nil
	case "accept":
		return PolicyModeAccept, nil
	case "deny":
		return PolicyModeDeny, nil
	}
	return PolicyModeNoFilter, fmt.Errorf("invalid policy mode `%s`", s)
}

// MarshalJSON returns the JSON encoding of the policy mode
func (m PolicyMode) MarshalJSON() ([]byte, error) {
	s := m.String()
	if s == "" {
		return nil, errors.New("invalid policy mode")
	}

	return []byte(`"` + s + `"`), nil
}

// MarshalJSON returns the JSON encoding of the policy flags
func (f PolicyFlag) MarshalJSON() ([]byte, error) {
	var flags []string
	if f&PolicyFlagBasename != 0 {
		flags = append(flags, `"basename"`)
	}
	if f&PolicyFlagFlags != 0 {
		flags = append(flags, `"flags"`)
	}
	if f&PolicyFlagProcess != 0 {
		flags = append(flags, `"process"`)
	}
	if f&PolicyFlagPath != 0 {
		flags = append(flags, `"path"`)
	}
	return []byte("[" + strings.Join(flags, ",") + "]"), nil
}

// FilterPolicy describes a filtering policy
type FilterPolicy struct {
	Mode  PolicyMode `json:"mode"`
	Flags PolicyFlag `json:"flags"`
}

// Bytes returns the binary representation of a FilterPolicy
func (f *FilterPolicy) Bytes() ([]byte, error) {
	return []byte{uint8(f.Mode), uint8(f.Flags)}, nil
}

func (f FilterPolicy) String() string {
	return fmt.Sprintf("%s(%08b)", f.Mode, f.Flags)
}
