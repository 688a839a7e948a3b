// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dentry

import (
	"errors"
	"fmt"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

var (
	// ErrEntryNotFound is thrown when a path key was not found in the cache
	ErrEntryNotFound = errors.New("entry not found")
	// ErrTruncatedParents is used to notify that some parents of the path are missing
	ErrTruncatedParents = errors.New("truncated_parents")
)

// ErrInvalidKey is returned when a path key is null
type ErrInvalidKey struct {
	Key model.PathKey
}

func (e ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid path key %s", e.Key.String())
}

// ErrPathResolution is returned when a path couldn't be fully resolved
type ErrPathResolution struct {
	Err error
}

func (e *ErrPathResolution) Error() string {
	return fmt.Sprintf("path resolution error: %s", e.Err)
}

func (e *ErrPathResolution) Unwrap() error {
	return e.Err
}
