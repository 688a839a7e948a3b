// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package probe

import (
	"errors"
	"fmt"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

// ErrNotAttached is returned when the probe isn't attached to a filesystem
var ErrNotAttached = errors.New("probe not attached")

// ErrUnexpectedEventType is returned when decoding an event of an unknown type
type ErrUnexpectedEventType struct {
	EventType model.EventType
}

// Error implements the error interface
func (e *ErrUnexpectedEventType) Error() string {
	return fmt.Sprintf("unexpected event type %d", e.EventType)
}
