// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package span

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DataDog/cws-rename-probe/pkg/security/secl/model"
)

func TestFillSpanContext(t *testing.T) {
	resolver := NewResolver()
	resolver.Register(42, model.SpanContext{SpanID: 1, TraceIDLo: 2})

	var span model.SpanContext
	resolver.FillSpanContext(42, &span)
	assert.Equal(t, model.SpanContext{SpanID: 1, TraceIDLo: 2}, span)

	resolver.FillSpanContext(43, &span)
	assert.True(t, span.IsNull())

	resolver.Register(42, model.SpanContext{})
	resolver.FillSpanContext(42, &span)
	assert.True(t, span.IsNull())

	resolver.Register(7, model.SpanContext{SpanID: 3})
	resolver.Unregister(7)
	resolver.FillSpanContext(7, &span)
	assert.True(t, span.IsNull())
}
