// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package fxutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestDelayedFxInvocation(t *testing.T) {
	var got string
	delayed := newDelayedFxInvocation(func(str string) {
		got = str
	})

	app := fxtest.New(t,
		fx.Provide(func() string { return "a string" }),
		delayed.option(),
	)
	defer app.RequireStart().RequireStop()

	assert.Empty(t, got)
	require.NoError(t, delayed.call())
	assert.Equal(t, "a string", got)
}

func TestDelayedFxInvocationNotCaptured(t *testing.T) {
	delayed := newDelayedFxInvocation(func(string) {})
	assert.Error(t, delayed.call())
}

func TestOneShot(t *testing.T) {
	var started, called bool

	err := OneShot(func(str string) {
		called = started && str == "value"
	},
		fx.Provide(func(lc fx.Lifecycle) string {
			lc.Append(fx.Hook{OnStart: func(_ context.Context) error {
				started = true
				return nil
			}})
			return "value"
		}),
	)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestOneShotError(t *testing.T) {
	err := OneShot(func() error {
		return errors.New("uhoh")
	})
	assert.ErrorContains(t, err, "uhoh")
}
