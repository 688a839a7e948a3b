// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package fxutil

import (
	"reflect"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

// TestOneShotSubcommand runs a cobra command with the given args and checks
// that it would call OneShot with expectedOneShotFunc and valid options. The
// function itself is not called, verifyFn is called with its arguments.
func TestOneShotSubcommand(t testing.TB, subcommands []*cobra.Command, commandline []string, expectedOneShotFunc interface{}, verifyFn interface{}) {
	var oneShotCalled bool
	fxAppTestOverride = func(oneShotFunc interface{}, opts []fx.Option) error {
		oneShotCalled = true
		require.Equal(t,
			reflect.ValueOf(expectedOneShotFunc).Pointer(),
			reflect.ValueOf(oneShotFunc).Pointer(),
			"got a different oneShotFunc than expected")

		opts = append(opts, fx.NopLogger, fx.Invoke(verifyFn))
		app := fx.New(opts...)
		return app.Err()
	}
	defer func() { fxAppTestOverride = nil }()

	cmd := &cobra.Command{Use: "test"}
	for _, c := range subcommands {
		cmd.AddCommand(c)
	}
	cmd.SetArgs(commandline)

	require.NoError(t, cmd.Execute())
	require.True(t, oneShotCalled, "fxutil.OneShot was not called")
}
