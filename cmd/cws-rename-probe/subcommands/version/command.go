// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package version implements the version subcommand
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/command"
	"github.com/DataDog/cws-rename-probe/pkg/version"
)

// Commands returns a slice of subcommands for the 'cws-rename-probe' command.
func Commands(_ *command.GlobalParams) []*cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version info",
		Long:  ``,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
	return []*cobra.Command{versionCmd}
}
