// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package command holds command related files
package command

import (
	"github.com/spf13/cobra"
)

// GlobalParams contains the values of the global Cobra flags.
//
// A pointer to this type is passed to SubcommandFactory's, but its contents
// are not valid until Cobra calls the subcommand's Run or RunE function.
type GlobalParams struct {
	// ConfFilePath holds the path to the configuration file, the defaults
	// are used when empty
	ConfFilePath string
}

// SubcommandFactory returns a sub-command factory
type SubcommandFactory func(globalParams *GlobalParams) []*cobra.Command

// MakeCommand makes the top-level Cobra command for this command.
func MakeCommand(subcommandFactories []SubcommandFactory) *cobra.Command {
	var globalParams GlobalParams

	probeCmd := &cobra.Command{
		Use:   "cws-rename-probe [command]",
		Short: "Rename hooks of the Datadog Cloud Workload Security probe.",
		Long: `
The rename probe follows the rename syscalls of a simulated kernel through
their hook points and reports the resolved rename events.`,
		SilenceUsage: true,
	}

	probeCmd.PersistentFlags().StringVarP(&globalParams.ConfFilePath, "cfgpath", "c", "", "path to the probe configuration file")

	for _, factory := range subcommandFactories {
		for _, subcmd := range factory(&globalParams) {
			probeCmd.AddCommand(subcmd)
		}
	}

	return probeCmd
}
