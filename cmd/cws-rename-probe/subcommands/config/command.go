// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config implements the config subcommand
package config

import (
	"io"
	"os"

	"github.com/DataDog/viper"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/command"
	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/util/fxutil"
)

// Commands returns a slice of subcommands for the 'cws-rename-probe' command.
func Commands(globalParams *command.GlobalParams) []*cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the runtime configuration of the probe",
		Long:  ``,
		RunE: func(*cobra.Command, []string) error {
			return fxutil.OneShot(showRuntimeConfiguration,
				command.Bundle(globalParams),
			)
		},
	}

	return []*cobra.Command{configCmd}
}

func showRuntimeConfiguration(cfg *viper.Viper, _ *config.Config) error {
	return writeConfiguration(os.Stdout, cfg)
}

func writeConfiguration(w io.Writer, cfg *viper.Viper) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	return encoder.Encode(cfg.AllSettings())
}
