// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package main implements the cws-rename-probe command
package main

import (
	"os"

	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/command"
	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/subcommands"
	"github.com/DataDog/cws-rename-probe/pkg/util/log"
)

func main() {
	rootCmd := command.MakeCommand(subcommands.ProbeSubcommands())
	err := rootCmd.Execute()
	log.Flush()
	if err != nil {
		os.Exit(-1)
	}
}
