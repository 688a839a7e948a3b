// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package subcommands holds the subcommands of the cws-rename-probe command
package subcommands

import (
	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/command"
	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/subcommands/config"
	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/subcommands/replay"
	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/subcommands/version"
)

// ProbeSubcommands returns all subcommands of the cws-rename-probe command
func ProbeSubcommands() []command.SubcommandFactory {
	return []command.SubcommandFactory{
		replay.Commands,
		config.Commands,
		version.Commands,
	}
}
