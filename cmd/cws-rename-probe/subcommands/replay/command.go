// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package replay implements the replay subcommand
package replay

import (
	"io"
	"os"

	"github.com/DataDog/datadog-go/v5/statsd"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/DataDog/cws-rename-probe/cmd/cws-rename-probe/command"
	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/security/module"
	"github.com/DataDog/cws-rename-probe/pkg/security/probe"
	"github.com/DataDog/cws-rename-probe/pkg/util/fxutil"
	"github.com/DataDog/cws-rename-probe/pkg/util/log"
)

type cliParams struct {
	*command.GlobalParams

	scenarioFile string
	outputFile   string
	reportFile   string
	logLevel     string

	syscallExitTracepoint bool
	dontHookDoRenameat2   bool
}

func addFlags(flags *pflag.FlagSet, params *cliParams) {
	flags.StringVarP(&params.outputFile, "output", "o", "", "file the events are written to, stdout when empty")
	flags.StringVar(&params.reportFile, "report", "", "file the replay report is written to, stderr when empty")
	flags.StringVarP(&params.logLevel, "log-level", "l", "", "log level, overrides the configured one")
	flags.BoolVar(&params.syscallExitTracepoint, "syscall-exit-tracepoint", false, "handle the syscall exits from the raw sys_exit tracepoint")
	flags.BoolVar(&params.dontHookDoRenameat2, "dont-hook-do-renameat2", false, "leave do_renameat2 unhooked, kernel initiated renames are then not reported")
}

// Commands returns a slice of subcommands for the 'cws-rename-probe' command.
func Commands(globalParams *command.GlobalParams) []*cobra.Command {
	params := &cliParams{
		GlobalParams: globalParams,
	}

	replayCmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Replay a scenario of filesystem operations and print the rename events",
		Long:  ``,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			params.scenarioFile = args[0]
			return fxutil.OneShot(runReplay,
				fx.Supply(params),
				command.Bundle(globalParams),
			)
		},
	}
	addFlags(replayCmd.Flags(), params)

	return []*cobra.Command{replayCmd}
}

func createFile(filename string, fallback io.Writer) (io.Writer, func() error, error) {
	if filename == "" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func runReplay(params *cliParams, cfg *config.Config, statsdClient statsd.ClientInterface) error {
	if err := command.SetupLogger(cfg, params.logLevel); err != nil {
		return err
	}

	scenario, err := module.LoadScenario(params.scenarioFile)
	if err != nil {
		return err
	}

	output, closeOutput, err := createFile(params.outputFile, os.Stdout)
	if err != nil {
		return err
	}
	defer closeOutput()

	m, err := module.NewModule(cfg, statsdClient, module.Opts{
		ProbeOpts: probe.Opts{
			UseSyscallExitTracepoint: params.syscallExitTracepoint,
			DontHookDoRenameat2:      params.dontHookDoRenameat2,
		},
		FSOpts: scenario.FSOptions(),
		Output: output,
	})
	if err != nil {
		return err
	}

	report, replayErr := m.Replay(scenario)
	if err := m.Close(); err != nil {
		log.Errorf("failed to close the module: %v", err)
	}
	if replayErr != nil {
		return replayErr
	}
	log.Infof("replayed %d steps of %s, %d events sent", report.Steps, params.scenarioFile, report.Events)

	reportOutput, closeReport, err := createFile(params.reportFile, os.Stderr)
	if err != nil {
		return err
	}
	defer closeReport()

	encoder := jsoniter.NewEncoder(reportOutput)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
