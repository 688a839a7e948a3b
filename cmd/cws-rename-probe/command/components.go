// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package command

import (
	"context"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/DataDog/viper"
	"go.uber.org/fx"

	"github.com/DataDog/cws-rename-probe/pkg/security/config"
	"github.com/DataDog/cws-rename-probe/pkg/util/log"
)

// Bundle provides the configuration and the statsd client to the subcommands
func Bundle(globalParams *GlobalParams) fx.Option {
	return fx.Options(
		fx.Supply(globalParams),
		fx.Provide(newViper),
		fx.Provide(config.NewConfig),
		fx.Provide(newStatsdClient),
	)
}

func newViper(globalParams *GlobalParams) (*viper.Viper, error) {
	return config.Load(globalParams.ConfFilePath)
}

func newStatsdClient(lc fx.Lifecycle, cfg *config.Config) (statsd.ClientInterface, error) {
	if cfg.StatsdAddr == "" {
		return &statsd.NoOpClient{}, nil
	}

	client, err := statsd.New(cfg.StatsdAddr)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// SetupLogger sets up the logger from the configuration, level overrides the
// configured level when set
func SetupLogger(cfg *config.Config, level string) error {
	if level == "" {
		level = cfg.LogLevel
	}
	return log.SetupLogger(log.ProbeLoggerName, level, cfg.LogJSON)
}
