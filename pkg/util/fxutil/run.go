// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package fxutil runs the fx applications of the commands
package fxutil

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
)

const appTimeout = 5 * time.Minute

// TemporaryAppTimeouts returns the start and stop timeouts of the applications
func TemporaryAppTimeouts() fx.Option {
	return fx.Options(fx.StartTimeout(appTimeout), fx.StopTimeout(appTimeout))
}

// Run runs an fx.App using the supplied options, returning any errors.
//
// This differs from fx.App#Run in that it returns errors instead of exiting
// the process.
func Run(opts ...fx.Option) error {
	if fxAppTestOverride != nil {
		return fxAppTestOverride(func() {}, opts)
	}

	opts = append([]fx.Option{TemporaryAppTimeouts(), fx.NopLogger}, opts...)
	app := fx.New(opts...)

	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()

	if err := app.Start(startCtx); err != nil {
		return errors.Join(err, stopApp(app))
	}

	<-app.Done()

	return stopApp(app)
}

// OneShot runs the given function in an fx.App using the supplied options.
// The function's arguments are supplied by fx and it is called once the app
// is started, the app is stopped when it returns.
func OneShot(oneShotFunc interface{}, opts ...fx.Option) error {
	if fxAppTestOverride != nil {
		return fxAppTestOverride(oneShotFunc, opts)
	}

	delayed := newDelayedFxInvocation(oneShotFunc)

	opts = append([]fx.Option{TemporaryAppTimeouts(), fx.NopLogger}, opts...)
	opts = append(opts, delayed.option())
	app := fx.New(opts...)

	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()

	if err := app.Start(startCtx); err != nil {
		return errors.Join(err, stopApp(app))
	}

	if err := delayed.call(); err != nil {
		return errors.Join(err, stopApp(app))
	}

	return stopApp(app)
}

func stopApp(app *fx.App) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	return app.Stop(stopCtx)
}
