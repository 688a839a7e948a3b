// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package fxutil

import (
	"errors"
	"reflect"

	"go.uber.org/fx"
)

// delayedFxInvocation captures the arguments of a function from fx so that
// the function can be called after the app has started
type delayedFxInvocation struct {
	fn   interface{}
	args []reflect.Value
}

func newDelayedFxInvocation(fn interface{}) *delayedFxInvocation {
	ftype := reflect.TypeOf(fn)
	if ftype == nil || ftype.Kind() != reflect.Func {
		panic("delayedFxInvocation requires a function as its first argument")
	}
	return &delayedFxInvocation{fn: fn}
}

// option returns an fx.Option that captures the function arguments
func (i *delayedFxInvocation) option() fx.Option {
	ftype := reflect.TypeOf(i.fn)

	var inTypes []reflect.Type
	for n := 0; n < ftype.NumIn(); n++ {
		inTypes = append(inTypes, ftype.In(n))
	}

	captureType := reflect.FuncOf(inTypes, nil, false)
	capture := reflect.MakeFunc(captureType, func(args []reflect.Value) []reflect.Value {
		i.args = args
		return nil
	})

	return fx.Invoke(capture.Interface())
}

// call calls the function with the captured arguments
func (i *delayedFxInvocation) call() error {
	if i.args == nil {
		return errors.New("delayed function arguments were never captured")
	}

	res := reflect.ValueOf(i.fn).Call(i.args)
	if len(res) > 0 {
		if err, ok := res[0].Interface().(error); ok && err != nil {
			return err
		}
	}
	return nil
}
