// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log implements the process-wide logger, a thin wrapper around seelog
package log

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cihub/seelog"
	"go.uber.org/atomic"
)

// frames between the caller of an exported function and seelog
const callerDepth = 2

type logger struct {
	sync.Mutex
	inner seelog.LoggerInterface
	level seelog.LogLevel
}

var (
	current = atomic.NewPointer[logger](nil)

	// lines logged before SetLogger, configuration loading happens first
	pending     []func()
	pendingLock sync.Mutex
)

func parseLevel(level string) (seelog.LogLevel, bool) {
	return seelog.LogLevelFromString(strings.ToLower(level))
}

// SetLogger installs the seelog logger and replays the lines logged so far.
// An unknown level falls back to info.
func SetLogger(inner seelog.LoggerInterface, level string) {
	lvl, ok := parseLevel(level)
	if !ok {
		lvl = seelog.InfoLvl
	}
	_ = inner.SetAdditionalStackDepth(callerDepth)
	current.Store(&logger{inner: inner, level: lvl})

	pendingLock.Lock()
	replay := pending
	pending = nil
	pendingLock.Unlock()

	for _, line := range replay {
		line()
	}
}

func (l *logger) enabled(lvl seelog.LogLevel) bool {
	return lvl >= l.level
}

func (l *logger) write(lvl seelog.LogLevel, msg string) {
	l.Lock()
	defer l.Unlock()

	switch lvl {
	case seelog.TraceLvl:
		l.inner.Trace(msg)
	case seelog.DebugLvl:
		l.inner.Debug(msg)
	case seelog.InfoLvl:
		l.inner.Info(msg)
	case seelog.WarnLvl:
		_ = l.inner.Warn(msg)
	default:
		_ = l.inner.Error(msg)
	}
}

// logf writes the line, or queues replay until a logger is set. Errors that
// no logger wrote go to stderr.
func logf(lvl seelog.LogLevel, replay func(), format string, params ...interface{}) error {
	msg := fmt.Sprintf(format, params...)

	l := current.Load()
	if l == nil {
		pendingLock.Lock()
		pending = append(pending, replay)
		pendingLock.Unlock()
	} else if l.enabled(lvl) {
		l.write(lvl, msg)
		return errors.New(msg)
	}

	if lvl >= seelog.ErrorLvl {
		fmt.Fprintf(os.Stderr, "%s: %s\n", lvl, msg)
	}
	return errors.New(msg)
}

// Tracef logs with format at the trace level
func Tracef(format string, params ...interface{}) {
	_ = logf(seelog.TraceLvl, func() { Tracef(format, params...) }, format, params...)
}

// Debugf logs with format at the debug level
func Debugf(format string, params ...interface{}) {
	_ = logf(seelog.DebugLvl, func() { Debugf(format, params...) }, format, params...)
}

// Infof logs with format at the info level
func Infof(format string, params ...interface{}) {
	_ = logf(seelog.InfoLvl, func() { Infof(format, params...) }, format, params...)
}

// Warnf logs with format at the warn level and returns the message as an error
func Warnf(format string, params ...interface{}) error {
	return logf(seelog.WarnLvl, func() { _ = Warnf(format, params...) }, format, params...)
}

// Errorf logs with format at the error level and returns the message as an error
func Errorf(format string, params ...interface{}) error {
	return logf(seelog.ErrorLvl, func() { _ = Errorf(format, params...) }, format, params...)
}

// Flush flushes the underlying seelog logger
func Flush() {
	if l := current.Load(); l != nil {
		l.inner.Flush()
	}
}

// ShouldLog returns whether a line of the given level would be written
func ShouldLog(lvl seelog.LogLevel) bool {
	l := current.Load()
	return l != nil && l.enabled(lvl)
}
