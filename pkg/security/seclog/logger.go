// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package seclog holds the logger of the security module, trace logs can be
// restricted to a set of caller patterns
package seclog

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/cihub/seelog"
	"github.com/gobwas/glob"

	"github.com/DataDog/cws-rename-probe/pkg/util/log"
)

// PatternLogger is a wrapper for the agent logger that add a level of filtering to trace log level
type PatternLogger struct {
	sync.RWMutex
	patterns []glob.Glob
}

// Trace is used to print a trace level log
func (l *PatternLogger) Trace(v interface{}) {
	l.Tracef("%v", v)
}

func (l *PatternLogger) match(caller string) bool {
	l.RLock()
	defer l.RUnlock()

	if len(l.patterns) == 0 {
		return true
	}
	for _, pattern := range l.patterns {
		if pattern.Match(caller) {
			return true
		}
	}
	return false
}

// Tracef is used to print a trace level log
func (l *PatternLogger) Tracef(format string, params ...interface{}) {
	if !log.ShouldLog(seelog.TraceLvl) {
		return
	}

	caller := "unknown"
	if pc, _, _, ok := runtime.Caller(2); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	if l.match(caller) {
		log.Tracef(format, params...)
	}
}

// SetPatterns restricts trace logs to the callers matching one of the patterns
func (l *PatternLogger) SetPatterns(patterns ...string) error {
	var globs []glob.Glob
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid trace pattern `%s`: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	l.Lock()
	l.patterns = globs
	l.Unlock()

	return nil
}

var (
	// DefaultLogger default logger of this package
	DefaultLogger = &PatternLogger{}
)

// Tracef is used to print a trace level log
func Tracef(format string, params ...interface{}) {
	DefaultLogger.Tracef(format, params...)
}

// Debugf is used to print a trace level log
func Debugf(format string, params ...interface{}) {
	log.Debugf(format, params...)
}

// Infof is used to print an info level log
func Infof(format string, params ...interface{}) {
	log.Infof(format, params...)
}

// Warnf is used to print a warn level log
func Warnf(format string, params ...interface{}) {
	_ = log.Warnf(format, params...)
}

// Errorf is used to print an error
func Errorf(format string, params ...interface{}) {
	_ = log.Errorf(format, params...)
}

// SetPatterns set patterns for the trace logs
func SetPatterns(patterns ...string) error {
	return DefaultLogger.SetPatterns(patterns...)
}

// SetTraceTags restricts trace logs to the given packages
func SetTraceTags(tags ...string) error {
	var patterns []string
	for _, tag := range tags {
		patterns = append(patterns, "*"+strings.TrimSuffix(tag, "*")+"*")
	}
	return SetPatterns(patterns...)
}
