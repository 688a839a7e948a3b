// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cihub/seelog"
)

// LoggerName is the name of the logger, printed in every line
type LoggerName string

const (
	// ProbeLoggerName is the logger name of the rename probe
	ProbeLoggerName LoggerName = "CWS"

	logDateFormat = "2006-01-02 15:04:05 MST"
)

// buildCommonFormat returns the log common format seelog string
func buildCommonFormat(loggerName LoggerName) string {
	return fmt.Sprintf("%%Date(%s) | %s | %%LEVEL | (%%ShortFilePath:%%Line in %%FuncShort) | %%Msg%%n", logDateFormat, loggerName)
}

// buildJSONFormat returns the log JSON format seelog string
func buildJSONFormat(loggerName LoggerName) string {
	return fmt.Sprintf(`{"agent":"%s","time":"%%Date(%s)","level":"%%LEVEL","file":"%%ShortFilePath","line":"%%Line","func":"%%FuncShort","msg":"%%Msg"}%%n`, strings.ToLower(string(loggerName)), logDateFormat)
}

// LoggerFromWriterWithMinLevel returns a seelog logger writing to w
func LoggerFromWriterWithMinLevel(w io.Writer, level string, jsonFormat bool, loggerName LoggerName) (seelog.LoggerInterface, error) {
	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	format := buildCommonFormat(loggerName)
	if jsonFormat {
		format = buildJSONFormat(loggerName)
	}
	return seelog.LoggerFromWriterWithMinLevelAndFormat(w, lvl, format)
}

// SetupLogger sets up the default logger, writing to stderr
func SetupLogger(loggerName LoggerName, level string, jsonFormat bool) error {
	l, err := LoggerFromWriterWithMinLevel(os.Stderr, level, jsonFormat, loggerName)
	if err != nil {
		return err
	}
	SetLogger(l, level)
	return nil
}
