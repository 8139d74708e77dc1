// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package config

import (
	"fmt"
	"strings"

	seelog "github.com/cihub/seelog"

	"github.com/sashimi-data/sashimi/pkg/util/log"
)

const logFileMaxSize = 10 * 1024 * 1024         // 10MB
const logDateFormat = "2006-01-02 15:04:05 MST" // see time.Format for format syntax

// SetupLogger builds the seelog backend from the configured level and
// optional file, and installs it as the process logger.
func SetupLogger(logLevel, logFile string) error {
	configTemplate := `<seelog minlevel="%s">
    <outputs formatid="common">
        <console />`
	if logFile != "" {
		configTemplate += fmt.Sprintf(`<rollingfile type="size" filename="%s" maxsize="%d" maxrolls="1" />`, logFile, logFileMaxSize)
	}
	configTemplate += `</outputs>
    <formats>
        <format id="common" format="%%Date(%s) | %%LEVEL | (%%RelFile:%%Line) | %%Msg%%n"/>
    </formats>
</seelog>`
	config := fmt.Sprintf(configTemplate, strings.ToLower(logLevel), logDateFormat)

	logger, err := seelog.LoggerFromConfigAsString(config)
	if err != nil {
		return err
	}
	seelog.ReplaceLogger(logger) //nolint:errcheck
	log.SetupLogger(logger, logLevel)
	return nil
}

// ErrorLogWriter is a Writer that logs all written messages with the
// global logger at an error level, for use as an http.Server ErrorLog.
type ErrorLogWriter struct{}

func (s *ErrorLogWriter) Write(p []byte) (n int, err error) {
	log.Error(strings.TrimSuffix(string(p), "\n")) //nolint:errcheck
	return len(p), nil
}
