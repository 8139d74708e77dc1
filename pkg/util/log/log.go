// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package log

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

var (
	logger *ServiceLogger

	// This buffer holds log lines sent to the logger before its
	// initialization. Even if initializing the logger is one of the first
	// things the service does, we still load the config and resolve the
	// projects root before that.
	//
	// This buffer should be very short lived.
	logsBuffer           = []func(){}
	bufferLogsBeforeInit = true
	bufferMutex          sync.Mutex
	defaultStackDepth    = 3
)

// ServiceLogger is a wrapper structure for seelog
type ServiceLogger struct {
	inner seelog.LoggerInterface
	level seelog.LogLevel
	l     sync.RWMutex
}

// SetupLogger configures the logger singleton with a seelog interface
func SetupLogger(l seelog.LoggerInterface, level string) {
	logger = &ServiceLogger{
		inner: l,
	}

	lvl, ok := seelog.LogLevelFromString(level)
	if !ok {
		lvl = seelog.InfoLvl
	}
	logger.level = lvl

	// We're not going to call ServiceLogger directly, but using the
	// exported functions, that will give us two frames in the stack
	// trace that should be skipped to get to the original caller.
	logger.inner.SetAdditionalStackDepth(defaultStackDepth) //nolint:errcheck

	// Flushing logs since the logger is now initialized
	bufferMutex.Lock()
	bufferLogsBeforeInit = false
	defer bufferMutex.Unlock()
	for _, logLine := range logsBuffer {
		logLine()
	}
	logsBuffer = []func(){}
}

func addLogToBuffer(logHandle func()) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()

	logsBuffer = append(logsBuffer, logHandle)
}

func (sw *ServiceLogger) changeLogLevel(level string) error {
	sw.l.Lock()
	defer sw.l.Unlock()

	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		return errors.New("bad log level")
	}
	sw.level = lvl
	return nil
}

func (sw *ServiceLogger) shouldLog(level seelog.LogLevel) bool {
	sw.l.RLock()
	shouldLog := level >= sw.level
	sw.l.RUnlock()

	return shouldLog
}

func (sw *ServiceLogger) trace(s string) {
	sw.l.Lock()
	defer sw.l.Unlock()
	sw.inner.Trace(s)
}

func (sw *ServiceLogger) debug(s string) {
	sw.l.Lock()
	defer sw.l.Unlock()
	sw.inner.Debug(s)
}

func (sw *ServiceLogger) info(s string) {
	sw.l.Lock()
	defer sw.l.Unlock()
	sw.inner.Info(s)
}

func (sw *ServiceLogger) warn(s string) error {
	sw.l.Lock()
	defer sw.l.Unlock()
	return sw.inner.Warn(s)
}

func (sw *ServiceLogger) error(s string) error {
	sw.l.Lock()
	defer sw.l.Unlock()
	return sw.inner.Error(s)
}

func (sw *ServiceLogger) critical(s string) error {
	sw.l.Lock()
	defer sw.l.Unlock()
	return sw.inner.Critical(s)
}

func (sw *ServiceLogger) flush() {
	sw.l.Lock()
	defer sw.l.Unlock()
	sw.inner.Flush()
}

func formatError(v ...interface{}) error {
	msg := fmt.Sprintln(v...)
	return errors.New(msg[:len(msg)-1])
}

func log(logLevel seelog.LogLevel, bufferFunc func(), logFunc func(s string), v ...interface{}) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()
	if bufferLogsBeforeInit && logger == nil {
		logsBuffer = append(logsBuffer, bufferFunc)
		return
	}
	if logger != nil && logger.shouldLog(logLevel) {
		s := buildLogEntry(v...)
		logFunc(s)
	}
}

func logFormat(logLevel seelog.LogLevel, bufferFunc func(), logFunc func(format string, params ...interface{}), format string, params ...interface{}) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()
	if bufferLogsBeforeInit && logger == nil {
		logsBuffer = append(logsBuffer, bufferFunc)
		return
	}
	if logger != nil && logger.shouldLog(logLevel) {
		logFunc(format, params...)
	}
}

func buildLogEntry(v ...interface{}) string {
	var fmtBuffer []string
	for i := 0; i < len(v); i++ {
		fmtBuffer = append(fmtBuffer, "%v")
	}
	return fmt.Sprintf(strings.Join(fmtBuffer, " "), v...)
}

// Trace logs at the trace level
func Trace(v ...interface{}) {
	log(seelog.TraceLvl, func() { Trace(v...) }, logger.trace, v...)
}

// Tracef logs with format at the trace level
func Tracef(format string, params ...interface{}) {
	logFormat(seelog.TraceLvl, func() { Tracef(format, params...) }, func(format string, params ...interface{}) {
		logger.trace(fmt.Sprintf(format, params...))
	}, format, params...)
}

// Debug logs at the debug level
func Debug(v ...interface{}) {
	log(seelog.DebugLvl, func() { Debug(v...) }, logger.debug, v...)
}

// Debugf logs with format at the debug level
func Debugf(format string, params ...interface{}) {
	logFormat(seelog.DebugLvl, func() { Debugf(format, params...) }, func(format string, params ...interface{}) {
		logger.debug(fmt.Sprintf(format, params...))
	}, format, params...)
}

// Info logs at the info level
func Info(v ...interface{}) {
	log(seelog.InfoLvl, func() { Info(v...) }, logger.info, v...)
}

// Infof logs with format at the info level
func Infof(format string, params ...interface{}) {
	logFormat(seelog.InfoLvl, func() { Infof(format, params...) }, func(format string, params ...interface{}) {
		logger.info(fmt.Sprintf(format, params...))
	}, format, params...)
}

// Warn logs at the warn level and returns an error containing the formated log message
func Warn(v ...interface{}) error {
	log(seelog.WarnLvl, func() { Warn(v...) }, func(s string) { logger.warn(s) }, v...) //nolint:errcheck
	return formatError(v...)
}

// Warnf logs with format at the warn level and returns an error containing the formated log message
func Warnf(format string, params ...interface{}) error {
	logFormat(seelog.WarnLvl, func() { Warnf(format, params...) }, func(format string, params ...interface{}) {
		logger.warn(fmt.Sprintf(format, params...)) //nolint:errcheck
	}, format, params...)
	return fmt.Errorf(format, params...)
}

// Error logs at the error level and returns an error containing the formated log message
func Error(v ...interface{}) error {
	log(seelog.ErrorLvl, func() { Error(v...) }, func(s string) { logger.error(s) }, v...) //nolint:errcheck
	return formatError(v...)
}

// Errorf logs with format at the error level and returns an error containing the formated log message
func Errorf(format string, params ...interface{}) error {
	logFormat(seelog.ErrorLvl, func() { Errorf(format, params...) }, func(format string, params ...interface{}) {
		logger.error(fmt.Sprintf(format, params...)) //nolint:errcheck
	}, format, params...)
	return fmt.Errorf(format, params...)
}

// Critical logs at the critical level and returns an error containing the formated log message
func Critical(v ...interface{}) error {
	log(seelog.CriticalLvl, func() { Critical(v...) }, func(s string) { logger.critical(s) }, v...) //nolint:errcheck
	return formatError(v...)
}

// Criticalf logs with format at the critical level and returns an error containing the formated log message
func Criticalf(format string, params ...interface{}) error {
	logFormat(seelog.CriticalLvl, func() { Criticalf(format, params...) }, func(format string, params ...interface{}) {
		logger.critical(fmt.Sprintf(format, params...)) //nolint:errcheck
	}, format, params...)
	return fmt.Errorf(format, params...)
}

// ChangeLogLevel changes the current log level, valid levels are trace, debug,
// info, warn, error, critical and off
func ChangeLogLevel(l seelog.LoggerInterface, level string) error {
	if logger != nil {
		if err := logger.changeLogLevel(level); err != nil {
			return err
		}

		// See detailed explanation in SetupLogger(...)
		if err := l.SetAdditionalStackDepth(defaultStackDepth); err != nil {
			return err
		}

		logger.inner = l
		return nil
	}
	// need to return something, just set to Info (expected default)
	return errors.New("cannot change loglevel: logger not initialized")
}

// Flush flushes the underlying inner log
func Flush() {
	if logger != nil {
		logger.flush()
	}
}
