/*
	Copyright 2021 SANGFOR TECHNOLOGIES

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/
package log

import (
	"fmt"
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"io"
	"log/syslog"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// LogLevel indicate the severity of a log entry
type LogLevel int

const (
	FATAL LogLevel = iota
	CRITICAL
	ERROR
	WARNING
	NOTICE
	INFO
	DEBUG
)

// globalLogLevel indicates the global level filter for all logs (only entries with level equals or higher
// than this value will be logged)
var globalLogLevel = DEBUG
var printStackTrace = false
var disableOutPut = false

// output is guarded since stream sessions and bootstrap stages log from different goroutines
var outputMu sync.Mutex
var output io.Writer = os.Stderr

// syslogWriter is optional, and defaults to nil (disabled)
var syslogLevel = ERROR
var syslogWriter *syslog.Writer

var fatalFunc = func() { os.Exit(1) }

func (ll LogLevel) String() string {
	switch ll {
	case FATAL:
		return "FATAL"
	case CRITICAL:
		return "CRITICAL"
	case ERROR:
		return "ERROR"
	case WARNING:
		return "WARNING"
	case NOTICE:
		return "NOTICE"
	case INFO:
		return "INFO"
	case DEBUG:
		return "DEBUG"
	}
	return "unknown"
}

// SetPrintStackTrace enables/disables dumping the stack upon error logging
func SetPrintStackTrace(shouldPrintStackTrace bool) {
	printStackTrace = shouldPrintStackTrace
}

// SetLevel sets the global log level. Only entries with level equals or higher than
// this value will be logged
func SetLevel(logLevel LogLevel) {
	globalLogLevel = logLevel
}

// GetLevel returns current global log level
func GetLevel() LogLevel {
	return globalLogLevel
}

// SetOutput replace the writer log entries go to, stderr by default
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

// EnableSyslogWriter enables, if possible, writes to syslog. These will execute _in addition_ to normal logging
func EnableSyslogWriter(tag string) (err error) {
	syslogWriter, err = syslog.New(syslog.LOG_ERR, tag)
	if err != nil {
		syslogWriter = nil
	}
	return err
}

// SetSyslogLevel sets the minimal syslog level. Only entries with level equals or higher than
// this value will be logged. However, this is also capped by the global log level. That is,
// messages with lower level than global-log-level will be discarded at any case.
func SetSyslogLevel(logLevel LogLevel) {
	syslogLevel = logLevel
}

// SetFatalFunc set fatal function, when get fatal log, will exec this function
func SetFatalFunc(fatalF func()) {
	fatalFunc = fatalF
}

// DisableOutput disable log output or not
func DisableOutput(disable bool) {
	disableOutPut = disable
}

// logFormattedEntry nicely formats and emits a log entry
func logFormattedEntry(logLevel LogLevel, message string, args ...interface{}) string {

	// format log entry, if TZ env variable is set, update the timestamp timezone
	localizedTime := time.Now()
	if tzLocation := os.Getenv("TZ"); tzLocation != "" {
		// if invalid tz location was provided, just leave it as the default
		if location, err := time.LoadLocation(tzLocation); err == nil {
			localizedTime = localizedTime.In(location)
		}
	}
	msgArgs := fmt.Sprintf(message, args...)
	entryString := fmt.Sprintf("%s %s %s", localizedTime.Format(constant.DateFormatLog), logLevel, msgArgs)

	// filtered entries are still returned so Errorf keeps its message
	if logLevel > globalLogLevel || disableOutPut {
		return entryString
	}

	// output entry string to writer and system log if not nil
	outputMu.Lock()
	fmt.Fprintln(output, entryString)
	outputMu.Unlock()
	if syslogWriter != nil && logLevel <= syslogLevel {
		go writeSyslog(logLevel, msgArgs)
	}
	return entryString
}

// writeSyslog mirror entry to syslog at the matching severity
func writeSyslog(logLevel LogLevel, msg string) error {
	switch logLevel {
	case FATAL:
		return syslogWriter.Emerg(msg)
	case CRITICAL:
		return syslogWriter.Crit(msg)
	case ERROR:
		return syslogWriter.Err(msg)
	case WARNING:
		return syslogWriter.Warning(msg)
	case NOTICE:
		return syslogWriter.Notice(msg)
	case INFO:
		return syslogWriter.Info(msg)
	case DEBUG:
		return syslogWriter.Debug(msg)
	}
	return nil
}

// logErrorEntry emits a log entry based on given error object
func logErrorEntry(logLevel LogLevel, err error) error {
	if err == nil {
		return nil
	}
	logFormattedEntry(logLevel, "%+v", err)
	if printStackTrace {
		debug.PrintStack()
	}
	return err
}

func Debug(message string, args ...interface{}) string {
	return logFormattedEntry(DEBUG, message, args...)
}

func Info(message string, args ...interface{}) {
	logFormattedEntry(INFO, message, args...)
}

func Infof(message string, args ...interface{}) string {
	return logFormattedEntry(INFO, message, args...)
}

func Notice(message string, args ...interface{}) string {
	return logFormattedEntry(NOTICE, message, args...)
}

func Warning(message string, args ...interface{}) {
	logFormattedEntry(WARNING, message, args...)
}

func Warningf(message string, args ...interface{}) error {
	logFormattedEntry(WARNING, message, args...)
	return fmt.Errorf(message, args...)
}

func Warninge(err error) error {
	return logErrorEntry(WARNING, err)
}

func Error(message string, args ...interface{}) {
	logFormattedEntry(ERROR, message, args...)
}

// Errorf log the message and return it as an error, the returned error does not carry the log prefix
func Errorf(message string, args ...interface{}) error {
	logFormattedEntry(ERROR, message, args...)
	return fmt.Errorf(message, args...)
}

func Errore(err error) error {
	return logErrorEntry(ERROR, err)
}

func Criticalf(message string, args ...interface{}) error {
	logFormattedEntry(CRITICAL, message, args...)
	return fmt.Errorf(message, args...)
}

func Criticale(err error) error {
	return logErrorEntry(CRITICAL, err)
}

// Fatal emits a FATAL level entry and exists the program
func Fatal(message string, args ...interface{}) {
	logFormattedEntry(FATAL, message, args...)
	fatalFunc()
}

// Fatalf emits a FATAL level entry and exists the program
func Fatalf(message string, args ...interface{}) error {
	logFormattedEntry(FATAL, message, args...)
	fatalFunc()
	return fmt.Errorf(message, args...)
}

// Fatale emits a FATAL level entry and exists the program
func Fatale(err error) error {
	logErrorEntry(FATAL, err)
	fatalFunc()
	return err
}
