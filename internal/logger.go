package internal

import (
	"io"
	"log"
	"os"
	"sync"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

var (
	logMu    sync.Mutex
	logLevel = LogLevelInfo
	logger   = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	defer logMu.Unlock()
	logLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

// SetLogOutput redirects log output, used by tests to capture or silence
// the event loop's per-event diagnostics.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = log.New(w, "", log.LstdFlags)
}

func logAt(level LogLevel, prefix, format string, args ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()
	if logLevel >= level {
		logger.Printf(prefix+format, args...)
	}
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logAt(LogLevelError, "[ERROR] ", format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	logAt(LogLevelWarn, "[WARN] ", format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logAt(LogLevelInfo, "[INFO] ", format, args...)
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	logAt(LogLevelDebug, "[DEBUG] ", format, args...)
}
