package main

import (
	"fmt"
	"os"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

var logCleanup func()

// initLogger initializes the logger.
// Priority: CLI flags > env vars > config file > defaults
func initLogger(cliLevel, cliFile, cliFormat string, cfg *config.LoggingConfig) error {
	var fromCfg config.LoggingConfig
	if cfg != nil {
		fromCfg = *cfg
	}

	level := firstNonEmpty(cliLevel, os.Getenv(LogLevelEnvVar), fromCfg.Level, "info")
	file := firstNonEmpty(cliFile, os.Getenv(LogFileEnvVar), fromCfg.File)
	format := firstNonEmpty(cliFormat, os.Getenv(LogFormatEnvVar), fromCfg.Format, "simple")

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if file != "" {
		f, fn, err := logger.OpenLogFile(file)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = f, fn
	}

	closeLogger()
	logger.Init(parsed, output, format)
	logCleanup = cleanup
	return nil
}

func closeLogger() {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
