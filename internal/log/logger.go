// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
)

// Custom log levels extending slog's standard levels.
const (
	// LevelTrace is more verbose than Debug.
	LevelTrace = slog.Level(-8)
)

// Standard field keys for structured logging.
const (
	// PIDKey is the field key for process IDs.
	PIDKey = "pid"
	// CorrelationIDKey is the field key for the per-invocation ID.
	CorrelationIDKey = "correlation_id"
	// ComponentKey is the field key for component names.
	ComponentKey = "component"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: warn
	Level string

	// Format sets the output format (json, text).
	// Default: text
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to logs.
	// Default: false
	AddSource bool

	// File, when set, sends logs to a rotating file instead of Output.
	File RotationConfig
}

// DefaultConfig returns a Config with sensible defaults for a CLI: only
// warnings and errors, as text, on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:     "warn",
		Format:    FormatText,
		Output:    os.Stderr,
		AddSource: false,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - SERVECTL_DEBUG: true/1 to enable debug level and source logging (takes precedence)
//   - SERVECTL_LOG_LEVEL: trace, debug, info, warn, error (takes precedence over LOG_LEVEL)
//   - LOG_LEVEL: trace, debug, info, warn, error (default: warn)
//   - LOG_FORMAT: json, text (default: text)
//   - LOG_SOURCE: 1 to enable source file/line (default: 0)
//   - SERVECTL_LOG_FILE: path of a rotating log file (default: stderr)
//   - SERVECTL_LOG_MAX_SIZE_MB, SERVECTL_LOG_MAX_FILES: rotation limits
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("SERVECTL_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	if debug == "" {
		if level := os.Getenv("SERVECTL_LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		} else if level := os.Getenv("LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	cfg.File.File = os.Getenv("SERVECTL_LOG_FILE")
	if n, err := strconv.Atoi(os.Getenv("SERVECTL_LOG_MAX_SIZE_MB")); err == nil {
		cfg.File.MaxSizeMB = n
	}
	if n, err := strconv.Atoi(os.Getenv("SERVECTL_LOG_MAX_FILES")); err == nil {
		cfg.File.MaxFiles = n
	}

	return cfg
}

// New creates a new structured logger from the given configuration.
// cfg.File is ignored; use Open to log to a file.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	case FormatText:
		fallthrough
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

// Open creates a logger like New, routing output to a rotating file when
// cfg.File is set. The returned close function releases the file.
func Open(cfg *Config) (*slog.Logger, func() error, error) {
	if cfg == nil || cfg.File.File == "" {
		return New(cfg), func() error { return nil }, nil
	}

	w, err := NewRotatingWriter(cfg.File)
	if err != nil {
		return nil, nil, err
	}

	fileCfg := *cfg
	fileCfg.Output = w
	return New(&fileCfg), w.Close, nil
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// WithCorrelationID returns a new logger with a correlation ID field.
// Correlation IDs tie log lines to lifecycle events of the same invocation.
func WithCorrelationID(logger *slog.Logger, correlationID string) *slog.Logger {
	return logger.With(CorrelationIDKey, correlationID)
}

// WithComponent returns a new logger with a component name field.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(ComponentKey, component)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Trace logs a message at trace level with optional attributes.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	ctx := context.Background()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	logger.LogAttrs(ctx, LevelTrace, msg, attrs...)
}
