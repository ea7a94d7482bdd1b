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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete servectl configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
}

// ServerConfig describes the supervised server and where its state lives.
type ServerConfig struct {
	// Name is shown in console messages. Default: base name of Entry.
	Name string `yaml:"name,omitempty"`

	// Entry is the executable launched for every start.
	// Environment: SERVECTL_ENTRY
	Entry string `yaml:"entry"`

	// Args are passed to Entry before any pass-through arguments.
	Args []string `yaml:"args,omitempty"`

	// Workdir is the working directory of the server and the log follower.
	// Environment: SERVECTL_WORKDIR
	// Default: the current directory
	Workdir string `yaml:"workdir,omitempty"`

	// PIDFile is the pidfile path.
	// Environment: SERVECTL_PID_FILE
	// Default: $XDG_STATE_HOME/servectl/server.pid
	PIDFile string `yaml:"pid_file,omitempty"`

	// OutputLog receives the background server's stdout and stderr.
	// Environment: SERVECTL_OUTPUT_LOG
	// Default: $XDG_STATE_HOME/servectl/server.log
	OutputLog string `yaml:"output_log,omitempty"`

	// DevEnv is merged into the environment of development-mode launches.
	// Default: APP_ENV=development, NODE_ENV=development
	DevEnv map[string]string `yaml:"dev_env,omitempty"`
}

// LifecycleConfig configures the lifecycle event log.
type LifecycleConfig struct {
	// EventLog is the JSON-lines lifecycle event file. "off" disables it.
	// Environment: SERVECTL_LIFECYCLE_LOG
	// Default: $XDG_STATE_HOME/servectl/lifecycle.log
	EventLog string `yaml:"event_log,omitempty"`

	// MaxSizeMB rotates the event log past this size. Default: 10
	MaxSizeMB int `yaml:"max_size_mb,omitempty"`

	// MaxBackups is the number of rotated event logs kept. Default: 5
	MaxBackups int `yaml:"max_backups,omitempty"`
}

// EventLogDisabled is the EventLog value that turns the event log off.
const EventLogDisabled = "off"

// Default returns a configuration with default values. Entry is left empty.
// DevEnv is left nil so a dev_env map in the config file replaces the
// default rather than merging into it; Load fills it in when unset.
func Default() *Config {
	stateDir, err := StateDir()
	if err != nil {
		stateDir = filepath.Join(os.TempDir(), appName)
	}

	return &Config{
		Server: ServerConfig{
			PIDFile:   filepath.Join(stateDir, "server.pid"),
			OutputLog: filepath.Join(stateDir, "server.log"),
		},
		Lifecycle: LifecycleConfig{
			EventLog:   filepath.Join(stateDir, "lifecycle.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// DefaultDevEnv returns the environment of development-mode launches when
// none is configured.
func DefaultDevEnv() map[string]string {
	return map[string]string{
		"APP_ENV":  "development",
		"NODE_ENV": "development",
	}
}

// Load loads configuration from the given file path, environment variables,
// and defaults. An empty path reads the default config file when it exists.
// Environment variables take precedence over file values.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				configPath = p
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	// Override with environment variables
	cfg.loadFromEnv()

	if err := cfg.resolvePaths(); err != nil {
		return nil, &ConfigError{
			Key:    "server.workdir",
			Reason: "cannot resolve working directory",
			Cause:  err,
		}
	}

	if err := cfg.Validate(); err != nil {
		key := "validation"
		if cfg.Server.Entry == "" {
			key = "server.entry"
		}
		return nil, &ConfigError{
			Key:    key,
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.PIDFile == "" {
		c.Server.PIDFile = defaults.Server.PIDFile
	}
	if c.Server.OutputLog == "" {
		c.Server.OutputLog = defaults.Server.OutputLog
	}
	if c.Server.DevEnv == nil {
		c.Server.DevEnv = DefaultDevEnv()
	}

	if c.Lifecycle.EventLog == "" {
		c.Lifecycle.EventLog = defaults.Lifecycle.EventLog
	}
	if c.Lifecycle.MaxSizeMB == 0 {
		c.Lifecycle.MaxSizeMB = defaults.Lifecycle.MaxSizeMB
	}
	if c.Lifecycle.MaxBackups == 0 {
		c.Lifecycle.MaxBackups = defaults.Lifecycle.MaxBackups
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("SERVECTL_ENTRY"); val != "" {
		c.Server.Entry = val
	}
	if val := os.Getenv("SERVECTL_WORKDIR"); val != "" {
		c.Server.Workdir = val
	}
	if val := os.Getenv("SERVECTL_PID_FILE"); val != "" {
		c.Server.PIDFile = val
	}
	if val := os.Getenv("SERVECTL_OUTPUT_LOG"); val != "" {
		c.Server.OutputLog = val
	}
	if val := os.Getenv("SERVECTL_LIFECYCLE_LOG"); val != "" {
		c.Lifecycle.EventLog = val
	}
}

// resolvePaths makes Workdir absolute and anchors relative paths to it.
func (c *Config) resolvePaths() error {
	workdir := c.Server.Workdir
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workdir = wd
	}

	workdir, err := expandHome(workdir)
	if err != nil {
		return err
	}
	if workdir, err = filepath.Abs(workdir); err != nil {
		return err
	}
	c.Server.Workdir = workdir

	resolve := func(p string) (string, error) {
		p, err := expandHome(p)
		if err != nil || p == "" || filepath.IsAbs(p) {
			return p, err
		}
		return filepath.Join(workdir, p), nil
	}

	if c.Server.PIDFile, err = resolve(c.Server.PIDFile); err != nil {
		return err
	}
	if c.Server.OutputLog, err = resolve(c.Server.OutputLog); err != nil {
		return err
	}
	if c.Lifecycle.EventLog != EventLogDisabled {
		if c.Lifecycle.EventLog, err = resolve(c.Lifecycle.EventLog); err != nil {
			return err
		}
	}

	// A bare command name is looked up on PATH at launch time.
	if strings.ContainsRune(c.Server.Entry, filepath.Separator) {
		if c.Server.Entry, err = resolve(c.Server.Entry); err != nil {
			return err
		}
	}

	if c.Server.Name == "" && c.Server.Entry != "" {
		c.Server.Name = filepath.Base(c.Server.Entry)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Entry == "" {
		errs = append(errs, "server.entry is required")
	}
	if c.Server.PIDFile == "" {
		errs = append(errs, "server.pid_file must not be empty")
	}
	if c.Server.OutputLog == "" {
		errs = append(errs, "server.output_log must not be empty")
	}
	if c.Server.PIDFile != "" && c.Server.PIDFile == c.Server.OutputLog {
		errs = append(errs, fmt.Sprintf("server.pid_file and server.output_log must differ, both are %q", c.Server.PIDFile))
	}
	for _, key := range sortedKeys(c.Server.DevEnv) {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			errs = append(errs, fmt.Sprintf("server.dev_env has invalid variable name %q", key))
		}
	}

	if c.Lifecycle.MaxSizeMB < 0 {
		errs = append(errs, fmt.Sprintf("lifecycle.max_size_mb must not be negative, got %d", c.Lifecycle.MaxSizeMB))
	}
	if c.Lifecycle.MaxBackups < 0 {
		errs = append(errs, fmt.Sprintf("lifecycle.max_backups must not be negative, got %d", c.Lifecycle.MaxBackups))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// EventLogEnabled reports whether lifecycle events should be written.
func (c *LifecycleConfig) EventLogEnabled() bool {
	return c.EventLog != "" && c.EventLog != EventLogDisabled
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
