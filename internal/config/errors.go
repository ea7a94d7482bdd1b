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

import "fmt"

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "server.entry").
	Key string

	// Reason explains what's wrong with the configuration.
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error).
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s", e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Suggestion returns a hint for fixing the problem, shown by the CLI.
func (e *ConfigError) Suggestion() string {
	switch e.Key {
	case "server.entry":
		return "Set server.entry in the config file or export SERVECTL_ENTRY"
	case "config_file":
		return "Check the file passed with --config, or remove it to use defaults"
	default:
		return ""
	}
}
