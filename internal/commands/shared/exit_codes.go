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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/servectl/internal/config"
	"github.com/tombee/servectl/internal/lifecycle"
)

// Exit codes for servectl commands
const (
	ExitSuccess       = 0
	ExitFailed        = 1
	ExitInvalidConfig = 2
	ExitNotRunning    = 3 // restart found no running instance
	ExitLaunchFailed  = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration
func NewConfigError(cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidConfig,
		Message: "invalid configuration",
		Cause:   cause,
	}
}

// NewNotRunningError creates an error for a restart without a running instance
func NewNotRunningError(cause error) *ExitError {
	return &ExitError{
		Code:    ExitNotRunning,
		Message: "restart failed",
		Cause:   cause,
	}
}

// NewLaunchError creates an error for a server that could not be launched
func NewLaunchError(cause error) *ExitError {
	return &ExitError{
		Code:    ExitLaunchFailed,
		Message: "failed to start server",
		Cause:   cause,
	}
}

// ClassifyError wraps lifecycle and config errors in an ExitError with the
// matching code. Other errors are returned unchanged.
func ClassifyError(err error) error {
	var exitErr *ExitError
	var cfgErr *config.ConfigError
	switch {
	case err == nil || errors.As(err, &exitErr):
		return err
	case errors.As(err, &cfgErr):
		return NewConfigError(err)
	case errors.Is(err, lifecycle.ErrNoRunningInstance):
		return NewNotRunningError(err)
	case errors.Is(err, lifecycle.ErrLaunchFailed):
		return NewLaunchError(err)
	default:
		return err
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err with any suggestion and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and, when an error in its chain offers one, a
// suggestion.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	printSuggestion(w, err)
}

// suggester is implemented by errors that carry a fix-it hint.
type suggester interface {
	Suggestion() string
}

func printSuggestion(w io.Writer, err error) {
	if suggestion := suggestionFor(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

// suggestionFor walks the error chain to the first error with a suggestion.
func suggestionFor(err error) string {
	for err != nil {
		if s, ok := err.(suggester); ok {
			return s.Suggestion()
		}
		err = errors.Unwrap(err)
	}
	return ""
}
