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

package server

import (
	"errors"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/tombee/servectl/internal/commands/shared"
	"github.com/tombee/servectl/internal/lifecycle"
)

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var opts lifecycle.StartOptions

	cmd := &cobra.Command{
		Use:   "start [-- server args...]",
		Short: "Start the server in the background",
		Long: `Start the server as a detached background process and record its PID.

Arguments after the flags are passed through to the server. No check is made
for an instance that is already running.

With --dev the server runs in the foreground with the development
environment and the flags --no-daemon --no-silent; the PID file is not used.`,
		Example: `  # Start in the background
  servectl start

  # Start and follow the output (Ctrl-C stops following, not the server)
  servectl start --log

  # Pass arguments through to the server
  servectl start -- --port 8080

  # Run in the foreground for development
  servectl start --dev`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Args = args
			return run(cmd, false, func(e *env) error {
				return runStart(cmd, e, opts)
			})
		},
	}

	bindStartFlags(cmd.Flags(), &opts)

	return cmd
}

func runStart(cmd *cobra.Command, e *env, opts lifecycle.StartOptions) error {
	handle, err := e.ctrl.Start(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return waitForeground(handle)
}

// waitForeground blocks on a development-mode server and exits with its
// status. Background handles return immediately.
func waitForeground(handle *lifecycle.Handle) error {
	if handle == nil || !handle.Foreground {
		return nil
	}

	err := handle.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &shared.ExitError{
			Code:    exitErr.ExitCode(),
			Message: "server exited",
			Cause:   err,
		}
	}
	return err
}
