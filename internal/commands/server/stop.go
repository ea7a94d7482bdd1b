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
	"github.com/spf13/cobra"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long: `Send SIGTERM to the server recorded in the PID file and return at once.

stop does not wait for the server to exit and never escalates to SIGKILL.
If no live server is found it reports that the server is already stopped
and exits successfully. A stale PID file is left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, false, func(e *env) error {
				_, err := e.ctrl.Stop(cmd.Context())
				return err
			})
		},
	}
}
