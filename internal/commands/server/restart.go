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

	"github.com/tombee/servectl/internal/lifecycle"
)

// NewRestartCommand creates the restart command.
func NewRestartCommand() *cobra.Command {
	var opts lifecycle.StartOptions

	cmd := &cobra.Command{
		Use:   "restart [-- server args...]",
		Short: "Restart the running server",
		Long: `Send SIGTERM to the running server and immediately start a new one.

The new server is started without the banner and without waiting for the old
one to exit. If no running server is found nothing is started and the
command exits with status 3.`,
		Example: `  # Restart and follow the output
  servectl restart --log`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Args = args
			return run(cmd, false, func(e *env) error {
				handle, err := e.ctrl.Restart(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return waitForeground(handle)
			})
		},
	}

	bindStartFlags(cmd.Flags(), &opts)

	return cmd
}
