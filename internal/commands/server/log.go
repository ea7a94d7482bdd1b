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

// NewLogCommand creates the log command.
func NewLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Follow the server output",
		Long: `Follow the server output log from its current end until interrupted.

The follower survives log rotation and waits for the file to appear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, false, func(e *env) error {
				return e.ctrl.Log(cmd.Context())
			})
		},
	}
}
