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

// Package server implements the start, stop, restart, status and log
// commands for the supervised server.
package server

import (
	"github.com/spf13/cobra"
)

// NewCommands returns the lifecycle commands, registered at the top level of
// the CLI.
func NewCommands() []*cobra.Command {
	cmds := []*cobra.Command{
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewStatusCommand(),
		NewLogCommand(),
	}
	for _, cmd := range cmds {
		if cmd.Annotations == nil {
			cmd.Annotations = map[string]string{}
		}
		cmd.Annotations["group"] = "lifecycle"
	}
	return cmds
}
