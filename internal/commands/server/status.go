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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/servectl/internal/commands/shared"
	"github.com/tombee/servectl/internal/lifecycle"
)

// statusResponse is the --json form of status.
type statusResponse struct {
	shared.JSONResponse
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	StalePID  int        `json:"stale_pid,omitempty"`
	Cmdline   string     `json:"cmdline,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	PIDFile   string     `json:"pid_file"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is running",
		Long: `Check the PID file and report whether the recorded server is alive.

Not running is a normal outcome and exits with status 0.`,
		Example: `  # Human-readable status
  servectl status

  # Machine-readable status
  servectl status --json | jq -r '.pid'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON := shared.GetJSON()
			err := run(cmd, asJSON, func(e *env) error {
				result, err := e.ctrl.Status(cmd.Context())
				if err != nil || !asJSON {
					return err
				}
				return shared.EmitJSON(cmd.OutOrStdout(), newStatusResponse(result, e.cfg.Server.PIDFile))
			})
			// Scripts reading --json still get an envelope on failure.
			if err != nil && asJSON {
				if jerr := shared.EmitJSONError(cmd.OutOrStdout(), "status", []shared.JSONError{shared.NewJSONError(err)}); jerr != nil {
					return jerr
				}
			}
			return err
		},
	}
}

func newStatusResponse(result lifecycle.StatusResult, pidFile string) statusResponse {
	resp := statusResponse{
		JSONResponse: shared.NewJSONResponse("status"),
		Running:      result.Instance.Alive,
		PIDFile:      pidFile,
	}

	if !result.Instance.Alive {
		resp.StalePID = max(result.Instance.PID, 0)
		return resp
	}

	resp.PID = result.Instance.PID
	if info := result.Info; info != nil {
		resp.Cmdline = info.Command
		if !info.StartedAt.IsZero() {
			started := info.StartedAt.UTC()
			resp.StartedAt = &started
		}
	}
	return resp
}
