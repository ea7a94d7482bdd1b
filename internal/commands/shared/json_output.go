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
	"encoding/json"
	"io"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError represents a structured error with a message and suggestion
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewJSONResponse returns a successful envelope for command.
func NewJSONResponse(command string) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: true}
}

// EmitJSON marshals a response as indented JSON to w.
func EmitJSON(w io.Writer, response interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// NewJSONError describes err for a failed envelope. The code follows the
// exit code err maps to.
func NewJSONError(err error) JSONError {
	code := "failed"
	switch ExitCode(err) {
	case ExitInvalidConfig:
		code = "invalid_config"
	case ExitNotRunning:
		code = "not_running"
	case ExitLaunchFailed:
		code = "launch_failed"
	}
	return JSONError{
		Code:       code,
		Message:    err.Error(),
		Suggestion: suggestionFor(err),
	}
}

// EmitJSONError emits a failed envelope for command carrying errs.
func EmitJSONError(w io.Writer, command string, errs []JSONError) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}

	resp := errorResponse{
		JSONResponse: JSONResponse{
			Version: "1.0",
			Command: command,
			Success: false,
		},
		Errors: errs,
	}

	return EmitJSON(w, resp)
}
