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

/*
Package cli provides the root command and global flags for servectl.

Individual commands are implemented in the internal/commands subpackages and
registered by main:

	servectl
	├── start     Start the server in the background
	├── stop      Stop the running server
	├── restart   Restart the running server
	├── status    Show whether the server is running
	├── log       Follow the server output
	├── version   Show version
	└── help      Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable debug logging
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file
*/
package cli
