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

//go:build !unix

package lifecycle

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// IsAlive queries the process table; there is no signal 0 on this platform.
func (SignalProbe) IsAlive(pid int) bool {
	if !validPID(pid) {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Terminate ends pid. Without POSIX signals this is the closest equivalent
// to SIGTERM.
func (SignalProbe) Terminate(pid int) error {
	if !validPID(pid) {
		return fmt.Errorf("%w: invalid PID %d", ErrNotAlive, pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", pid, err)
	}
	return nil
}
