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

//go:build unix

package lifecycle

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// IsAlive sends signal 0 to pid. ESRCH and EPERM both count as not alive.
func (SignalProbe) IsAlive(pid int) bool {
	// kill(2) treats 0 and negative values as process groups.
	if !validPID(pid) {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Terminate sends SIGTERM to pid.
func (SignalProbe) Terminate(pid int) error {
	if !validPID(pid) {
		return fmt.Errorf("%w: invalid PID %d", ErrNotAlive, pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}
	return nil
}
