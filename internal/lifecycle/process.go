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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotAlive is returned when the PID file names a process that does not
// exist or cannot be signalled.
var ErrNotAlive = errors.New("process not alive")

// ProcessProbe reports whether a process ID refers to a live process the
// caller may signal.
type ProcessProbe interface {
	IsAlive(pid int) bool
}

// Signaler requests a graceful shutdown of a process.
type Signaler interface {
	Terminate(pid int) error
}

// SignalProbe implements ProcessProbe and Signaler with OS signals.
// IsAlive sends signal 0; Terminate sends SIGTERM. PIDs outside the range
// of pid_t are rejected before any signal is sent.
type SignalProbe struct{}

// validPID reports whether pid can name a single process. The kernel
// truncates pid_t to 32 bits, so 4294967296 would become 0 (our own process
// group) and 4294967297 would become init.
func validPID(pid int) bool {
	return pid > 0 && pid <= math.MaxInt32
}

// IsProcessRunning checks if a process with the given PID exists and can be
// signalled by the current user.
func IsProcessRunning(pid int) bool {
	return SignalProbe{}.IsAlive(pid)
}

// ProcessInfo contains information about a running process.
type ProcessInfo struct {
	PID       int
	Command   string
	StartedAt time.Time
}

// GetProcessInfo looks up the command line and start time of pid.
// Fields that cannot be read are left empty.
func GetProcessInfo(ctx context.Context, pid int) (*ProcessInfo, error) {
	if !validPID(pid) {
		return nil, fmt.Errorf("%w: invalid PID %d", ErrNotAlive, pid)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	info := &ProcessInfo{PID: pid}
	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil {
		info.Command = cmdline
	}
	if created, err := proc.CreateTimeWithContext(ctx); err == nil && created > 0 {
		info.StartedAt = time.UnixMilli(created)
	}

	return info, nil
}
