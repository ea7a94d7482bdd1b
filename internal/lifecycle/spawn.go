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
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrLaunchFailed is returned when the server process could not be started
// or its PID could not be recorded.
var ErrLaunchFailed = errors.New("failed to launch server")

// LaunchSpec describes one launch of the supervised server.
type LaunchSpec struct {
	// Entry is the executable to run.
	Entry string

	// Args are passed to Entry as-is.
	Args []string

	// Env is the complete child environment. Nil inherits os.Environ().
	Env []string

	// Dir is the working directory. Empty uses the current directory.
	Dir string

	// Foreground runs the server attached to the invoking terminal with
	// inherited stdio instead of detaching it.
	Foreground bool
}

// Launcher starts the supervised server.
//
// After a successful background launch the server's PID has been written to
// the PID file. Foreground launches never touch the PID file. Launchers do
// not retry and do not clean up after a partial failure.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (*Handle, error)
}

// Handle refers to a launched server process.
type Handle struct {
	PID        int
	Foreground bool

	wait func() error
}

// Wait blocks until a foreground process exits. Detached processes are not
// tracked after launch, so Wait returns nil for them immediately.
func (h *Handle) Wait() error {
	if h == nil || h.wait == nil {
		return nil
	}
	return h.wait()
}

// Spawner launches the server either detached in the background, with output
// appended to a log file, or attached in the foreground.
type Spawner struct {
	// PIDFile receives the PID after a background launch.
	PIDFile *PIDFile

	// LogPath receives stdout and stderr of background launches.
	LogPath string

	// Stdio for foreground launches. Defaults to the invoking process.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewSpawner creates a process spawner that records background launches in
// pidFile and appends their output to logPath.
func NewSpawner(pidFile *PIDFile, logPath string) *Spawner {
	return &Spawner{
		PIDFile: pidFile,
		LogPath: logPath,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Launch implements Launcher.
func (s *Spawner) Launch(ctx context.Context, spec LaunchSpec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Env == nil {
		spec.Env = os.Environ()
	}

	if spec.Foreground {
		return s.launchForeground(spec)
	}
	return s.launchBackground(spec)
}

func (s *Spawner) launchForeground(spec LaunchSpec) (*Handle, error) {
	// Not CommandContext: cancelling the caller must not kill the server.
	cmd := exec.Command(spec.Entry, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	cmd.Stdin = s.Stdin
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	return &Handle{
		PID:        cmd.Process.Pid,
		Foreground: true,
		wait:       cmd.Wait,
	}, nil
}

func (s *Spawner) launchBackground(spec LaunchSpec) (*Handle, error) {
	pid, err := s.SpawnDetached(spec.Entry, spec.Args, spec.Env, spec.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	handle := &Handle{PID: pid}
	if s.PIDFile == nil {
		return handle, nil
	}

	// The server is already running; the PID file is left as written.
	if err := s.PIDFile.Write(pid); err != nil {
		return handle, fmt.Errorf("%w: server started (PID %d) but PID was not recorded: %w", ErrLaunchFailed, pid, err)
	}

	return handle, nil
}

// SpawnDetached spawns a detached background process.
// The process:
// - Runs in a new session and process group (not killed when the parent exits)
// - Has stdin closed, stdout/stderr appended to LogPath
//
// Returns the PID of the spawned process.
func (s *Spawner) SpawnDetached(binary string, args, env []string, dir string) (int, error) {
	logDir := filepath.Dir(s.LogPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(s.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(binary, args...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid

	// Don't wait; the process is detached.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("process started but failed to release: %w", err)
	}

	return pid, nil
}
