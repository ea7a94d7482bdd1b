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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/servectl/internal/cli"
	"github.com/tombee/servectl/internal/commands/shared"
	"github.com/tombee/servectl/internal/lifecycle"
)

type testEnv struct {
	dir        string
	configPath string
	pidFile    string
	eventLog   string
}

// newTestEnv writes a config supervising "sleep 30" and isolates every
// path servectl touches under a temp directory.
func newTestEnv(t *testing.T, entry string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	for _, key := range []string{
		"SERVECTL_ENTRY", "SERVECTL_WORKDIR", "SERVECTL_PID_FILE", "SERVECTL_OUTPUT_LOG",
		"SERVECTL_LIFECYCLE_LOG", "SERVECTL_LOG_FILE", "SERVECTL_DEBUG", "SERVECTL_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "servectl.yaml"),
		pidFile:    filepath.Join(dir, "run", "srv.pid"),
		eventLog:   filepath.Join(dir, "lifecycle.log"),
	}

	content := "server:\n" +
		"  name: srv\n" +
		"  entry: " + entry + "\n" +
		"  args: [\"30\"]\n" +
		"  workdir: " + dir + "\n" +
		"  pid_file: run/srv.pid\n" +
		"  output_log: logs/output.log\n" +
		"lifecycle:\n" +
		"  event_log: lifecycle.log\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0600))

	return env
}

func (e *testEnv) execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	defer shared.ResetFlagsForTest("")

	root := cli.NewRootCommand()
	for _, cmd := range NewCommands() {
		root.AddCommand(cmd)
	}

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) writePID(t *testing.T, pid int) {
	t.Helper()
	require.NoError(t, lifecycle.NewPIDFile(e.pidFile).Write(pid))
}

func (e *testEnv) events(t *testing.T) []lifecycle.LifecycleEvent {
	t.Helper()
	data, err := os.ReadFile(e.eventLog)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var events []lifecycle.LifecycleEvent
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev lifecycle.LifecycleEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	return events
}

// startSleeper runs a process the test owns, standing in for a server.
func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
		}
		t.Fatalf("start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func waitExited(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after SIGTERM")
	}
}

func killRecorded(t *testing.T, pidFile string) {
	t.Helper()
	pid, err := lifecycle.NewPIDFile(pidFile).Read()
	if err == nil && pid > 0 {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

func TestStatus_NotRunning(t *testing.T) {
	env := newTestEnv(t, "sleep")

	stdout, _, err := env.execute(t, "status")
	require.NoError(t, err)

	assert.Contains(t, stdout, "srv is not running")
	assert.Contains(t, stdout, `"servectl start" to launch the srv server`)
	assert.NoFileExists(t, env.pidFile)
}

func TestStatus_StalePIDLeftInPlace(t *testing.T) {
	env := newTestEnv(t, "sleep")
	sleeper := startSleeper(t)
	pid := sleeper.Process.Pid
	require.NoError(t, sleeper.Process.Kill())
	_ = sleeper.Wait()
	env.writePID(t, pid)

	stdout, _, err := env.execute(t, "status", "--json")
	require.NoError(t, err)

	var resp statusResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.False(t, resp.Running)
	assert.Equal(t, pid, resp.StalePID)
	assert.Equal(t, env.pidFile, resp.PIDFile)
	assert.FileExists(t, env.pidFile)

	events := env.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "stale_pid_detected", events[0].Event)
}

func TestStatus_Running(t *testing.T) {
	env := newTestEnv(t, "sleep")
	sleeper := startSleeper(t)
	env.writePID(t, sleeper.Process.Pid)

	stdout, _, err := env.execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "srv Running (pid "+strconv.Itoa(sleeper.Process.Pid)+")")
	assert.Contains(t, stdout, `"servectl restart" to restart srv`)

	stdout, _, err = env.execute(t, "status", "--json")
	require.NoError(t, err)

	var resp statusResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.True(t, resp.Running)
	assert.True(t, resp.Success)
	assert.Equal(t, sleeper.Process.Pid, resp.PID)
	assert.Zero(t, resp.StalePID)
}

func TestStop_SignalsOnce(t *testing.T) {
	env := newTestEnv(t, "sleep")
	sleeper := startSleeper(t)
	env.writePID(t, sleeper.Process.Pid)

	stdout, _, err := env.execute(t, "stop")
	require.NoError(t, err)
	assert.Equal(t, "Stopping srv. Goodbye!\n", stdout)

	waitExited(t, sleeper)
	assert.FileExists(t, env.pidFile, "stop never removes the PID file")

	events := env.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "stop", events[0].Event)
	assert.Equal(t, sleeper.Process.Pid, events[0].PID)
	assert.NotEmpty(t, events[0].CorrelationID)
}

func TestStop_AlreadyStopped(t *testing.T) {
	env := newTestEnv(t, "sleep")

	stdout, _, err := env.execute(t, "stop")
	require.NoError(t, err)
	assert.Equal(t, "srv is already stopped.\n", stdout)
}

func TestStop_Quiet(t *testing.T) {
	env := newTestEnv(t, "sleep")

	stdout, _, err := env.execute(t, "stop", "--quiet")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRestart_NoRunningInstance(t *testing.T) {
	env := newTestEnv(t, "sleep")

	stdout, stderr, err := env.execute(t, "restart")
	require.Error(t, err)

	assert.Equal(t, shared.ExitNotRunning, shared.ExitCode(err))
	assert.ErrorIs(t, err, lifecycle.ErrNoRunningInstance)
	assert.Contains(t, stderr, "srv could not be restarted, as a running instance could not be found.")
	assert.NotContains(t, stdout, "Starting")
	assert.NoFileExists(t, env.pidFile, "nothing is launched")
}

func TestStart_Background(t *testing.T) {
	env := newTestEnv(t, "sleep")
	t.Cleanup(func() { killRecorded(t, env.pidFile) })

	stdout, _, err := env.execute(t, "start")
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
		}
		t.Fatalf("start: %v", err)
	}

	assert.Contains(t, stdout, "Starting srv")
	assert.Contains(t, stdout, `"servectl log" to view server output`)

	pid, err := lifecycle.NewPIDFile(env.pidFile).Read()
	require.NoError(t, err)
	assert.True(t, lifecycle.IsProcessRunning(pid))

	events := env.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, pid, events[0].PID)
}

func TestStart_SilentAndPassThrough(t *testing.T) {
	env := newTestEnv(t, "sleep")
	t.Cleanup(func() { killRecorded(t, env.pidFile) })

	stdout, _, err := env.execute(t, "start", "--silent", "--", "5")
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
		}
		t.Fatalf("start: %v", err)
	}
	assert.Empty(t, stdout)

	// sleep accepts several durations and sums them.
	pid, err := lifecycle.NewPIDFile(env.pidFile).Read()
	require.NoError(t, err)
	info, err := lifecycle.GetProcessInfo(context.Background(), pid)
	if err == nil {
		assert.Contains(t, info.Command, "sleep 30 5")
	}
}

func TestStart_LaunchFailure(t *testing.T) {
	env := newTestEnv(t, "/nonexistent/servectl-test-binary")

	_, _, err := env.execute(t, "start", "--silent")
	require.Error(t, err)

	assert.Equal(t, shared.ExitLaunchFailed, shared.ExitCode(err))
	assert.ErrorIs(t, err, lifecycle.ErrLaunchFailed)
	assert.NoFileExists(t, env.pidFile)

	events := env.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "start_failure", events[0].Event)
}

func TestRestart_ReplacesInstance(t *testing.T) {
	env := newTestEnv(t, "sleep")
	sleeper := startSleeper(t)
	env.writePID(t, sleeper.Process.Pid)
	t.Cleanup(func() { killRecorded(t, env.pidFile) })

	stdout, _, err := env.execute(t, "restart")
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
		}
		t.Fatalf("restart: %v", err)
	}

	assert.Contains(t, stdout, "Restarting srv")
	assert.NotContains(t, stdout, "Starting srv", "restart suppresses the banner")
	waitExited(t, sleeper)

	pid, err := lifecycle.NewPIDFile(env.pidFile).Read()
	require.NoError(t, err)
	assert.NotEqual(t, sleeper.Process.Pid, pid)

	var names []string
	for _, ev := range env.events(t) {
		names = append(names, ev.Event)
	}
	assert.Equal(t, []string{"restart", "start"}, names)
}

func TestStart_Dev(t *testing.T) {
	env := newTestEnv(t, "sh")

	// sh rejects --no-daemon, so the foreground run exits non-zero.
	_, _, err := env.execute(t, "start", "--dev")
	require.Error(t, err)
	if strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
	}

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.Code)
	assert.NoFileExists(t, env.pidFile, "dev mode never touches the PID file")
}

func TestMissingEntry(t *testing.T) {
	env := newTestEnv(t, "sleep")
	require.NoError(t, os.WriteFile(env.configPath, []byte("server:\n  args: [\"1\"]\n"), 0600))

	_, _, err := env.execute(t, "status")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestStatus_JSONConfigError(t *testing.T) {
	env := newTestEnv(t, "sleep")
	require.NoError(t, os.WriteFile(env.configPath, []byte("server:\n  args: [\"1\"]\n"), 0600))

	stdout, _, err := env.execute(t, "status", "--json")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))

	var resp struct {
		shared.JSONResponse
		Errors []shared.JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "status", resp.Command)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "invalid_config", resp.Errors[0].Code)
	assert.NotEmpty(t, resp.Errors[0].Suggestion)
}

func TestNewCommands(t *testing.T) {
	var names []string
	for _, cmd := range NewCommands() {
		names = append(names, cmd.Name())
		assert.Equal(t, "lifecycle", cmd.Annotations["group"])
	}
	assert.Equal(t, []string{"start", "stop", "restart", "status", "log"}, names)

	start := NewStartCommand()
	for _, flag := range []string{"dev", "log", "silent"} {
		assert.NotNil(t, start.Flags().Lookup(flag), flag)
	}
}
