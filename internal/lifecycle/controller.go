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
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/tombee/servectl/internal/log"
)

// ErrNoRunningInstance is returned by Restart when there is nothing to restart.
var ErrNoRunningInstance = errors.New("no running instance found")

// DevArgs are passed to the server in development mode.
var DevArgs = []string{"--no-daemon", "--no-silent"}

// StartOptions control a single start or restart.
type StartOptions struct {
	// Dev runs the server in the foreground with the development
	// environment. It takes precedence over Log and Silent.
	Dev bool

	// Log follows the server output after a background start.
	Log bool

	// Silent suppresses the start banner.
	Silent bool

	// Args are appended to the configured server arguments.
	Args []string
}

// ServerSpec describes the supervised server.
type ServerSpec struct {
	Entry     string
	Args      []string
	Dir       string
	OutputLog string

	// DevEnv overrides environment variables in development mode.
	DevEnv map[string]string
}

// Console renders operation outcomes for a human.
type Console interface {
	StartBanner(opts StartOptions)
	Stopping(pid int)
	AlreadyStopped()
	Restarting(pid int)
	RestartFailed()
	Running(inst RunningInstance, info *ProcessInfo)
	NotRunning()
	FollowHint()
}

// ControllerOptions wires the controller's collaborators. Only PIDFile is
// required; nil fields get defaults.
type ControllerOptions struct {
	PIDFile  *PIDFile
	Probe    ProcessProbe
	Signaler Signaler
	Launcher Launcher
	Follower Follower
	Console  Console
	Events   *LifecycleLogger
	Logger   *slog.Logger

	// Environ returns the invoking environment. Defaults to os.Environ.
	Environ func() []string

	// Inspect looks up details for Status. Defaults to GetProcessInfo.
	Inspect func(ctx context.Context, pid int) (*ProcessInfo, error)
}

// StopResult reports what Stop did.
type StopResult struct {
	PID      int
	Signaled bool
}

// StatusResult reports what Status found.
type StatusResult struct {
	Instance RunningInstance
	Info     *ProcessInfo
}

// Controller implements start, stop, restart, status and log for the
// supervised server.
type Controller struct {
	server   ServerSpec
	prober   *Prober
	signaler Signaler
	launcher Launcher
	follower Follower
	console  Console
	events   *LifecycleLogger
	logger   *slog.Logger
	environ  func() []string
	inspect  func(ctx context.Context, pid int) (*ProcessInfo, error)
}

// NewController creates a controller for server.
func NewController(server ServerSpec, opts ControllerOptions) *Controller {
	probe := opts.Probe
	if probe == nil {
		probe = SignalProbe{}
	}

	signaler := opts.Signaler
	if signaler == nil {
		signaler = SignalProbe{}
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = NewSpawner(opts.PIDFile, server.OutputLog)
	}

	follower := opts.Follower
	if follower == nil {
		follower = NewFollower(server.Dir, os.Stdout, os.Stderr)
	}

	console := opts.Console
	if console == nil {
		console = nopConsole{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}

	inspect := opts.Inspect
	if inspect == nil {
		inspect = GetProcessInfo
	}

	return &Controller{
		server:   server,
		prober:   NewProber(opts.PIDFile, probe),
		signaler: signaler,
		launcher: launcher,
		follower: follower,
		console:  console,
		events:   opts.Events,
		logger:   log.WithComponent(logger, "lifecycle"),
		environ:  environ,
		inspect:  inspect,
	}
}

// Start launches the server.
//
// In development mode the server runs in the foreground with DevArgs and the
// development environment; the PID file is neither read nor written and the
// returned handle can be waited on. Otherwise the banner is shown, the server
// is detached with the configured arguments followed by opts.Args, and with
// opts.Log the output is followed until ctx is cancelled.
//
// Start does not check for a running instance. Launch errors are returned
// unmodified.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*Handle, error) {
	if opts.Dev {
		return c.startDev(ctx)
	}

	c.console.StartBanner(opts)

	args := append(slices.Clone(c.server.Args), opts.Args...)
	handle, err := c.launcher.Launch(ctx, LaunchSpec{
		Entry: c.server.Entry,
		Args:  args,
		Env:   c.environ(),
		Dir:   c.server.Dir,
	})
	if err != nil {
		c.record(c.events.LogStartFailure(err))
		return handle, err
	}

	c.logger.Debug("server launched", slog.Int("pid", handle.PID), slog.Any("args", args))
	c.record(c.events.LogStart(handle.PID, args, false))

	if opts.Log {
		if err := c.follower.Follow(ctx, c.server.OutputLog); err != nil {
			return handle, err
		}
	}

	return handle, nil
}

func (c *Controller) startDev(ctx context.Context) (*Handle, error) {
	handle, err := c.launcher.Launch(ctx, LaunchSpec{
		Entry:      c.server.Entry,
		Args:       slices.Clone(DevArgs),
		Env:        mergeEnv(c.environ(), c.server.DevEnv),
		Dir:        c.server.Dir,
		Foreground: true,
	})
	if err != nil {
		c.record(c.events.LogStartFailure(err))
		return nil, err
	}

	c.logger.Debug("server launched in foreground", slog.Int("pid", handle.PID))
	c.record(c.events.LogStart(handle.PID, DevArgs, true))
	return handle, nil
}

// Stop sends a single termination signal to a live instance and returns
// without waiting for it to exit. A missing, stale or unsignalable instance
// is reported as already stopped; that is not an error.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	if err := ctx.Err(); err != nil {
		return StopResult{}, err
	}

	inst, err := c.readInstance()
	if err != nil {
		c.noteNotRunning(inst, err)
		c.console.AlreadyStopped()
		c.record(c.events.LogAlreadyStopped(inst.PID))
		return StopResult{PID: inst.PID}, nil
	}

	if err := c.signaler.Terminate(inst.PID); err != nil {
		c.logger.Debug("termination signal failed", slog.Int("pid", inst.PID), slog.Any("error", err))
		c.console.AlreadyStopped()
		c.record(c.events.LogAlreadyStopped(inst.PID))
		return StopResult{PID: inst.PID}, nil
	}

	c.console.Stopping(inst.PID)
	c.record(c.events.LogStop(inst.PID))
	return StopResult{PID: inst.PID, Signaled: true}, nil
}

// Restart signals a live instance and immediately starts a new one with the
// banner suppressed. It does not wait for the old process to exit. Without a
// live instance, or when the signal cannot be sent, nothing is launched and
// ErrNoRunningInstance is returned.
func (c *Controller) Restart(ctx context.Context, opts StartOptions) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inst, err := c.readInstance()
	if err != nil {
		c.noteNotRunning(inst, err)
		c.console.RestartFailed()
		c.record(c.events.LogRestartFailed(err))
		return nil, ErrNoRunningInstance
	}

	// The process may have exited since the liveness check, leaving nothing
	// to restart.
	if err := c.signaler.Terminate(inst.PID); err != nil {
		c.logger.Debug("termination signal failed", slog.Int("pid", inst.PID), slog.Any("error", err))
		c.console.RestartFailed()
		c.record(c.events.LogRestartFailed(err))
		return nil, ErrNoRunningInstance
	}

	c.console.Restarting(inst.PID)
	c.record(c.events.LogRestart(inst.PID))

	opts.Silent = true
	return c.Start(ctx, opts)
}

// Status reports whether the instance is running. Not running is a normal
// outcome, not an error.
func (c *Controller) Status(ctx context.Context) (StatusResult, error) {
	if err := ctx.Err(); err != nil {
		return StatusResult{}, err
	}

	inst, err := c.readInstance()
	if err != nil {
		c.noteNotRunning(inst, err)
		c.console.NotRunning()
		return StatusResult{Instance: inst}, nil
	}

	info, err := c.inspect(ctx, inst.PID)
	if err != nil {
		c.logger.Debug("process details unavailable", slog.Int("pid", inst.PID), slog.Any("error", err))
		info = nil
	}

	c.console.Running(inst, info)
	return StatusResult{Instance: inst, Info: info}, nil
}

// Log follows the server output until ctx is cancelled.
func (c *Controller) Log(ctx context.Context) error {
	c.console.FollowHint()
	return c.follower.Follow(ctx, c.server.OutputLog)
}

// readInstance reads the PID file and checks the recorded process.
func (c *Controller) readInstance() (RunningInstance, error) {
	inst, err := c.prober.Probe()
	log.Trace(c.logger, "checked PID file",
		slog.Int(log.PIDKey, inst.PID),
		slog.Bool("alive", inst.Alive),
	)
	return inst, err
}

// noteNotRunning records why a probe failed. A PID that was read but is not
// alive means the PID file is stale; the file is left in place.
func (c *Controller) noteNotRunning(inst RunningInstance, err error) {
	if errors.Is(err, ErrNotAlive) && inst.PID > 0 {
		c.logger.Debug("stale PID file", slog.Int("pid", inst.PID))
		c.record(c.events.LogStalePID(inst.PID, "process not running"))
		return
	}
	c.logger.Debug("server not running", slog.Any("error", err))
}

// record logs event log failures; they never change an outcome.
func (c *Controller) record(err error) {
	if err != nil {
		c.logger.Warn("failed to write lifecycle log", slog.Any("error", err))
	}
}

// mergeEnv returns env with overrides applied. Overridden keys are removed
// and re-added in sorted order at the end.
func mergeEnv(env []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return slices.Clone(env)
	}

	merged := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overrides[k])
	}

	return merged
}

type nopConsole struct{}

func (nopConsole) StartBanner(StartOptions) {}
func (nopConsole) Stopping(int) {}
func (nopConsole) AlreadyStopped() {}
func (nopConsole) Restarting(int) {}
func (nopConsole) RestartFailed() {}
func (nopConsole) Running(RunningInstance, *ProcessInfo) {}
func (nopConsole) NotRunning() {}
func (nopConsole) FollowHint() {}
