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
Package lifecycle supervises a single background server instance tracked by a
PID file.

The package answers one question for every operation: is the instance named
by the PID file alive right now? The answer is computed on demand and never
cached, because the process may crash, be killed externally, or have its PID
reused between calls.

# PID File

The PID file holds a decimal process ID. Only the leading digit run is
meaningful; anything after it is ignored and content without digits parses
to 0, which is never alive:

	pidFile := lifecycle.NewPIDFile("/var/run/server.pid")
	pid, err := pidFile.Read()
	if errors.Is(err, lifecycle.ErrNoPIDFile) {
	    // not running
	}

The launcher writes the file after a background start. Nothing in this
package removes it; a stale file is detected by probing, not by absence.

# Liveness

	prober := lifecycle.NewProber(pidFile, lifecycle.SignalProbe{})
	inst, err := prober.Probe()
	if err != nil {
	    // ErrNoPIDFile or ErrNotAlive: treat as stopped
	}

SignalProbe sends signal 0, which checks existence and permission without
touching the target. A process owned by another user counts as not alive.

# Controller

Controller composes the prober, a Launcher, a Signaler and a Follower into
start, stop, restart, status and log:

	ctrl := lifecycle.NewController(server, lifecycle.ControllerOptions{
	    PIDFile: pidFile,
	    Console: console,
	})
	if _, err := ctrl.Stop(ctx); err != nil {
	    // only context cancellation ends up here
	}

Stop sends a single SIGTERM and returns without waiting. Restart sends
SIGTERM and launches the replacement immediately, so the old instance may
still be exiting when the new one starts.

# Lifecycle Logging

Every operation is recorded as a JSON line for audit purposes:

	events := lifecycle.NewLifecycleLogger(w)
	events.LogStop(pid)
*/
package lifecycle
