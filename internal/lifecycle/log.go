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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LifecycleEvent represents a lifecycle event (start, stop, etc.).
type LifecycleEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	Event         string            `json:"event"` // "start", "stop", "restart_failed", etc.
	CorrelationID string            `json:"correlation_id,omitempty"`
	PID           int               `json:"pid,omitempty"`
	Success       bool              `json:"success"`
	Message       string            `json:"message,omitempty"`
	Flags         map[string]string `json:"flags,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// LifecycleLogger appends lifecycle events as JSON lines to a writer.
// A nil *LifecycleLogger discards events.
type LifecycleLogger struct {
	mu            sync.Mutex
	w             io.Writer
	correlationID string
	now           func() time.Time
}

// NewLifecycleLogger creates a new lifecycle logger writing to w.
func NewLifecycleLogger(w io.Writer) *LifecycleLogger {
	return &LifecycleLogger{
		w:   w,
		now: time.Now,
	}
}

// WithCorrelationID stamps every subsequent event with id.
func (l *LifecycleLogger) WithCorrelationID(id string) *LifecycleLogger {
	if l != nil {
		l.correlationID = id
	}
	return l
}

// LogStart logs a server launch.
func (l *LifecycleLogger) LogStart(pid int, args []string, foreground bool) error {
	message := "Server started in background"
	if foreground {
		message = "Server started in foreground (development mode)"
	}
	return l.writeEvent(LifecycleEvent{
		Event:   "start",
		PID:     pid,
		Success: true,
		Message: message,
		Flags:   parseFlags(args),
	})
}

// LogStartFailure logs a failed launch.
func (l *LifecycleLogger) LogStartFailure(err error) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "start_failure",
		Success: false,
		Message: "Server failed to start",
		Error:   err.Error(),
	})
}

// LogStop logs that SIGTERM was sent to pid.
func (l *LifecycleLogger) LogStop(pid int) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "stop",
		PID:     pid,
		Success: true,
		Message: "Termination signal sent",
	})
}

// LogAlreadyStopped logs a stop request with nothing to stop.
func (l *LifecycleLogger) LogAlreadyStopped(pid int) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "already_stopped",
		PID:     pid,
		Success: true,
		Message: "Server already stopped",
	})
}

// LogRestart logs that pid was signalled ahead of a new launch.
func (l *LifecycleLogger) LogRestart(pid int) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "restart",
		PID:     pid,
		Success: true,
		Message: "Restart initiated",
	})
}

// LogRestartFailed logs a restart request with no running instance.
func (l *LifecycleLogger) LogRestartFailed(reason error) error {
	event := LifecycleEvent{
		Event:   "restart_failed",
		Success: false,
		Message: "No running instance to restart",
	}
	if reason != nil {
		event.Error = reason.Error()
	}
	return l.writeEvent(event)
}

// LogStalePID logs detection of a stale PID file.
func (l *LifecycleLogger) LogStalePID(pid int, reason string) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "stale_pid_detected",
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("Stale PID file detected: %s", reason),
	})
}

// writeEvent appends a lifecycle event to the log.
func (l *LifecycleLogger) writeEvent(event LifecycleEvent) error {
	if l == nil || l.w == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event.Timestamp = l.now()
	event.CorrelationID = l.correlationID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// parseFlags converts command-line arguments to a map of flags.
// This is a simple parser for logging purposes.
func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if !strings.HasPrefix(arg, "-") {
			continue
		}

		key := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}

		// Check if next arg is the value (not another flag)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags[key] = args[i+1]
			i++
		} else {
			flags[key] = "true"
		}
	}

	if len(flags) == 0 {
		return nil
	}
	return flags
}
