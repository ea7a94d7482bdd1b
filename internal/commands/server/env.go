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
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/servectl/internal/commands/shared"
	"github.com/tombee/servectl/internal/config"
	"github.com/tombee/servectl/internal/lifecycle"
	"github.com/tombee/servectl/internal/log"
)

// env is everything a command needs to drive the supervised server.
type env struct {
	cfg     *config.Config
	ctrl    *lifecycle.Controller
	logger  *slog.Logger
	closers []func() error
}

// Close releases log files opened by newEnv.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// newEnv loads configuration and wires a controller for one invocation.
// Every invocation gets a fresh correlation id shared by diagnostic logs
// and lifecycle events. quiet silences the console regardless of --quiet.
func newEnv(cmd *cobra.Command, quiet bool) (*env, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, err
	}

	logCfg := log.FromEnv()
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	logCfg.Output = cmd.ErrOrStderr()

	logger, closeLog, err := log.Open(logCfg)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	logger = log.WithCorrelationID(logger, correlationID)
	e := &env{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	var events *lifecycle.LifecycleLogger
	if cfg.Lifecycle.EventLogEnabled() {
		w, err := log.NewRotatingWriter(log.RotationConfig{
			File:      cfg.Lifecycle.EventLog,
			MaxSizeMB: cfg.Lifecycle.MaxSizeMB,
			MaxFiles:  cfg.Lifecycle.MaxBackups,
		})
		if err != nil {
			logger.Warn("lifecycle event log disabled", slog.String("path", cfg.Lifecycle.EventLog), log.Error(err))
		} else {
			events = lifecycle.NewLifecycleLogger(w).WithCorrelationID(correlationID)
			e.closers = append(e.closers, w.Close)
		}
	}

	console := shared.NewConsole(
		cmd.OutOrStdout(),
		cmd.ErrOrStderr(),
		cfg.Server.Name,
		cmd.Root().Name(),
		shared.WithQuiet(quiet || shared.GetQuiet()),
	)

	pidFile := lifecycle.NewPIDFile(cfg.Server.PIDFile)
	spawner := lifecycle.NewSpawner(pidFile, cfg.Server.OutputLog)
	spawner.Stdin = cmd.InOrStdin()
	spawner.Stdout = cmd.OutOrStdout()
	spawner.Stderr = cmd.ErrOrStderr()

	e.ctrl = lifecycle.NewController(lifecycle.ServerSpec{
		Entry:     cfg.Server.Entry,
		Args:      cfg.Server.Args,
		Dir:       cfg.Server.Workdir,
		OutputLog: cfg.Server.OutputLog,
		DevEnv:    cfg.Server.DevEnv,
	}, lifecycle.ControllerOptions{
		PIDFile:  pidFile,
		Launcher: spawner,
		Follower: lifecycle.NewFollower(cfg.Server.Workdir, cmd.OutOrStdout(), cmd.ErrOrStderr()),
		Console:  console,
		Events:   events,
		Logger:   logger,
	})

	logger.Debug("configuration loaded",
		slog.String("entry", cfg.Server.Entry),
		slog.String("pid_file", cfg.Server.PIDFile),
		slog.String("output_log", cfg.Server.OutputLog),
	)

	return e, nil
}

// run wires an env, calls fn and maps its error to an exit code.
func run(cmd *cobra.Command, quiet bool, fn func(e *env) error) error {
	e, err := newEnv(cmd, quiet)
	if err != nil {
		return shared.ClassifyError(err)
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			e.logger.Debug("closing logs", log.Error(cerr))
		}
	}()

	return shared.ClassifyError(fn(e))
}
