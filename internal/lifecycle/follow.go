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
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/servectl/internal/log"
)

// Follower streams a growing log file to the invoking terminal until the
// context is cancelled.
type Follower interface {
	Follow(ctx context.Context, path string) error
}

// NewFollower returns a TailFollower when tail(1) is available and a
// WatchFollower otherwise.
func NewFollower(dir string, stdout, stderr io.Writer) Follower {
	if _, err := exec.LookPath("tail"); err == nil {
		return &TailFollower{Dir: dir, Stdout: stdout, Stderr: stderr}
	}
	return &WatchFollower{Dir: dir, Out: stdout}
}

// TailFollower runs `tail -F` with the caller's stdout and stderr.
type TailFollower struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Follow implements Follower.
func (f *TailFollower) Follow(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "tail", "-F", path)
	cmd.Dir = f.Dir
	cmd.Stdout = f.Stdout
	cmd.Stderr = f.Stderr

	if err := cmd.Run(); err != nil {
		// Interrupted by the caller, which is the normal way out.
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tail %s: %w", path, err)
	}
	return nil
}

// WatchFollower follows a file natively. It starts at the end of the file,
// copies appended bytes to Out, starts over when the file is truncated and
// reopens it when it is replaced, like `tail -F`.
type WatchFollower struct {
	Dir    string
	Out    io.Writer
	Logger *slog.Logger

	// ready is called once the watch is in place.
	ready func()
}

// Follow implements Follower.
func (f *WatchFollower) Follow(ctx context.Context, path string) error {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !filepath.IsAbs(path) && f.Dir != "" {
		path = filepath.Join(f.Dir, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	logger = log.WithComponent(logger, "follower").With(slog.String("path", path))

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory so rotation and late creation are seen.
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	t := &tailState{path: path, out: f.Out}
	defer t.close()

	if err := t.open(io.SeekEnd); err != nil {
		logger.Debug("log file not available yet", "error", err)
	}

	if f.ready != nil {
		f.ready()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			f.handleEvent(t, event, logger)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

func (f *WatchFollower) handleEvent(t *tailState, event fsnotify.Event, logger *slog.Logger) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Drain what was written before the file went away.
		if err := t.copy(); err != nil {
			logger.Debug("failed to drain log file", "error", err)
		}
		t.close()
	case event.Has(fsnotify.Create):
		t.close()
		if err := t.open(io.SeekStart); err != nil {
			logger.Debug("failed to open recreated log file", "error", err)
			return
		}
		if err := t.copy(); err != nil {
			logger.Warn("failed to read log file", "error", err)
		}
	case event.Has(fsnotify.Write):
		if t.file == nil {
			if err := t.open(io.SeekStart); err != nil {
				logger.Debug("failed to open log file", "error", err)
				return
			}
		}
		if err := t.copy(); err != nil {
			logger.Warn("failed to read log file", "error", err)
		}
	}
}

// tailState is the open file and read position of a WatchFollower.
type tailState struct {
	path string
	out  io.Writer
	file *os.File
}

func (t *tailState) open(whence int) error {
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	if _, err := file.Seek(0, whence); err != nil {
		file.Close()
		return err
	}
	t.file = file
	return nil
}

func (t *tailState) copy() error {
	if t.file == nil {
		return nil
	}

	pos, err := t.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	info, err := t.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < pos {
		// Truncated in place
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	if _, err := io.Copy(t.out, t.file); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (t *tailState) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}
