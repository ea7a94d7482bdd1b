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
	"errors"
	"fmt"
	"os"
	"math"
	"path/filepath"
	"strconv"
)

var (
	// ErrNoPIDFile is returned when the PID file cannot be read. The
	// underlying cause is wrapped alongside it.
	ErrNoPIDFile = errors.New("PID file not readable")

	// ErrUnsafeDirectory is returned when the PID file parent is world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")
)

// PIDFile reads and writes the PID file of the supervised server.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PIDFile for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{
		path: path,
	}
}

// Path returns the location of the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Read returns the PID recorded in the file.
// Any read failure (missing file, permission denied, I/O error) is returned
// as ErrNoPIDFile wrapping the cause. Content that does not start with a
// number yields 0 with a nil error; callers must treat non-positive PIDs as
// not running.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoPIDFile, err)
	}
	return ParsePID(data), nil
}

// Write records pid in the file, replacing any previous content.
// The new content is written to a temporary file and renamed into place so
// readers never observe a partial PID.
func (p *PIDFile) Write(pid int) error {
	parentDir := filepath.Dir(p.path)
	if err := verifyDirectorySafety(parentDir); err != nil {
		return fmt.Errorf("unsafe PID file location: %w", err)
	}

	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	tmp, err := os.CreateTemp(parentDir, "."+filepath.Base(p.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write PID: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync PID file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close PID file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set PID file permissions: %w", err)
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install PID file: %w", err)
	}

	return nil
}

// ParsePID extracts the leading integer from PID file content.
// Leading whitespace and a single sign are accepted, and parsing stops at the
// first non-digit. Content without digits, or a value larger than a 32-bit
// pid_t, yields 0.
func ParsePID(data []byte) int {
	i := 0
	for i < len(data) && isSpace(data[i]) {
		i++
	}

	start := i
	if i < len(data) && (data[i] == '-' || data[i] == '+') {
		i++
	}

	digits := i
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	if i == digits {
		return 0
	}

	pid, err := strconv.ParseInt(string(data[start:i]), 10, 64)
	if err != nil || pid > math.MaxInt32 {
		return 0
	}
	return int(pid)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// verifyDirectorySafety checks that the directory is not world-writable.
// A world-writable parent lets another user swap the PID file for one that
// names a process they want us to signal.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		// Created later with 0700
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	// Sticky directories such as /tmp only let owners replace entries.
	mode := info.Mode()
	if mode&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}

	return nil
}
