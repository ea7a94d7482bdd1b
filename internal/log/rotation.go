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

package log

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig sizes a rotating log file.
type RotationConfig struct {
	File      string
	MaxSizeMB int
	MaxFiles  int
}

// NewRotatingWriter opens a size-rotated log file. Defaults: 10 MB per file,
// 5 backups.
func NewRotatingWriter(cfg RotationConfig) (*lumberjack.Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("rotation file path must not be empty")
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   false,
	}, nil
}
