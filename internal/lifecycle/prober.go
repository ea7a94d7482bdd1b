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
	"fmt"
)

// RunningInstance is a point-in-time view of the supervised instance.
type RunningInstance struct {
	PID   int
	Alive bool
}

// Prober determines whether the instance named by the PID file is alive.
type Prober struct {
	pidFile *PIDFile
	probe   ProcessProbe
}

// NewProber creates a prober for pidFile. A nil probe uses SignalProbe.
func NewProber(pidFile *PIDFile, probe ProcessProbe) *Prober {
	if probe == nil {
		probe = SignalProbe{}
	}
	return &Prober{
		pidFile: pidFile,
		probe:   probe,
	}
}

// Probe reads the PID file and checks the recorded process.
//
// It returns ErrNoPIDFile when the file cannot be read and ErrNotAlive when
// the recorded PID is out of range or the process cannot be signalled. In the
// ErrNotAlive case the returned instance still carries the PID that was
// read. Every failure means "not running"; none of them is fatal.
func (p *Prober) Probe() (RunningInstance, error) {
	pid, err := p.pidFile.Read()
	if err != nil {
		return RunningInstance{}, err
	}

	inst := RunningInstance{PID: pid}
	if !validPID(pid) {
		return inst, fmt.Errorf("%w: no valid PID in %s", ErrNotAlive, p.pidFile.Path())
	}

	if !p.probe.IsAlive(pid) {
		return inst, fmt.Errorf("%w: PID %d", ErrNotAlive, pid)
	}

	inst.Alive = true
	return inst, nil
}
