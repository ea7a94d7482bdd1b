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

package shared

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tombee/servectl/internal/lifecycle"
)

// Console prints lifecycle outcomes for a human. It implements
// lifecycle.Console.
type Console struct {
	out    io.Writer
	errOut io.Writer
	name   string
	cmd    string
	quiet  bool
	style  Styler
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithQuiet suppresses everything except warnings.
func WithQuiet(quiet bool) ConsoleOption {
	return func(c *Console) { c.quiet = quiet }
}

// WithStyling forces styling on or off, overriding terminal detection.
func WithStyling(enabled bool) ConsoleOption {
	return func(c *Console) { c.style.Enabled = enabled }
}

// NewConsole creates a console that names the server name in messages and
// cmd in hints ("servectl stop"). Styling is on only when out is a terminal
// and NO_COLOR is unset.
func NewConsole(out, errOut io.Writer, name, cmd string, opts ...ConsoleOption) *Console {
	c := &Console{
		out:    out,
		errOut: errOut,
		name:   name,
		cmd:    cmd,
		style:  Styler{Enabled: IsTerminal(out) && os.Getenv("NO_COLOR") == ""},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var _ lifecycle.Console = (*Console)(nil)

// StartBanner prints the banner for a background start. The logging banner
// wins over Silent.
func (c *Console) StartBanner(opts lifecycle.StartOptions) {
	switch {
	case opts.Log:
		c.println("",
			c.style.Render(Bold, "Starting "+c.name+" with logging output"),
			c.ctrlC(),
			"The "+c.name+" process will continue to run in the background",
			"Use "+c.hint("stop")+" to stop the "+c.name+" server",
		)
	case !opts.Silent:
		c.println("",
			c.style.Render(Bold, "Starting "+c.name),
			"  "+c.hint("stop")+" to stop the "+c.name+" server",
			"  "+c.hint("log")+" to view server output",
			"  "+c.hint("help")+" for more commands",
			"",
		)
	}
}

// Stopping confirms the termination signal was sent.
func (c *Console) Stopping(int) {
	c.println("Stopping " + c.name + ". Goodbye!")
}

// AlreadyStopped reports that there was nothing to stop.
func (c *Console) AlreadyStopped() {
	c.println(c.name + " is already stopped.")
}

// Restarting announces a restart.
func (c *Console) Restarting(int) {
	c.println("", c.style.Render(Bold, "Restarting "+c.name))
}

// RestartFailed warns that no instance was found. It is printed even when
// the console is quiet.
func (c *Console) RestartFailed() {
	fmt.Fprintln(c.errOut, c.style.Warn(c.name+" could not be restarted, as a running instance could not be found."))
}

// Running prints the live pid, process details when known, and hints.
func (c *Console) Running(inst lifecycle.RunningInstance, info *lifecycle.ProcessInfo) {
	lines := []string{
		"",
		c.style.Render(Bold, c.name+" Running ") + c.style.Render(StatusInfo, fmt.Sprintf("(pid %d)", inst.PID)),
	}
	if info != nil {
		if info.Command != "" {
			lines = append(lines, "\t"+c.style.Label("command: ")+info.Command)
		}
		if !info.StartedAt.IsZero() {
			lines = append(lines, "\t"+c.style.Label("started: ")+info.StartedAt.Format(time.RFC3339))
		}
	}
	lines = append(lines,
		"\t"+c.hint("stop")+" to stop the "+c.name+" server",
		"\t"+c.hint("log")+" to view server output",
		"\t"+c.hint("restart")+" to restart "+c.name,
		"",
	)
	c.println(lines...)
}

// NotRunning reports a missing or stale instance.
func (c *Console) NotRunning() {
	c.println(
		"",
		c.style.Render(Bold, c.name+" is not running"),
		"\t"+c.hint("start")+" to launch the "+c.name+" server",
		"",
	)
}

// FollowHint tells the user how to stop following the log.
func (c *Console) FollowHint() {
	c.println("", c.ctrlC(), "")
}

func (c *Console) ctrlC() string {
	return c.style.Render(StatusError, "Hit ") + c.style.Render(Bold, "Ctrl-C ") + c.style.Render(StatusError, "to exit")
}

func (c *Console) hint(sub string) string {
	return `"` + c.style.Render(Command, c.cmd+" "+sub) + `"`
}

func (c *Console) println(lines ...string) {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.out, strings.Join(lines, "\n"))
}
