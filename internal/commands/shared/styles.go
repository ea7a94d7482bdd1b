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
	"github.com/charmbracelet/lipgloss"
)

// CLI style colors using lipgloss
var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators and the Ctrl-C hint
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles process ids
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("51")) // cyan

	// Muted styles secondary/less important text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Command styles a command the user can type
	Command = lipgloss.NewStyle().Foreground(lipgloss.Color("226")) // yellow
)

// Symbols for status indicators
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
)

// Styler renders styled text, or plain text when styling is off.
type Styler struct {
	Enabled bool
}

// Render applies style to text when styling is enabled.
func (s Styler) Render(style lipgloss.Style, text string) string {
	if !s.Enabled {
		return text
	}
	return style.Render(text)
}

// OK renders a success message with a green checkmark.
func (s Styler) OK(msg string) string {
	return s.Render(StatusOK, SymbolOK) + " " + msg
}

// Warn renders a warning message with an orange symbol.
func (s Styler) Warn(msg string) string {
	return s.Render(StatusWarn, SymbolWarn) + " " + msg
}

// Error renders an error message with a red X.
func (s Styler) Error(msg string) string {
	return s.Render(StatusError, SymbolError) + " " + msg
}

// Label renders a dim label (for key: value pairs).
func (s Styler) Label(label string) string {
	return s.Render(Muted, label)
}
