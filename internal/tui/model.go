// Package tui draws a spinner on interactive terminals while a sensor waits
// for its condition, and holds the styles used for command output.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// PokeMsg reports an unmet poke and the delay before the next one.
type PokeMsg struct {
	TaskID  string
	Attempt int
	Next    time.Duration
}

// DoneMsg reports the end of a sensor's wait.
type DoneMsg struct {
	TaskID string
	Met    bool
}

// Model is the bubbletea model behind the sensor spinner.
type Model struct {
	spinner spinner.Model

	operator string
	target   string
	taskID   string

	attempts  int
	next      time.Duration
	finished  bool
	met       bool
	cancelled bool
}

// NewModel builds a model for operator waiting on target.
func NewModel(operator, target string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	return Model{
		spinner:  s,
		operator: operator,
		target:   target,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Attempts is the number of unmet pokes seen so far.
func (m Model) Attempts() int { return m.attempts }

// Finished reports whether the wait ended or was interrupted.
func (m Model) Finished() bool { return m.finished }

// Met reports whether the condition was met.
func (m Model) Met() bool { return m.met }

// Cancelled reports whether the user interrupted the wait.
func (m Model) Cancelled() bool { return m.cancelled }
