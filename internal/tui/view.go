package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current state of the model.
func (m Model) View() string {
	header := titleStyle.Render(m.operator)
	if m.taskID != "" {
		header = fmt.Sprintf("%s %s", header, skippedStyle.Render("("+m.taskID+")"))
	}

	var status string
	switch {
	case m.cancelled:
		status = fmt.Sprintf("%s interrupted while waiting for %s", StatusIcon(statusCancelled), m.target)
	case m.finished && m.met:
		status = fmt.Sprintf("%s %s is available", StatusIcon(statusMet), m.target)
	case m.finished:
		status = fmt.Sprintf("%s gave up waiting for %s", StatusIcon(statusNotMet), m.target)
	default:
		status = fmt.Sprintf("%s waiting for %s", m.spinner.View(), m.target)
		if m.attempts > 0 {
			status += pendingStyle.Render(fmt.Sprintf(" · %s, next poke in %s", pokes(m.attempts), m.next))
		}
	}

	lines := []string{header, status}
	if !m.finished {
		lines = append(lines, hintStyle.Render("ctrl+c to stop"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

const (
	statusMet       = "met"
	statusNotMet    = "not_met"
	statusCancelled = "cancelled"
	statusWaiting   = "waiting"
)

// StatusIcon returns the glyph representing a wait status.
func StatusIcon(status string) string {
	switch status {
	case statusMet:
		return successStyle.Render("✓")
	case statusNotMet:
		return failureStyle.Render("✗")
	case statusCancelled:
		return skippedStyle.Render("⊘")
	case statusWaiting:
		return runningStyle.Render("⏳")
	default:
		return pendingStyle.Render("…")
	}
}

func pokes(n int) string {
	if n == 1 {
		return "1 poke"
	}
	return fmt.Sprintf("%d pokes", n)
}
