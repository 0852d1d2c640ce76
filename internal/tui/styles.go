package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

// Title renders a command banner such as "Executing BashOperator".
func Title(s string) string { return titleStyle.Render(s) }

// Success renders a message reporting a met condition or finished task.
func Success(s string) string { return successStyle.Render(s) }

// Failure renders a message reporting an unmet condition or failed task.
func Failure(s string) string { return failureStyle.Render(s) }

// Muted renders secondary output such as section separators.
func Muted(s string) string { return skippedStyle.Render(s) }
