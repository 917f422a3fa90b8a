package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// TERMINAL STYLES
// =============================================================================

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	scoreStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("120")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))
)

// rule prints a horizontal divider.
func rule() string {
	return dimStyle.Render(strings.Repeat("─", 60))
}

// truncate shortens s for single-line display.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// fmtScore renders a fused score with two decimals.
func fmtScore(score float64) string {
	return scoreStyle.Render(fmt.Sprintf("%.2f", score))
}
