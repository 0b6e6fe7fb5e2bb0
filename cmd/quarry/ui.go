package main

import (
	"fmt"
	"io"
	"strings"

	"quarry/internal/config"
	"quarry/internal/relevance"
	"quarry/internal/search"

	"github.com/charmbracelet/lipgloss"
)

// Styles for command output. Colors come from the configured theme.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	matchStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func applyTheme(c *config.Config) {
	t := c.Theme
	titleStyle = titleStyle.Foreground(lipgloss.Color(t.Primary))
	matchStyle = matchStyle.Foreground(lipgloss.Color(t.Emphasis))
	successStyle = successStyle.Foreground(lipgloss.Color(t.Success))
	warningStyle = warningStyle.Foreground(lipgloss.Color(t.Warning))
	errorStyle = errorStyle.Foreground(lipgloss.Color(t.Error))
}

func titleText(s string) string   { return titleStyle.Render(s) }
func dimText(s string) string     { return dimStyle.Render(s) }
func successText(s string) string { return successStyle.Render(s) }
func warningText(s string) string { return warningStyle.Render(s) }
func errorText(s string) string   { return errorStyle.Render(s) }

// highlight marks the characters of s that matched query.
func highlight(s, query string) string {
	if query == "" {
		return s
	}
	return relevance.Highlight(s, query, func(m string) string { return matchStyle.Render(m) })
}

// describer is implemented by leaves that carry a secondary line.
type describer interface {
	Description() string
}

// printResult lists up to limit ranked objects.
func printResult(w io.Writer, title string, res *search.Result, limit int) {
	fmt.Fprintln(w, titleText(title))
	if res == nil || res.Len() == 0 {
		fmt.Fprintln(w, dimText("  no matches"))
		return
	}
	items := res.Take(limit)
	width := 0
	for _, r := range items {
		if n := len([]rune(r.Object.Name())); n > width {
			width = n
		}
	}
	for i, r := range items {
		name := r.Object.Name()
		pad := strings.Repeat(" ", width-len([]rune(name)))
		line := fmt.Sprintf("  %2d. %s%s  %s", i+1, highlight(name, res.Key), pad, dimText(fmt.Sprintf("%5.1f", r.Rank)))
		if d, ok := r.Object.(describer); ok && d.Description() != "" {
			line += "  " + dimText(d.Description())
		}
		fmt.Fprintln(w, line)
	}
	if res.Len() > len(items) {
		fmt.Fprintln(w, dimText(fmt.Sprintf("  ... %d more", res.Len()-len(items))))
	}
}
