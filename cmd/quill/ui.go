package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#8BC34A")
	muted  = lipgloss.Color("#6c7a89")
	red    = lipgloss.Color("#e05252")

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2).
			Bold(true)

	promptStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	resultStyle  = lipgloss.NewStyle().Foreground(accent)
	detailStyle  = lipgloss.NewStyle().Foreground(muted)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	rejectStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)
	builtinStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
)

func banner() string {
	return bannerStyle.Render("quill — conversational data analysis")
}

// renderMarkdown pretty-prints markdown when a terminal renderer can be
// built, and falls back to the raw text otherwise.
func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func printDetail(format string, args ...any) {
	fmt.Println(detailStyle.Render(fmt.Sprintf(format, args...)))
}
