package ui

import "github.com/charmbracelet/lipgloss"

// Semantic color palette.
var (
	colorPrimary    = lipgloss.Color("#00BFFF") // Cyan: headings
	colorAccent     = lipgloss.Color("#FFD700") // Gold: overrides, pending
	colorSuccess    = lipgloss.Color("#00E676") // Green: committed
	colorDanger     = lipgloss.Color("#FF5252") // Red: conflicts, errors
	colorMuted      = lipgloss.Color("#636363") // Gray: de-emphasized
	colorMutedLight = lipgloss.Color("#8C8C8C") // Lighter gray: detail text
)

// Status icons.
const (
	iconOK       = "✓"
	iconFailed   = "✗"
	iconConflict = "⚠"
	iconPinned   = "⊘"
	iconDeleted  = "×"
	iconPending  = "·"
)

// styles is the set of styles a Printer renders with. The zero value
// renders plain text.
type styles struct {
	heading lipgloss.Style
	success lipgloss.Style
	danger  lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	detail  lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		heading: lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
		danger:  lipgloss.NewStyle().Foreground(colorDanger).Bold(true),
		accent:  lipgloss.NewStyle().Foreground(colorAccent),
		muted:   lipgloss.NewStyle().Foreground(colorMuted),
		detail:  lipgloss.NewStyle().Foreground(colorMutedLight),
	}
}
