// Package tui provides the terminal user interface for gitup.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jayteealao/gitup/internal/state"
	"github.com/jayteealao/gitup/internal/update"
)

// Colors
var (
	ColorPrimary   = lipgloss.Color("39")  // Blue
	ColorSecondary = lipgloss.Color("245") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorDanger    = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("240") // Dark gray
)

// Styles for the TUI
var (
	// Title style for the header
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 1)

	// Normal item style
	NormalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	// Outcome styles
	StatusSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	StatusAttention = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StatusFailure = lipgloss.NewStyle().
			Foreground(ColorDanger).
			Bold(true)

	StatusInactive = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// Help bar style
	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Padding(1, 0)

	// Detail label style
	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary).
			Width(14)

	// Detail value style
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Error style
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorDanger).
			Bold(true)
)

// Severity groups outcome kinds by how much attention they need.
type Severity int

const (
	SeverityNone Severity = iota
	SeveritySuccess
	// SeverityAttention covers working-tree states the user must tidy up.
	SeverityAttention
	// SeverityFailure covers fetch and git failures.
	SeverityFailure
	SeverityInactive
)

// KindSeverity classifies an outcome kind.
func KindSeverity(kind update.Kind) Severity {
	switch kind {
	case update.UpToDate, update.FastForwarded, update.Rebased, update.Merged:
		return SeveritySuccess
	case update.DirtyWorkingTree, update.DetachedHead, update.NoUpstream:
		return SeverityAttention
	case update.Conflict, update.NetworkError, update.NotARepo, update.Unknown:
		return SeverityFailure
	case update.Stopped:
		return SeverityInactive
	default:
		return SeverityNone
	}
}

// GetKindStyle returns the style for an outcome kind.
func GetKindStyle(kind update.Kind) lipgloss.Style {
	switch KindSeverity(kind) {
	case SeveritySuccess:
		return StatusSuccess
	case SeverityAttention:
		return StatusAttention
	case SeverityFailure:
		return StatusFailure
	case SeverityInactive:
		return StatusInactive
	default:
		return NormalStyle
	}
}

// GetKindIcon returns an icon for an outcome kind.
func GetKindIcon(kind update.Kind) string {
	switch KindSeverity(kind) {
	case SeveritySuccess:
		if kind == update.UpToDate {
			return "●"
		}
		return "↓"
	case SeverityAttention:
		return "⚠"
	case SeverityFailure:
		return "✗"
	case SeverityInactive:
		return "○"
	default:
		return "?"
	}
}

// GetRunStatusStyle returns the style for a stored run status.
func GetRunStatusStyle(status string) lipgloss.Style {
	switch status {
	case state.RunSucceeded:
		return StatusSuccess
	case state.RunPartial:
		return StatusFailure
	case state.RunStopped:
		return StatusInactive
	default:
		return NormalStyle
	}
}

// GetRunStatusIcon returns an icon for a stored run status.
func GetRunStatusIcon(status string) string {
	switch status {
	case state.RunSucceeded:
		return "●"
	case state.RunPartial:
		return "✗"
	case state.RunStopped:
		return "○"
	default:
		return "?"
	}
}

// kindOf maps a stored kind name back to its Kind; unrecognised names are Unknown.
func kindOf(name string) update.Kind {
	kind, err := update.ParseKind(name)
	if err != nil {
		return update.Unknown
	}
	return kind
}
