// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/notify"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// PALETTE
// =============================================================================

// Adaptive colors pick their variant from the active theme (see ApplyTheme).
var (
	Purple        = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan          = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald       = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose          = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber         = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(TextSecondary)

	dimStyle = lipgloss.NewStyle().
			Foreground(TextMuted)

	commandStyle = lipgloss.NewStyle().
			Foreground(Emerald)

	warningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(Rose).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true)

	pinStyle = lipgloss.NewStyle().
			Foreground(Amber)
)

// ApplyTheme switches adaptive colors to the given theme.
func ApplyTheme(t model.Theme) {
	lipgloss.SetHasDarkBackground(t == model.ThemeDark)
}

// RenderSeparator renders a horizontal rule of width w.
func RenderSeparator(w int) string {
	if w <= 0 {
		w = 30
	}
	return dimStyle.Render(strings.Repeat("─", w))
}

// roleStyle returns the author label style for a message role.
func roleStyle(r model.Role) lipgloss.Style {
	if r == model.RoleUser {
		return userStyle
	}
	return assistantStyle
}

// severityLabel renders a notification prefix.
func severityLabel(s notify.Severity) string {
	switch s {
	case notify.SeveritySuccess:
		return commandStyle.Render("[OK]")
	case notify.SeverityWarning:
		return warningStyle.Render("[Warning]")
	case notify.SeverityError:
		return errorStyle.Render("[Error]")
	default:
		return infoStyle.Render("[Info]")
	}
}
