package styles

import "github.com/charmbracelet/lipgloss"

// Styles contains lipgloss styles derived from theme tokens.
type Styles struct {
	Theme    Theme
	Title    lipgloss.Style
	Text     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Info     lipgloss.Style
	Active   lipgloss.Style
	Inactive lipgloss.Style
}

// DefaultStyles builds styles from the default theme.
func DefaultStyles() Styles {
	return BuildStyles(DefaultTheme)
}

// BuildStyles converts theme tokens into lipgloss styles.
func BuildStyles(theme Theme) Styles {
	tokens := theme.Tokens

	return Styles{
		Theme:    theme,
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Text)).Bold(true),
		Text:     lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Text)),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.TextMuted)),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Accent)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Success)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Warning)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Error)).Bold(true),
		Info:     lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Info)),
		Active:   lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Success)),
		Inactive: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.TextMuted)).Italic(true),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Theme:    DefaultTheme,
		Title:    plain,
		Text:     plain,
		Muted:    plain,
		Accent:   plain,
		Success:  plain,
		Warning:  plain,
		Error:    plain,
		Info:     plain,
		Active:   plain,
		Inactive: plain,
	}
}
