package tui

import "github.com/charmbracelet/lipgloss"

// Dark review-screen palette.
const (
	ColorBg     = "#0d1117"
	ColorCard   = "#161b22"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds the lipgloss styles shared by the review and summary
// screens.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusPartial lipgloss.Style
	StatusPending lipgloss.Style

	DetailBlock lipgloss.Style

	Border       lipgloss.Style
	ActiveBorder lipgloss.Style

	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
}

// badge renders bold inverted text on the given background color.
func badge(bg string) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(bg)).
		Foreground(lipgloss.Color(ColorBg)).
		Padding(0, 1).
		Bold(true)
}

func roundedBorder(color string) lipgloss.Style {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(color)).
		Padding(1, 2)
}

// DefaultStyles builds the default style set.
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			MarginBottom(1),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		StatusSuccess: badge(ColorGreen),
		StatusFailed:  badge(ColorRed),
		StatusPartial: badge(ColorYellow),
		StatusPending: badge(ColorGray),

		DetailBlock: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorCard)).
			Foreground(lipgloss.Color(ColorText)).
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)),

		Border:       roundedBorder(ColorBorder),
		ActiveBorder: roundedBorder(ColorBlue),

		Tab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Padding(0, 2),

		ActiveTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true).
			Padding(0, 2).
			BorderStyle(lipgloss.Border{Bottom: "─"}).
			BorderBottom(true).
			BorderForeground(lipgloss.Color(ColorBlue)),
	}
}

// GateColor returns the badge style for a gate pipeline status: green for
// passed, yellow for warning, red for failed.
func GateColor(status string) lipgloss.Style {
	switch status {
	case "passed":
		return badge(ColorGreen)
	case "warning":
		return badge(ColorYellow)
	case "failed":
		return badge(ColorRed)
	default:
		return badge(ColorGray)
	}
}
