package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SummaryModel is the closing screen shown after the review pass. Any of
// enter, esc or q dismisses it.
type SummaryModel struct {
	session  *ReviewSession
	styles   *Styles
	width    int
	height   int
	quitting bool
}

func NewSummaryModel(session *ReviewSession) SummaryModel {
	return SummaryModel{
		session: session,
		styles:  DefaultStyles(),
	}
}

func (m SummaryModel) Init() tea.Cmd {
	return nil
}

func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "enter":
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Review Summary"))
	b.WriteString("\n\n")

	tally := m.session.Tally()
	b.WriteString(m.renderTally(tally))
	b.WriteString("\n\n")

	if m.session.GateStatus != "" {
		b.WriteString(GateColor(m.session.GateStatus).Render("Gates: " + m.session.GateStatus))
		b.WriteString("\n\n")
	}

	if tally.Flagged > 0 {
		b.WriteString(m.styles.Subtitle.Render("Flagged Activities:"))
		b.WriteString("\n\n")
		for _, item := range m.session.Items {
			if item.Status != ReviewFlagged {
				continue
			}
			b.WriteString(m.renderFlagged(item))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("Press enter to save and exit"))
	return b.String()
}

func (m SummaryModel) renderTally(t Tally) string {
	count := func(color string, n int, bold bool) string {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(bold)
		return style.Render(fmt.Sprintf("%d", n))
	}

	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Statistics"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  Total activities:      %d\n", t.Total)
	fmt.Fprintf(&b, "  Approved:              %s\n", count(ColorGreen, t.Approved, true))
	fmt.Fprintf(&b, "  Flagged:               %s\n", count(ColorYellow, t.Flagged, true))
	fmt.Fprintf(&b, "  Pending:               %s\n", count(ColorGray, t.Pending, false))
	return b.String()
}

func (m SummaryModel) renderFlagged(item *ReviewItem) string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render(item.Activity))
	b.WriteString(" ")
	b.WriteString(m.styles.StatusPartial.Render("FLAGGED"))
	b.WriteString("\n")
	if item.Note != "" {
		fmt.Fprintf(&b, "  %s\n", item.Note)
	}
	return b.String()
}
