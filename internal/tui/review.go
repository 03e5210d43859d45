package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Pane identifies which half of the review screen has focus.
type Pane int

const (
	PaneLeft Pane = iota
	PaneRight
)

// ReviewModel is the activity-by-activity review screen. The left pane
// shows the compiled activity, the right pane its connections; decisions
// are written straight into the shared ReviewSession.
type ReviewModel struct {
	session    *ReviewSession
	styles     *Styles
	cursor     int
	activePane Pane
	width      int
	height     int
	quitting   bool
	inputMode  bool
	noteInput  textinput.Model
	help       help.Model
	keys       keyMap
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Tab     key.Binding
	Approve key.Binding
	Flag    key.Binding
	Enter   key.Binding
	Quit    key.Binding
	Escape  key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Up, km.Down, km.Tab, km.Approve, km.Flag, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Up, km.Down, km.Tab},
		{km.Approve, km.Flag},
		{km.Enter, km.Escape, km.Quit},
	}
}

func newKeyMap() keyMap {
	bind := func(h, desc string, keys ...string) key.Binding {
		return key.NewBinding(key.WithKeys(keys...), key.WithHelp(h, desc))
	}
	return keyMap{
		Up:      bind("k/↑", "prev activity", "k", "up"),
		Down:    bind("j/↓", "next activity", "j", "down"),
		Tab:     bind("tab", "switch pane", "tab"),
		Approve: bind("a", "approve", "a"),
		Flag:    bind("f", "flag", "f"),
		Enter:   bind("enter", "submit", "enter"),
		Quit:    bind("q", "quit", "q"),
		Escape:  bind("esc", "cancel", "esc"),
	}
}

func NewReviewModel(session *ReviewSession) ReviewModel {
	ti := textinput.New()
	ti.Placeholder = "Why is this activity flagged?"
	ti.Width = 50

	return ReviewModel{
		session:   session,
		styles:    DefaultStyles(),
		width:     80,
		height:    24,
		noteInput: ti,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

func (m ReviewModel) Init() tea.Cmd {
	return nil
}

func (m ReviewModel) current() *ReviewItem {
	if m.cursor < 0 || m.cursor >= len(m.session.Items) {
		return nil
	}
	return m.session.Items[m.cursor]
}

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.inputMode {
			return m.updateNoteInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

// updateNoteInput handles keys while the flag-note prompt is open.
func (m ReviewModel) updateNoteInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if item := m.current(); item != nil {
			item.Status = ReviewFlagged
			item.Note = m.noteInput.Value()
		}
		m.inputMode = false
		m.noteInput.SetValue("")
		return m, nil
	case "esc":
		m.inputMode = false
		m.noteInput.SetValue("")
		return m, nil
	}
	var cmd tea.Cmd
	m.noteInput, cmd = m.noteInput.Update(msg)
	return m, cmd
}

func (m ReviewModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.session.Items)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "tab":
		if m.activePane == PaneLeft {
			m.activePane = PaneRight
		} else {
			m.activePane = PaneLeft
		}
	case "a":
		if item := m.current(); item != nil {
			item.Status = ReviewApproved
			item.Note = ""
		}
	case "f":
		m.inputMode = true
		m.noteInput.Focus()
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m ReviewModel) View() string {
	if m.quitting {
		return ""
	}
	if len(m.session.Items) == 0 {
		return m.styles.StatusFailed.Render("No activities to review")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTopBar(),
		m.renderNavigator(),
		m.renderPanels(),
		m.renderBottom(),
	)
}

func (m ReviewModel) renderTopBar() string {
	title := m.styles.Title.Render("Simforge Review - " + m.session.Source)
	if m.session.GateStatus == "" {
		return title
	}
	badge := GateColor(m.session.GateStatus).Render("gates: " + m.session.GateStatus)
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", badge)
}

func (m ReviewModel) renderNavigator() string {
	item := m.current()
	if item == nil {
		return ""
	}
	line := strings.Join([]string{
		fmt.Sprintf("[%d/%d]", m.cursor+1, len(m.session.Items)),
		item.Activity,
		"handler: " + item.Handler,
		m.statusBadge(item.Status),
	}, "  ")
	return m.styles.Subtitle.Render(line)
}

func (m ReviewModel) statusBadge(status ReviewStatus) string {
	switch status {
	case ReviewApproved:
		return m.styles.StatusSuccess.Render("[Approved]")
	case ReviewFlagged:
		return m.styles.StatusPartial.Render("[Flagged]")
	default:
		return m.styles.StatusPending.Render("[Pending]")
	}
}

func (m ReviewModel) renderPanels() string {
	item := m.current()
	if item == nil {
		return ""
	}

	left := m.renderDetailPanel("Activity", item.DetailText(), m.activePane == PaneLeft)
	right := m.renderDetailPanel("Connections", item.ConnectionsText(), m.activePane == PaneRight)

	panelWidth := (m.width - 6) / 2
	left = lipgloss.NewStyle().Width(panelWidth).Render(left)
	right = lipgloss.NewStyle().Width(panelWidth).Render(right)

	separator := m.styles.Border.Render(strings.TrimSuffix(strings.Repeat("│\n", 10), "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, separator, right)
}

func (m ReviewModel) renderDetailPanel(title, content string, active bool) string {
	borderStyle := m.styles.Border
	titleStyle := m.styles.Tab
	if active {
		borderStyle = m.styles.ActiveBorder
		titleStyle = m.styles.ActiveTab
	}

	maxLines := m.height - 12
	if maxLines < 1 {
		maxLines = 1
	}
	maxWidth := (m.width / 2) - 10

	var clipped []string
	for i, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if i >= maxLines {
			clipped = append(clipped, "...")
			break
		}
		clipped = append(clipped, truncateLine(line, maxWidth))
	}
	body := m.styles.DetailBlock.Render(strings.Join(clipped, "\n"))

	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), body))
}

func truncateLine(line string, maxWidth int) string {
	if len(line) <= maxWidth {
		return line
	}
	if maxWidth < 3 {
		return "..."
	}
	return line[:maxWidth-3] + "..."
}

func (m ReviewModel) renderBottom() string {
	if m.inputMode {
		return m.styles.Help.Render("Note: " + m.noteInput.View())
	}
	return m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}
