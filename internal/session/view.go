package session

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	voiceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	aideStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	paneStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const historyWidth = 26

// layout resizes the panes for the current terminal. The history pane
// keeps a fixed width; the transcript takes the rest.
func (m *Model) layout() {
	w := m.width
	if w < 40 {
		w = 40
	}
	h := m.height - 7 // title, status, input, help, borders
	if h < 4 {
		h = 4
	}

	m.transcript.Width = w - historyWidth - 6
	m.transcript.Height = h
	m.history.Width = historyWidth
	m.history.Height = h
	m.input.Width = w - 8
	m.refreshTranscript()
	m.refreshHistory()
}

func (m *Model) appendLine(source, text string) {
	var label string
	switch source {
	case "voice":
		label = voiceStyle.Render("you (voice)")
	case "text":
		label = userStyle.Render("you")
	case "test":
		label = statusStyle.Render("tts test")
	default:
		label = aideStyle.Render("aide")
	}
	m.lines = append(m.lines, label+": "+text)
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	m.transcript.SetContent(strings.Join(m.lines, "\n"))
	m.transcript.GotoBottom()
}

func (m *Model) refreshHistory() {
	var b strings.Builder
	for _, u := range m.utterances {
		name := u.Command
		if name == "" {
			name = "—"
		}
		fmt.Fprintf(&b, "%s %s\n", u.At.Format("15:04:05"), name)
	}
	m.history.SetContent(b.String())
	m.history.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	mode := "text only"
	if m.listener.Enabled() {
		if m.listener.Running() {
			mode = "listening"
		} else {
			mode = "idle"
		}
	}
	title := titleStyle.Render("aide") +
		statusStyle.Render(fmt.Sprintf("  voice: %s  tts: %s", mode, m.speaker.Active()))

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(m.transcript.View()),
		paneStyle.Render(m.history.View()),
	)

	help := helpStyle.Render("enter send · ctrl+l listen · esc stop · ctrl+t voice test · ctrl+c quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		panes,
		statusStyle.Render(m.status),
		m.input.View(),
		help,
	)
}
