package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/orchestrator"
)

type chatLine struct {
	role    string
	content string
}

// submitMsg carries text the user entered in the chat input.
type submitMsg struct {
	text string
}

// ChatPaneModel shows the main conversation and the message input.
type ChatPaneModel struct {
	lines    []chatLine
	seen     map[string]bool // message IDs already rendered
	choice   *orchestrator.ChoiceSummary
	waiting  bool
	lastErr  error
	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	focused  bool
}

// NewChatPaneModel creates an empty conversation pane.
func NewChatPaneModel() ChatPaneModel {
	in := textinput.New()
	in.Placeholder = "Ask for something..."
	in.Prompt = "> "
	in.CharLimit = 4000
	return ChatPaneModel{
		seen:     make(map[string]bool),
		viewport: viewport.New(0, 0),
		input:    in,
	}
}

// Update handles messages for the chat pane.
func (m ChatPaneModel) Update(msg tea.Msg) (ChatPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.lastErr = nil
			m.refresh()
			return m, func() tea.Msg { return submitMsg{text: text} }
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
		default:
			m.input, cmd = m.input.Update(msg)
		}

	case events.MessageEvent:
		if msg.ID != "" && m.seen[msg.ID] {
			break
		}
		m.seen[msg.ID] = true
		m.lines = append(m.lines, chatLine{role: msg.Role, content: msg.Content})
		m.refresh()

	case stateMsg:
		m.waiting = false
		m.choice = msg.state.PendingChoice
		if len(m.lines) == 0 {
			m.seed(msg.state.RecentRounds)
		}
		m.refresh()

	case sendErrMsg:
		m.waiting = false
		m.lastErr = msg.err
		m.refresh()
	}

	return m, cmd
}

// seed fills an empty pane from the recent rounds of a restored conversation.
func (m *ChatPaneModel) seed(rounds []orchestrator.Round) {
	for _, r := range rounds {
		if r.User != "" {
			m.lines = append(m.lines, chatLine{role: orchestrator.RoleUser, content: r.User})
		}
		for _, reply := range r.Replies {
			m.lines = append(m.lines, chatLine{role: orchestrator.RoleAssistant, content: reply})
		}
	}
}

func (m *ChatPaneModel) refresh() {
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		if l.role == orchestrator.RoleUser {
			b.WriteString(StyleUser.Render("you"))
		} else {
			b.WriteString(StyleAssistant.Render("butler"))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(max(10, m.viewport.Width)).Render(l.content))
		b.WriteString("\n")
	}
	if m.waiting {
		b.WriteString("\n")
		b.WriteString(StyleStatusPending.Render("thinking..."))
	}
	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("send failed: %v", m.lastErr)))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the chat pane.
func (m ChatPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var footer string
	if m.choice != nil {
		hint := fmt.Sprintf("Awaiting %s: %s", m.choice.Kind, m.choice.Hint)
		if m.choice.Queued > 0 {
			hint += fmt.Sprintf(" (+%d queued)", m.choice.Queued)
		}
		footer = StyleChoice.Render(hint) + "\n"
	}
	footer += m.input.View()

	content := lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Conversation"),
		m.viewport.View(),
		footer,
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *ChatPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-4)
	m.viewport.Height = max(3, h-7) // border, title, choice hint, input
	m.input.Width = max(10, w-8)
	m.refresh()
}

// SetFocused updates the focus state.
func (m *ChatPaneModel) SetFocused(focused bool) {
	m.focused = focused
	if focused {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}
