package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/butler/internal/events"
)

// ProgressPaneModel shows aggregate scheduler progress.
type ProgressPaneModel struct {
	progress      events.SchedulerProgressEvent
	maxConcurrent int
	width         int
	height        int
	focused       bool
}

// NewProgressPaneModel creates a new progress pane.
func NewProgressPaneModel(maxConcurrent int) ProgressPaneModel {
	return ProgressPaneModel{maxConcurrent: maxConcurrent}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.SchedulerProgressEvent:
		m.progress = msg
	case maxConcurrentMsg:
		m.maxConcurrent = int(msg)
	}
	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	p := m.progress

	var b strings.Builder
	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Running:   %s / %d slots\n", StyleStatusRunning.Render(fmt.Sprint(p.Running)), m.maxConcurrent)
	fmt.Fprintf(&b, "Queued:    %s\n", StyleStatusPending.Render(fmt.Sprint(p.Queued)))
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(p.Completed)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(p.Failed)))
	fmt.Fprintf(&b, "Cancelled: %s\n", StyleStatusCancelled.Render(fmt.Sprint(p.Cancelled)))

	if p.Total > 0 {
		b.WriteString("\n")
		b.WriteString(progressBar(p, min(m.width-14, 40)))
		fmt.Fprintf(&b, "  %d/%d\n", p.Completed+p.Failed+p.Cancelled, p.Total)
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func progressBar(p events.SchedulerProgressEvent, width int) string {
	if width <= 0 || p.Total == 0 {
		return ""
	}
	completed := p.Completed * width / p.Total
	failed := (p.Failed + p.Cancelled) * width / p.Total
	running := p.Running * width / p.Total
	pending := max(0, width-completed-failed-running)

	bar := StyleStatusComplete.Render(strings.Repeat("=", completed))
	bar += StyleStatusFailed.Render(strings.Repeat("!", failed))
	bar += StyleStatusRunning.Render(strings.Repeat("-", running))
	bar += StyleStatusPending.Render(strings.Repeat(".", pending))
	return "[" + bar + "]"
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
