package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/butler/internal/scheduler"
)

const taskListWidth = 32

// TaskPaneModel is the task board: a list of tasks and the selected task's
// details.
type TaskPaneModel struct {
	tasks       []*scheduler.Task // newest first
	selectedID  string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates an empty task board.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{viewport: viewport.New(0, 0)}
}

// Update handles messages for the task board.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.tasks)-1 {
				m.selectedIdx++
				m.selectedID = m.tasks[m.selectedIdx].ID
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.selectedID = m.tasks[m.selectedIdx].ID
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case tasksMsg:
		m.tasks = msg.tasks
		m.selectedIdx = 0
		for i, t := range m.tasks {
			if t.ID == m.selectedID {
				m.selectedIdx = i
				break
			}
		}
		if len(m.tasks) > 0 {
			m.selectedID = m.tasks[m.selectedIdx].ID
		} else {
			m.selectedID = ""
		}
		m.updateViewportContent()
	}

	return m, cmd
}

// View renders the task board.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	detailWidth := m.width - taskListWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(),
		lipgloss.NewStyle().
			Width(max(10, detailWidth)).
			Height(m.height-2).
			Render(m.viewport.View()),
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

func (m TaskPaneModel) renderTaskList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(taskListWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(StyleStatusPending.Render("No tasks yet"))
	}
	for i, t := range m.tasks {
		name := []rune(t.Title)
		if len(name) > taskListWidth-4 {
			name = append(name[:taskListWidth-7], []rune("...")...)
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), string(name))
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(taskListWidth).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status scheduler.TaskStatus) string {
	switch status {
	case scheduler.TaskRunning:
		return StyleStatusRunning.Render("●")
	case scheduler.TaskCompleted:
		return StyleStatusComplete.Render("✓")
	case scheduler.TaskFailed:
		return StyleStatusFailed.Render("✗")
	case scheduler.TaskCancelled:
		return StyleStatusCancelled.Render("⊘")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m *TaskPaneModel) updateViewportContent() {
	if len(m.tasks) == 0 {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(taskDetail(m.tasks[m.selectedIdx]))
	m.viewport.GotoTop()
}

func taskDetail(t *scheduler.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", StyleTitle.Render(t.Title))
	fmt.Fprintf(&b, "Status:      %s\n", t.Status)
	fmt.Fprintf(&b, "Mode:        %s\n", t.Mode)
	fmt.Fprintf(&b, "Destination: %s\n", t.DestinationID)
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(&b, "Depends on:  %s\n", strings.Join(t.DependsOn, ", "))
	}
	if t.RetryOfTaskID != "" {
		fmt.Fprintf(&b, "Retry of:    %s (attempt %d)\n", t.RetryOfTaskID, t.RetryAttempt)
	}
	if t.Cascade {
		b.WriteString("Cancelled by an upstream task\n")
	}
	if !t.StartedAt.IsZero() && !t.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Duration:    %s\n", t.CompletedAt.Sub(t.StartedAt).Round(1e6))
	}
	if t.ResultDetail != "" {
		b.WriteString("\n")
		b.WriteString(t.ResultDetail)
		b.WriteString("\n")
	}
	return b.String()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(10, w-taskListWidth-4)
	m.viewport.Height = max(5, h-4)
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
