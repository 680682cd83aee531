package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/butler/internal/config"
	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/orchestrator"
	"github.com/aristath/butler/internal/scheduler"
)

// Orchestrator is the part of orchestrator.Manager the TUI drives.
type Orchestrator interface {
	Send(ctx context.Context, message string) (orchestrator.State, error)
	State() orchestrator.State
	Tasks() []*scheduler.Task
	SetMaxConcurrent(n int)
}

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneChat PaneID = iota
	PaneTasks
	PaneProgress
	paneCount
)

type stateMsg struct {
	state orchestrator.State
}

type sendErrMsg struct {
	err error
}

type tasksMsg struct {
	tasks []*scheduler.Task
}

type maxConcurrentMsg int

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	orch              Orchestrator
	chatPane          ChatPaneModel
	taskPane          TaskPaneModel
	progressPane      ProgressPaneModel
	settingsPane      SettingsPaneModel
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	config            *config.Config
	globalConfigPath  string
	projectConfigPath string
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(orch Orchestrator, bus events.Subscriber, cfg *config.Config, globalPath, projectPath string) Model {
	m := Model{
		orch:              orch,
		chatPane:          NewChatPaneModel(),
		taskPane:          NewTaskPaneModel(),
		progressPane:      NewProgressPaneModel(cfg.Scheduler.MaxConcurrent),
		settingsPane:      NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:       PaneChat,
		eventSub:          bus.SubscribeAll(256),
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
	m.updateFocusStates()
	return m
}

// Init loads the current conversation and tasks and starts listening for
// events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.eventSub),
		loadState(m.orch),
		loadTasks(m.orch),
	)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func loadState(orch Orchestrator) tea.Cmd {
	return func() tea.Msg { return stateMsg{state: orch.State()} }
}

func loadTasks(orch Orchestrator) tea.Cmd {
	return func() tea.Msg { return tasksMsg{tasks: orch.Tasks()} }
}

// send runs one conversation turn off the UI goroutine. Replies arrive as
// message events while the turn runs.
func send(orch Orchestrator, text string) tea.Cmd {
	return func() tea.Msg {
		st, err := orch.Send(context.Background(), text)
		if err != nil {
			return sendErrMsg{err: err}
		}
		return stateMsg{state: st}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}

		// Settings form is modal.
		if m.showSettings {
			if msg.String() == KeySettings || msg.String() == KeyEsc {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
				if m.settingsPane.Saved() {
					n := m.config.Scheduler.MaxConcurrent
					m.orch.SetMaxConcurrent(n)
					m.progressPane, _ = m.progressPane.Update(maxConcurrentMsg(n))
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())
			return m, tea.Batch(cmds...)

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()
			return m, nil

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()
			return m, nil
		}

		// The chat input owns every other key while focused.
		if m.focusedPane == PaneChat {
			var cmd tea.Cmd
			m.chatPane, cmd = m.chatPane.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit:
			m.quitting = true
			return m, tea.Quit
		case KeyPane1:
			m.focusedPane = PaneChat
			m.updateFocusStates()
		case KeyPane2:
			m.focusedPane = PaneTasks
			m.updateFocusStates()
		case KeyPane3:
			m.focusedPane = PaneProgress
			m.updateFocusStates()
		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case submitMsg:
		cmds = append(cmds, send(m.orch, msg.text))

	case stateMsg, sendErrMsg:
		var cmd tea.Cmd
		m.chatPane, cmd = m.chatPane.Update(msg)
		cmds = append(cmds, cmd, loadTasks(m.orch))

	case tasksMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.MessageEvent:
		var cmd tea.Cmd
		m.chatPane, cmd = m.chatPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.ChoiceOpenedEvent, events.ChoiceQueuedEvent, events.ChoiceResolvedEvent:
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.SchedulerProgressEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, loadTasks(m.orch), waitForEvent(m.eventSub))

	case events.Event:
		// Task lifecycle events are reflected through the next task reload.
		cmds = append(cmds, loadTasks(m.orch), waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.taskPane.View(), m.progressPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.chatPane.View(), rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, HelpView(m.focusedPane == PaneChat))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar
	rightTopHeight := (availableHeight * 65) / 100
	rightBottomHeight := availableHeight - rightTopHeight

	m.chatPane.SetSize(leftWidth, availableHeight)
	m.taskPane.SetSize(rightWidth, rightTopHeight)
	m.progressPane.SetSize(rightWidth, rightBottomHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.chatPane.SetFocused(m.focusedPane == PaneChat)
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
