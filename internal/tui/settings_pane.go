package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/butler/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget         string
	maxConcurrent      string
	oversplitThreshold string
	plannerModel       string
	executorModel      string
	claudeCommand      string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		saveTarget:  "global",
	}
	m.loadFromConfig()
	m.buildForm()
	return m
}

// loadFromConfig initializes form field values from config.
func (m *SettingsPaneModel) loadFromConfig() {
	m.maxConcurrent = strconv.Itoa(m.config.Scheduler.MaxConcurrent)
	m.oversplitThreshold = strconv.FormatFloat(m.config.Planning.OversplitThreshold, 'f', -1, 64)
	m.plannerModel = m.config.Agents[config.RolePlanner].Model
	m.executorModel = m.config.Agents[config.RoleExecutor].Model
	m.claudeCommand = m.config.Providers["claude"].Command
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("enter a whole number of at least 1")
	}
	return nil
}

func validateThreshold(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 || f > 1 {
		return errors.New("enter a number in (0, 1]")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.butler/config.json)", "global"),
					huh.NewOption("Project (.butler/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxConcurrent").
				Title("Max Concurrent Tasks").
				Value(&m.maxConcurrent).
				Validate(validatePositiveInt).
				Placeholder("2"),

			huh.NewInput().
				Key("oversplitThreshold").
				Title("Oversplit Threshold").
				Value(&m.oversplitThreshold).
				Validate(validateThreshold).
				Placeholder("0.6"),
		).Title("Scheduling"),

		huh.NewGroup(
			huh.NewInput().
				Key("plannerModel").
				Title("Planner Model").
				Value(&m.plannerModel).
				Placeholder("sonnet"),

			huh.NewInput().
				Key("executorModel").
				Title("Executor Model").
				Value(&m.executorModel).
				Placeholder("opus"),

			huh.NewInput().
				Key("claudeCommand").
				Title("Claude Command").
				Value(&m.claudeCommand).
				Placeholder("claude"),
		).Title("Agents"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane. A completed form is applied
// to the shared config and written to the chosen file.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State != huh.StateCompleted || m.saved {
		return m, cmd
	}

	m.applyFormToConfig()
	if err := config.Save(m.config, m.targetPath()); err != nil {
		m.err = err
		return m, cmd
	}
	m.saved = true
	m.err = nil
	m.visible = false
	return m, cmd
}

func (m SettingsPaneModel) targetPath() string {
	if m.saveTarget == "project" {
		return m.projectPath
	}
	return m.globalPath
}

// applyFormToConfig copies form field values back to the config struct.
// Inputs were validated by the form.
func (m *SettingsPaneModel) applyFormToConfig() {
	if n, err := strconv.Atoi(strings.TrimSpace(m.maxConcurrent)); err == nil {
		m.config.Scheduler.MaxConcurrent = n
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(m.oversplitThreshold), 64); err == nil {
		m.config.Planning.OversplitThreshold = f
	}

	if m.config.Agents == nil {
		m.config.Agents = make(map[string]config.AgentConfig)
	}
	for role, model := range map[string]string{
		config.RolePlanner:  m.plannerModel,
		config.RoleExecutor: m.executorModel,
	} {
		agent := m.config.Agents[role]
		agent.Model = strings.TrimSpace(model)
		m.config.Agents[role] = agent
	}

	if claude, ok := m.config.Providers["claude"]; ok {
		claude.Command = strings.TrimSpace(m.claudeCommand)
		m.config.Providers["claude"] = claude
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	content := m.form.View()
	if m.err != nil {
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving to %s: %v", m.targetPath(), m.err))
	}

	body := StyleFocusedBorder.
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
	title := StyleUser.Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild form to reset state
	if v {
		m.loadFromConfig()
		m.buildForm()
	}
}

// Saved reports whether the last form submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
