// Package orchestrator processes conversation turns into scheduled tasks.
// It asks the planner for intents, arbitrates suspicious splits and failed
// tasks with the user one question at a time, and materializes accepted
// plans into the scheduler.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/persistence"
	"github.com/aristath/butler/internal/planner"
	"github.com/aristath/butler/internal/scheduler"
	"github.com/aristath/butler/internal/workarea"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultThreadID           = "main"
	DefaultOversplitThreshold = 0.6
	DefaultRecentRounds       = 5
	DefaultHistoryTurns       = 6

	restartReason = "interrupted by restart"
)

// Config wires a Manager. Store, Scheduler, Proposer, Classifier and Bus are
// required; WorkAreas is optional.
type Config struct {
	Store      persistence.Store
	Scheduler  *scheduler.Scheduler
	Proposer   planner.Proposer
	Classifier planner.Classifier
	Bus        events.Publisher
	WorkAreas  *workarea.Manager
	Logger     *slog.Logger

	ThreadID           string
	OversplitThreshold float64
	RecentRounds       int    // rounds returned by State
	HistoryTurns       int    // prior messages handed to the proposer
	HabitAddendum      string // appended to every rendered task prompt
	WorkspaceRoot      string // base for relative intent workspace paths
}

// Manager owns the conversation thread and the pending-choice state.
type Manager struct {
	store      persistence.Store
	sched      *scheduler.Scheduler
	proposer   planner.Proposer
	classifier planner.Classifier
	bus        events.Publisher
	workareas  *workarea.Manager
	logger     *slog.Logger

	threadID      string
	threshold     float64
	recentRounds  int
	historyTurns  int
	habitAddendum string
	workspaceRoot string

	inbox  *Inbox
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	messages []persistence.Message
	choices  ChoiceQueue
	retried  map[string]bool
	settled  []scheduler.Settlement // failures and cascades not yet handed to the inbox
	wake     chan struct{}
}

// NewManager validates cfg and creates a Manager. Call Recover, then Start.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case cfg.Scheduler == nil:
		return nil, errors.New("orchestrator: scheduler is required")
	case cfg.Proposer == nil:
		return nil, errors.New("orchestrator: proposer is required")
	case cfg.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case cfg.Bus == nil:
		return nil, errors.New("orchestrator: bus is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ThreadID == "" {
		cfg.ThreadID = DefaultThreadID
	}
	if cfg.OversplitThreshold <= 0 || cfg.OversplitThreshold > 1 {
		cfg.OversplitThreshold = DefaultOversplitThreshold
	}
	if cfg.RecentRounds < 1 {
		cfg.RecentRounds = DefaultRecentRounds
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}

	return &Manager{
		store:         cfg.Store,
		sched:         cfg.Scheduler,
		proposer:      cfg.Proposer,
		classifier:    cfg.Classifier,
		bus:           cfg.Bus,
		workareas:     cfg.WorkAreas,
		logger:        cfg.Logger,
		threadID:      cfg.ThreadID,
		threshold:     cfg.OversplitThreshold,
		recentRounds:  cfg.RecentRounds,
		historyTurns:  cfg.HistoryTurns,
		habitAddendum: cfg.HabitAddendum,
		workspaceRoot: cfg.WorkspaceRoot,
		inbox:         NewInbox(64),
		retried:       make(map[string]bool),
		wake:          make(chan struct{}, 1),
	}, nil
}

// Recover prepares state persisted by a previous run: tasks left queued or
// running are marked failed, terminal tasks are loaded into the scheduler,
// and the conversation log is reloaded. It returns the number of tasks
// marked failed.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	stale, err := m.store.ListByStatus(ctx, scheduler.TaskQueued, scheduler.TaskRunning)
	if err != nil {
		return 0, fmt.Errorf("list interrupted tasks: %w", err)
	}

	now := time.Now()
	for _, t := range stale {
		t.Status = scheduler.TaskFailed
		t.CompletedAt = now
		if t.ResultBrief == "" {
			t.ResultBrief = restartReason
		}
		if t.ResultDetail == "" {
			t.ResultDetail = t.ResultBrief
		}
		if err := m.store.SaveTask(ctx, t); err != nil {
			return 0, fmt.Errorf("mark task %s interrupted: %w", t.ID, err)
		}
	}

	all, err := m.store.ListTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tasks: %w", err)
	}
	m.sched.Restore(all)

	history, err := m.store.GetHistory(ctx, m.threadID, -1)
	if err != nil {
		return 0, fmt.Errorf("load conversation: %w", err)
	}
	m.mu.Lock()
	m.messages = history
	m.mu.Unlock()

	if len(stale) > 0 {
		m.logger.Info("recovered interrupted tasks", "count", len(stale))
	}
	return len(stale), nil
}

// Start launches the inbox worker and begins receiving task settlements.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.inbox.Start(ctx)
	m.sched.OnSettled(m.onSettled)
	m.wg.Go(func() { m.forwardSettlements(ctx) })
}

// Close stops the worker and the settlement forwarder. Tasks already
// running are left to the scheduler.
func (m *Manager) Close() {
	if m.cancel == nil {
		return
	}
	m.sched.OnSettled(nil)
	m.cancel()
	m.inbox.Stop()
	m.wg.Wait()
}

// onSettled is the scheduler hook. It only records the settlement, so the
// scheduler never waits on a planning call.
func (m *Manager) onSettled(st scheduler.Settlement) {
	if st.Task.Status != scheduler.TaskFailed && st.Task.Status != scheduler.TaskCancelled {
		return
	}
	m.mu.Lock()
	m.settled = append(m.settled, st)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// forwardSettlements moves recorded failures and cascades into the inbox so
// they are handled between user turns, never during one.
func (m *Manager) forwardSettlements(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		}

		m.mu.Lock()
		batch := m.settled
		m.settled = nil
		m.mu.Unlock()

		for _, st := range batch {
			task := st.Task
			job := func(ctx context.Context) { m.handleFailure(ctx, task.ID, st.Err) }
			if task.Status == scheduler.TaskCancelled {
				job = func(ctx context.Context) { m.reportCascade(ctx, task.ID, st.ParentID, task.ResultDetail) }
			}
			if err := m.inbox.Post(ctx, job); err != nil {
				if ctx.Err() == nil {
					m.logger.Error("failed to queue settlement", "task", task.ID, "status", task.Status.String(), "error", err)
				}
				return
			}
		}
	}
}

// Send processes one user message. Empty messages are ignored.
func (m *Manager) Send(ctx context.Context, message string) (State, error) {
	text := strings.TrimSpace(message)
	if text == "" {
		return m.State(), nil
	}
	if err := m.inbox.Do(ctx, func(ctx context.Context) { m.handleTurn(ctx, text) }); err != nil {
		return m.State(), err
	}
	return m.State(), nil
}

// ClearHistory drops the conversation log and every pending choice.
func (m *Manager) ClearHistory(ctx context.Context) error {
	var clearErr error
	err := m.inbox.Do(ctx, func(ctx context.Context) {
		if clearErr = m.store.ClearHistory(ctx, m.threadID); clearErr != nil {
			return
		}
		m.mu.Lock()
		m.messages = nil
		m.choices.Clear()
		m.mu.Unlock()
	})
	if err != nil {
		return err
	}
	return clearErr
}

// ClearTasks removes every task that is neither queued nor running, along
// with its work area, and returns how many were removed. User workspaces
// are never deleted.
func (m *Manager) ClearTasks(ctx context.Context) (int, error) {
	var ids []string
	workDirs := make(map[string]string)
	for _, t := range m.sched.Tasks() {
		if t.Status.IsTerminal() {
			ids = append(ids, t.ID)
			workDirs[t.ID] = t.WorkDir
		}
	}

	removed := m.sched.Remove(ids)
	if len(removed) == 0 {
		return 0, nil
	}
	if _, err := m.store.DeleteTasks(ctx, removed); err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}

	if m.workareas != nil {
		for _, id := range removed {
			dir := workDirs[id]
			if !m.workareas.Owns(dir) {
				continue
			}
			if err := m.workareas.Remove(dir); err != nil {
				m.logger.Warn("failed to remove work area", "task", id, "path", dir, "error", err)
			}
		}
	}
	return len(removed), nil
}

// Tasks returns every known task, newest first.
func (m *Manager) Tasks() []*scheduler.Task {
	tasks := m.sched.Tasks()
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks
}

// SetMaxConcurrent changes the scheduler's running-task ceiling.
func (m *Manager) SetMaxConcurrent(n int) {
	m.sched.SetMaxConcurrent(n)
}

func (m *Manager) reply(ctx context.Context, content string) {
	m.pushMessage(ctx, RoleAssistant, content)
}

func (m *Manager) pushMessage(ctx context.Context, role, content string) {
	msg := persistence.Message{
		ID:        ulid.Make().String(),
		ThreadID:  m.threadID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	if err := m.store.SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		m.logger.Error("failed to persist message", "role", role, "error", err)
	}

	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	m.bus.Publish(events.TopicConversation, events.MessageEvent{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
}

// recentTurns returns up to n of the latest messages as proposer context.
func (m *Manager) recentTurns(n int) []planner.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.messages) == 0 {
		return nil
	}
	start := max(0, len(m.messages)-n)
	turns := make([]planner.Turn, 0, len(m.messages)-start)
	for _, msg := range m.messages[start:] {
		turns = append(turns, planner.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

func (m *Manager) currentChoice() *Choice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.choices.Current()
}

// lookupTask finds a task in the scheduler, falling back to the store for
// tasks removed from memory.
func (m *Manager) lookupTask(ctx context.Context, id string) (*scheduler.Task, bool) {
	if t, ok := m.sched.Get(id); ok {
		return t, true
	}
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		if !errors.Is(err, persistence.ErrTaskNotFound) {
			m.logger.Warn("task lookup failed", "task", id, "error", err)
		}
		return nil, false
	}
	return t, true
}
