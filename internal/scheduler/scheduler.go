package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/aristath/butler/internal/events"
)

// DefaultMaxConcurrent is the running-task ceiling when none is configured.
const DefaultMaxConcurrent = 2

// PromptPreparer builds the prompt actually executed for a task with
// dependencies, given its parents in declaration order.
type PromptPreparer interface {
	Prepare(task *Task, parents []*Task) (string, error)
}

// TaskWriter persists task records.
type TaskWriter interface {
	SaveTask(ctx context.Context, task *Task) error
}

// Config wires a Scheduler. Only MaxConcurrent has a meaningful zero value;
// a nil Executor means tasks are settled externally through Settle.
type Config struct {
	MaxConcurrent int
	Executor      Executor
	Preparer      PromptPreparer
	Store         TaskWriter
	Bus           events.Publisher
	Graph         DependencyGraph
	Logger        *slog.Logger
}

// Scheduler admits queued tasks under a concurrency ceiling, one running task
// per destination, and propagates settlement to dependent tasks.
type Scheduler struct {
	mu            sync.Mutex
	tasks         map[string]*Task
	order         []string            // creation order
	queue         []string            // queued task IDs whose parents have all completed
	running       map[string]struct{} // running task IDs
	maxConcurrent int

	graph    DependencyGraph
	locks    *DestinationLocks
	executor Executor
	preparer PromptPreparer
	store    TaskWriter
	bus      events.Publisher
	logger   *slog.Logger

	onSettled func(Settlement)
	settled   []Settlement // delivered once mu is released

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// Settlement reports a task reaching a terminal state.
type Settlement struct {
	Task     *Task  // snapshot taken at settlement
	Err      error  // executor error for failed tasks
	ParentID string // upstream task for cascades
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Graph == nil {
		cfg.Graph = NewMemoryGraph()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:         make(map[string]*Task),
		running:       make(map[string]struct{}),
		maxConcurrent: cfg.MaxConcurrent,
		graph:         cfg.Graph,
		locks:         NewDestinationLocks(),
		executor:      cfg.Executor,
		preparer:      cfg.Preparer,
		store:         cfg.Store,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Submit registers a batch of new tasks, wires their dependency edges and
// admits whatever is ready. Dependencies must reference tasks in the same
// batch or tasks already known to the scheduler.
func (s *Scheduler) Submit(ctx context.Context, batch []*Task) error {
	s.mu.Lock()
	defer s.unlockAndNotify()

	seen := make(map[string]bool, len(batch))
	for _, t := range batch {
		if t == nil || t.ID == "" {
			return errors.New("task without ID in batch")
		}
		if _, exists := s.tasks[t.ID]; exists || seen[t.ID] {
			return fmt.Errorf("task with ID %q already exists", t.ID)
		}
		seen[t.ID] = true
	}

	now := time.Now()
	for _, t := range batch {
		t.Status = TaskQueued
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
		s.graph.Add(t.ID, t.DependsOn)
		s.saveLocked(ctx, t)
		s.bus.Publish(events.TopicTask, events.TaskQueuedEvent{
			ID:        t.ID,
			Title:     t.Title,
			Mode:      string(t.Mode),
			GroupID:   t.GroupID,
			Timestamp: now,
		})
	}

	// Resolve after the whole batch is registered so that cascades reach
	// children declared later in the batch.
	for _, t := range batch {
		if t.Status != TaskQueued {
			continue
		}
		if parent, missing := s.blockingParentLocked(t); parent != nil {
			s.cascadeLocked(t, parent.ID, "dependency failed: "+parent.Title)
			continue
		} else if missing != "" {
			s.cascadeLocked(t, missing, "dependency missing: "+missing)
			continue
		}
		if s.graph.MarkReady(t.ID) {
			s.enqueueLocked(t.ID)
		}
	}

	s.pumpLocked()
	s.publishProgressLocked()
	return nil
}

// Restore loads historical tasks that already reached a terminal status, so
// they can be listed, reused as destinations and referenced by retries.
// Non-terminal tasks are ignored; recovery marks those failed beforehand.
func (s *Scheduler) Restore(tasks []*Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if t == nil || !t.Status.IsTerminal() {
			continue
		}
		if _, exists := s.tasks[t.ID]; exists {
			continue
		}
		s.tasks[t.ID] = t.Clone()
		s.order = append(s.order, t.ID)
		s.graph.MarkSettled(t.ID)
	}
}

// Settle records the outcome of a running task. It returns false if the task
// is unknown or not running, which makes duplicate completion events no-ops.
func (s *Scheduler) Settle(taskID, result string, err error) bool {
	s.mu.Lock()
	defer s.unlockAndNotify()

	t, ok := s.tasks[taskID]
	if !ok || t.Status != TaskRunning {
		return false
	}

	now := time.Now()
	t.CompletedAt = now
	duration := now.Sub(t.StartedAt)
	delete(s.running, t.ID)
	s.locks.Release(destinationKey(t), t.ID)

	if err != nil {
		msg := err.Error()
		t.Status = TaskFailed
		t.ResultBrief = Brief(msg)
		t.ResultDetail = msg
		s.logger.Warn("task failed", "task", t.ID, "title", t.Title, "error", msg)
		s.noteLocked(Settlement{Task: t.Clone(), Err: err})
		s.bus.Publish(events.TopicTask, events.TaskFailedEvent{
			ID:        t.ID,
			Err:       err,
			Duration:  duration,
			Timestamp: now,
		})
	} else {
		t.Status = TaskCompleted
		t.ResultBrief = Brief(result)
		t.ResultDetail = result
		s.logger.Info("task completed", "task", t.ID, "title", t.Title, "duration", duration)
		s.noteLocked(Settlement{Task: t.Clone()})
		s.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        t.ID,
			Result:    result,
			Duration:  duration,
			Timestamp: now,
		})
	}

	s.settleLocked(t)
	s.pumpLocked()
	s.publishProgressLocked()
	return true
}

// OnSettled registers fn to run for every task that completes, fails or is
// cancelled by a dependency. It runs after the scheduler lock is released, on
// the goroutine that settled the task, so fn must not block. A nil fn
// unregisters.
func (s *Scheduler) OnSettled(fn func(Settlement)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSettled = fn
}

func (s *Scheduler) noteLocked(st Settlement) {
	if s.onSettled != nil {
		s.settled = append(s.settled, st)
	}
}

// unlockAndNotify releases mu, then hands every settlement recorded while it
// was held to the hook.
func (s *Scheduler) unlockAndNotify() {
	pending := s.settled
	s.settled = nil
	hook := s.onSettled
	s.mu.Unlock()

	if hook == nil {
		return
	}
	for _, st := range pending {
		hook(st)
	}
}

// settleLocked persists a terminal task and fans the outcome out to its
// children: completed parents unblock them, anything else cascades.
func (s *Scheduler) settleLocked(t *Task) {
	s.saveLocked(context.Background(), t)

	children, first := s.graph.MarkSettled(t.ID)
	if !first {
		return
	}
	for _, childID := range children {
		child, ok := s.tasks[childID]
		if !ok || child.Status != TaskQueued {
			continue
		}
		if t.Status != TaskCompleted {
			s.cascadeLocked(child, t.ID, "dependency failed: "+t.Title)
			continue
		}
		if s.graph.MarkReady(childID) {
			s.enqueueLocked(childID)
		}
	}
}

// cascadeLocked cancels a queued task that can never run.
func (s *Scheduler) cascadeLocked(t *Task, parentID, reason string) {
	if t.Status != TaskQueued {
		return
	}
	s.dequeueLocked(t.ID)

	now := time.Now()
	t.Status = TaskCancelled
	t.Cascade = true
	t.ResultBrief = reason
	t.ResultDetail = reason
	t.CompletedAt = now
	s.logger.Info("task cancelled", "task", t.ID, "title", t.Title, "reason", reason)
	s.noteLocked(Settlement{Task: t.Clone(), ParentID: parentID})
	s.bus.Publish(events.TopicTask, events.TaskCancelledEvent{
		ID:        t.ID,
		ParentID:  parentID,
		Reason:    reason,
		Timestamp: now,
	})
	s.settleLocked(t)
}

// blockingParentLocked returns the first parent that did not complete, or the
// ID of a parent the scheduler has never seen.
func (s *Scheduler) blockingParentLocked(t *Task) (*Task, string) {
	for _, id := range t.DependsOn {
		parent, ok := s.tasks[id]
		if !ok {
			return nil, id
		}
		if parent.Status == TaskFailed || parent.Status == TaskCancelled {
			return parent, ""
		}
	}
	return nil, ""
}

func (s *Scheduler) parentsCompletedLocked(t *Task) bool {
	for _, id := range t.DependsOn {
		parent, ok := s.tasks[id]
		if !ok || parent.Status != TaskCompleted {
			return false
		}
	}
	return true
}

func (s *Scheduler) enqueueLocked(id string) {
	for _, q := range s.queue {
		if q == id {
			return
		}
	}
	s.queue = append(s.queue, id)
}

func (s *Scheduler) dequeueLocked(id string) {
	for i, q := range s.queue {
		if q == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// pumpLocked starts the first admissible queued task until the ceiling is
// reached or nothing else can start.
func (s *Scheduler) pumpLocked() {
	if s.ctx.Err() != nil {
		return
	}
	for len(s.running) < s.maxConcurrent {
		next := -1
		for i := 0; i < len(s.queue); i++ {
			t, ok := s.tasks[s.queue[i]]
			if !ok || t.Status != TaskQueued {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				i--
				continue
			}
			if s.locks.Busy(destinationKey(t)) {
				continue
			}
			if parent, missing := s.blockingParentLocked(t); parent != nil || missing != "" {
				if parent != nil {
					s.cascadeLocked(t, parent.ID, "dependency failed: "+parent.Title)
				} else {
					s.cascadeLocked(t, missing, "dependency missing: "+missing)
				}
				i = -1
				continue
			}
			if !s.parentsCompletedLocked(t) {
				continue
			}
			next = i
			break
		}
		if next < 0 {
			return
		}

		id := s.queue[next]
		s.queue = append(s.queue[:next], s.queue[next+1:]...)
		s.startLocked(s.tasks[id])
	}
}

func (s *Scheduler) startLocked(t *Task) {
	s.locks.TryAcquire(destinationKey(t), t.ID)
	t.Status = TaskRunning
	t.StartedAt = time.Now()
	s.running[t.ID] = struct{}{}
	s.saveLocked(context.Background(), t)
	s.logger.Info("task started", "task", t.ID, "title", t.Title, "destination", t.DestinationID)
	s.bus.Publish(events.TopicTask, events.TaskStartedEvent{
		ID:            t.ID,
		Title:         t.Title,
		Mode:          string(t.Mode),
		DestinationID: t.DestinationID,
		Timestamp:     t.StartedAt,
	})

	if s.executor == nil {
		return
	}

	task := t.Clone()
	parents := make([]*Task, 0, len(t.DependsOn))
	for _, id := range t.DependsOn {
		if p, ok := s.tasks[id]; ok {
			parents = append(parents, p.Clone())
		}
	}
	s.wg.Go(func() {
		s.run(task, parents)
	})
}

func (s *Scheduler) run(task *Task, parents []*Task) {
	if s.preparer != nil && len(task.DependsOn) > 0 {
		prompt, err := s.preparer.Prepare(task, parents)
		if err != nil {
			s.Settle(task.ID, "", fmt.Errorf("prepare prompt: %w", err))
			return
		}
		task.Prompt = prompt
	}

	result, err := safeExecute(s.ctx, s.executor, task)
	s.Settle(task.ID, result, err)
}

func (s *Scheduler) saveLocked(ctx context.Context, t *Task) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveTask(ctx, t.Clone()); err != nil {
		s.logger.Error("failed to persist task", "task", t.ID, "error", err)
	}
}

func (s *Scheduler) publishProgressLocked() {
	st := s.statsLocked()
	s.bus.Publish(events.TopicScheduler, events.SchedulerProgressEvent{
		Total:     st.Total,
		Queued:    st.Queued,
		Running:   st.Running,
		Completed: st.Completed,
		Failed:    st.Failed,
		Cancelled: st.Cancelled,
		Timestamp: time.Now(),
	})
}

// Stats counts tasks by status.
type Stats struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// Active is the number of tasks that have not reached a terminal status.
func (st Stats) Active() int { return st.Queued + st.Running }

// Stats returns the current task counts.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Scheduler) statsLocked() Stats {
	st := Stats{Total: len(s.tasks)}
	for _, t := range s.tasks {
		switch t.Status {
		case TaskQueued:
			st.Queued++
		case TaskRunning:
			st.Running++
		case TaskCompleted:
			st.Completed++
		case TaskFailed:
			st.Failed++
		case TaskCancelled:
			st.Cancelled++
		}
	}
	return st
}

// Get returns a copy of the task.
func (s *Scheduler) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks in creation order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Task, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Running returns copies of the running tasks in creation order.
func (s *Scheduler) Running() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, id := range s.order {
		if _, ok := s.running[id]; ok {
			out = append(out, s.tasks[id].Clone())
		}
	}
	return out
}

// MaxConcurrent returns the current running-task ceiling.
func (s *Scheduler) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// SetMaxConcurrent changes the ceiling. Values below one are raised to one.
// Raising the ceiling admits waiting tasks immediately; lowering it never
// interrupts running ones.
func (s *Scheduler) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	defer s.unlockAndNotify()

	s.maxConcurrent = n
	s.pumpLocked()
}

// Remove drops terminal tasks from the scheduler and returns the IDs that
// were removed. Queued and running tasks are kept.
func (s *Scheduler) Remove(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok && t.Status.IsTerminal() {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	removed := make([]string, 0, len(drop))
	kept := s.order[:0]
	for _, id := range s.order {
		if drop[id] {
			delete(s.tasks, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.graph.Forget(removed)
	s.publishProgressLocked()
	return removed
}

// Wait blocks until every launched execution has settled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight executions and waits for them to settle.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// destinationKey falls back to the task ID so tasks without a destination
// never block each other.
func destinationKey(t *Task) string {
	if t.DestinationID != "" {
		return t.DestinationID
	}
	return "task:" + t.ID
}
