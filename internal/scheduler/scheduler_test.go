package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/plan"
)

// recordingBus captures published events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(topic events.Topic, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) count(eventType, taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.EventType() == eventType && (taskID == "" || e.TaskID() == taskID) {
			n++
		}
	}
	return n
}

// memoryWriter is a TaskWriter keeping the latest version of each task.
type memoryWriter struct {
	mu    sync.Mutex
	saved map[string]*Task
	saves int
}

func (w *memoryWriter) SaveTask(ctx context.Context, task *Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saved == nil {
		w.saved = make(map[string]*Task)
	}
	w.saved[task.ID] = task
	w.saves++
	return nil
}

func newTask(id, dest string, deps ...string) *Task {
	return &Task{
		ID:            id,
		DestinationID: dest,
		Mode:          plan.ModeImmediate,
		Title:         "Task " + id,
		Prompt:        "do " + id,
		DependsOn:     deps,
	}
}

func mustGet(t *testing.T, s *Scheduler, id string) *Task {
	t.Helper()
	task, ok := s.Get(id)
	if !ok {
		t.Fatalf("task %q not found", id)
	}
	return task
}

func TestScheduler_ConcurrencyCeiling(t *testing.T) {
	bus := &recordingBus{}
	s := New(Config{MaxConcurrent: 2, Bus: bus})

	var batch []*Task
	for i := 0; i < 5; i++ {
		batch = append(batch, newTask(fmt.Sprintf("t%d", i), fmt.Sprintf("thread-%d", i)))
	}
	if err := s.Submit(context.Background(), batch); err != nil {
		t.Fatalf("submit: %v", err)
	}

	running := s.Running()
	if len(running) != 2 {
		t.Fatalf("expected 2 running tasks, got %d", len(running))
	}
	if running[0].ID != "t0" || running[1].ID != "t1" {
		t.Errorf("expected declaration order admission [t0 t1], got [%s %s]", running[0].ID, running[1].ID)
	}

	if !s.Settle("t0", "done", nil) {
		t.Fatal("expected settle to succeed")
	}
	running = s.Running()
	if len(running) != 2 || running[1].ID != "t2" {
		t.Errorf("expected t2 to be admitted after a slot freed, got %v", ids(running))
	}

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		s.Settle(id, "done", nil)
	}
	st := s.Stats()
	if st.Completed != 5 || st.Active() != 0 {
		t.Errorf("expected 5 completed and none active, got %+v", st)
	}
	if bus.count(events.EventTypeTaskStarted, "") != 5 {
		t.Errorf("expected 5 started events, got %d", bus.count(events.EventTypeTaskStarted, ""))
	}
}

func TestScheduler_DestinationExclusivity(t *testing.T) {
	s := New(Config{MaxConcurrent: 3})

	err := s.Submit(context.Background(), []*Task{
		newTask("a", "shared"),
		newTask("b", "shared"),
		newTask("c", "other"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	running := ids(s.Running())
	if strings.Join(running, ",") != "a,c" {
		t.Fatalf("expected [a c] running, got %v", running)
	}
	if mustGet(t, s, "b").Status != TaskQueued {
		t.Error("expected b to wait for the shared destination")
	}

	s.Settle("a", "ok", nil)
	if mustGet(t, s, "b").Status != TaskRunning {
		t.Error("expected b to start once the destination is free")
	}
}

func TestScheduler_TasksWithoutDestinationDoNotBlock(t *testing.T) {
	s := New(Config{MaxConcurrent: 3})
	_ = s.Submit(context.Background(), []*Task{newTask("a", ""), newTask("b", "")})

	if len(s.Running()) != 2 {
		t.Errorf("expected both tasks running, got %d", len(s.Running()))
	}
}

func TestScheduler_DependencyGating(t *testing.T) {
	s := New(Config{MaxConcurrent: 4})

	err := s.Submit(context.Background(), []*Task{
		newTask("fetch", "t1"),
		newTask("summarize", "t2", "fetch"),
		newTask("send", "t3", "summarize"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if got := ids(s.Running()); len(got) != 1 || got[0] != "fetch" {
		t.Fatalf("expected only fetch running, got %v", got)
	}

	s.Settle("fetch", "headlines", nil)
	if mustGet(t, s, "summarize").Status != TaskRunning {
		t.Fatal("expected summarize to start after fetch completed")
	}
	if mustGet(t, s, "send").Status != TaskQueued {
		t.Error("expected send to keep waiting")
	}

	s.Settle("summarize", "summary", nil)
	if mustGet(t, s, "send").Status != TaskRunning {
		t.Error("expected send to start after summarize completed")
	}
}

func TestScheduler_CascadeOnFailure(t *testing.T) {
	bus := &recordingBus{}
	s := New(Config{MaxConcurrent: 4, Bus: bus})

	_ = s.Submit(context.Background(), []*Task{
		newTask("a", "t1"),
		newTask("b", "t2", "a"),
		newTask("c", "t3", "b"),
		newTask("d", "t4"),
	})

	s.Settle("a", "", errors.New("network unreachable"))

	a := mustGet(t, s, "a")
	if a.Status != TaskFailed || a.Cascade {
		t.Errorf("expected a failed without cascade, got %s cascade=%v", a.Status, a.Cascade)
	}
	if a.ResultDetail != "network unreachable" {
		t.Errorf("expected error as result detail, got %q", a.ResultDetail)
	}

	for _, id := range []string{"b", "c"} {
		task := mustGet(t, s, id)
		if task.Status != TaskCancelled {
			t.Errorf("%s: expected cancelled, got %s", id, task.Status)
		}
		if !task.Cascade {
			t.Errorf("%s: expected cascade flag", id)
		}
		if !task.StartedAt.IsZero() {
			t.Errorf("%s: cascaded task must never start", id)
		}
	}
	if got := mustGet(t, s, "b").ResultBrief; got != "dependency failed: Task a" {
		t.Errorf("unexpected cascade reason %q", got)
	}
	if got := mustGet(t, s, "c").ResultBrief; got != "dependency failed: Task b" {
		t.Errorf("unexpected cascade reason %q", got)
	}

	if mustGet(t, s, "d").Status != TaskRunning {
		t.Error("expected unrelated task to keep running")
	}
	if bus.count(events.EventTypeTaskFailed, "") != 1 {
		t.Errorf("expected exactly one failed event, got %d", bus.count(events.EventTypeTaskFailed, ""))
	}
	if bus.count(events.EventTypeTaskCancelled, "") != 2 {
		t.Errorf("expected two cancelled events, got %d", bus.count(events.EventTypeTaskCancelled, ""))
	}
	if bus.count(events.EventTypeTaskStarted, "b")+bus.count(events.EventTypeTaskStarted, "c") != 0 {
		t.Error("cascaded tasks must not publish started events")
	}
}

func TestScheduler_OnSettledReportsEveryTerminalTask(t *testing.T) {
	s := New(Config{MaxConcurrent: 4})

	var got []Settlement
	s.OnSettled(func(st Settlement) {
		// Runs after the lock is released, so reading back must not deadlock.
		if _, ok := s.Get(st.Task.ID); !ok {
			t.Errorf("settled task %s not found", st.Task.ID)
		}
		got = append(got, st)
	})

	_ = s.Submit(context.Background(), []*Task{
		newTask("a", "t1"),
		newTask("b", "t2", "a"),
		newTask("ok", "t3"),
	})
	s.Settle("ok", "fine", nil)
	s.Settle("a", "", errors.New("disk full"))
	s.Settle("a", "", errors.New("disk full again"))

	if len(got) != 3 {
		t.Fatalf("expected 3 settlements, got %d", len(got))
	}
	if got[0].Task.ID != "ok" || got[0].Task.Status != TaskCompleted || got[0].Err != nil {
		t.Errorf("unexpected completion settlement: %+v", got[0])
	}
	if got[1].Task.ID != "a" || got[1].Task.Status != TaskFailed {
		t.Errorf("expected failed a, got %s %s", got[1].Task.ID, got[1].Task.Status)
	}
	if got[1].Err == nil || got[1].Err.Error() != "disk full" {
		t.Errorf("expected executor error, got %v", got[1].Err)
	}
	if got[2].Task.ID != "b" || got[2].Task.Status != TaskCancelled || !got[2].Task.Cascade {
		t.Errorf("expected cascaded b, got %+v", got[2].Task)
	}
	if got[2].ParentID != "a" {
		t.Errorf("expected cascade parent a, got %q", got[2].ParentID)
	}

	s.OnSettled(nil)
	_ = s.Submit(context.Background(), []*Task{newTask("late", "t4")})
	s.Settle("late", "done", nil)
	if len(got) != 3 {
		t.Errorf("expected no delivery after unregistering, got %d settlements", len(got))
	}
}

func TestScheduler_SettleIsIdempotent(t *testing.T) {
	bus := &recordingBus{}
	s := New(Config{MaxConcurrent: 1, Bus: bus})

	_ = s.Submit(context.Background(), []*Task{
		newTask("a", "t1"),
		newTask("b", "t2", "a"),
	})

	if !s.Settle("a", "ok", nil) {
		t.Fatal("expected first settle to succeed")
	}
	if s.Settle("a", "ok", nil) {
		t.Error("expected duplicate settle to be rejected")
	}
	if s.Settle("a", "", errors.New("late failure")) {
		t.Error("expected late failure on a settled task to be rejected")
	}
	if s.Settle("unknown", "ok", nil) {
		t.Error("expected settle of unknown task to be rejected")
	}

	if bus.count(events.EventTypeTaskStarted, "b") != 1 {
		t.Errorf("expected b to start exactly once, got %d", bus.count(events.EventTypeTaskStarted, "b"))
	}
	if bus.count(events.EventTypeTaskFailed, "a") != 0 {
		t.Error("duplicate settlement must not publish a failure")
	}
	if mustGet(t, s, "a").Status != TaskCompleted {
		t.Error("expected a to stay completed")
	}
}

func TestScheduler_MissingDependencyCascades(t *testing.T) {
	s := New(Config{})

	_ = s.Submit(context.Background(), []*Task{newTask("orphan", "t1", "ghost")})

	task := mustGet(t, s, "orphan")
	if task.Status != TaskCancelled || !task.Cascade {
		t.Fatalf("expected cascaded cancel, got %s cascade=%v", task.Status, task.Cascade)
	}
	if task.ResultBrief != "dependency missing: ghost" {
		t.Errorf("unexpected reason %q", task.ResultBrief)
	}
}

func TestScheduler_SubmitRejectsDuplicateIDs(t *testing.T) {
	s := New(Config{})
	_ = s.Submit(context.Background(), []*Task{newTask("a", "t1")})

	if err := s.Submit(context.Background(), []*Task{newTask("a", "t2")}); err == nil {
		t.Error("expected error for existing ID")
	}
	if err := s.Submit(context.Background(), []*Task{newTask("x", "t"), newTask("x", "t")}); err == nil {
		t.Error("expected error for duplicate ID in batch")
	}
	if _, ok := s.Get("x"); ok {
		t.Error("rejected batch must not be registered")
	}
}

func TestScheduler_SetMaxConcurrent(t *testing.T) {
	s := New(Config{MaxConcurrent: 1})
	_ = s.Submit(context.Background(), []*Task{
		newTask("a", "t1"), newTask("b", "t2"), newTask("c", "t3"),
	})

	if len(s.Running()) != 1 {
		t.Fatalf("expected 1 running, got %d", len(s.Running()))
	}

	s.SetMaxConcurrent(3)
	if len(s.Running()) != 3 {
		t.Errorf("expected raising the ceiling to admit waiting tasks, got %d", len(s.Running()))
	}

	s.SetMaxConcurrent(0)
	if s.MaxConcurrent() != 1 {
		t.Errorf("expected ceiling clamped to 1, got %d", s.MaxConcurrent())
	}
	if len(s.Running()) != 3 {
		t.Error("lowering the ceiling must not interrupt running tasks")
	}
}

func TestScheduler_Remove(t *testing.T) {
	s := New(Config{MaxConcurrent: 1})
	_ = s.Submit(context.Background(), []*Task{newTask("a", "t1"), newTask("b", "t2")})
	s.Settle("a", "ok", nil)

	removed := s.Remove([]string{"a", "b", "missing"})
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("expected only the terminal task removed, got %v", removed)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("expected a to be gone")
	}
	if got := ids(s.Tasks()); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected [b] left, got %v", got)
	}
}

func TestScheduler_PersistsTransitions(t *testing.T) {
	store := &memoryWriter{}
	s := New(Config{Store: store})

	_ = s.Submit(context.Background(), []*Task{newTask("a", "t1")})
	s.Settle("a", "first line\nsecond line", nil)

	saved := store.saved["a"]
	if saved == nil {
		t.Fatal("expected task to be persisted")
	}
	if saved.Status != TaskCompleted {
		t.Errorf("expected persisted status completed, got %s", saved.Status)
	}
	if saved.ResultBrief != "first line" {
		t.Errorf("expected brief to be the first line, got %q", saved.ResultBrief)
	}
	if store.saves != 3 {
		t.Errorf("expected queued, running and completed saves (3), got %d", store.saves)
	}
}

func TestScheduler_RunsExecutorWithPreparedPrompt(t *testing.T) {
	var mu sync.Mutex
	prompts := make(map[string]string)
	exec := ExecutorFunc(func(ctx context.Context, task *Task) (string, error) {
		mu.Lock()
		prompts[task.ID] = task.Prompt
		mu.Unlock()
		return "result of " + task.ID, nil
	})
	prep := preparerFunc(func(task *Task, parents []*Task) (string, error) {
		var parts []string
		for _, p := range parents {
			parts = append(parts, p.ID+"="+p.ResultDetail)
		}
		return strings.Join(parts, ";") + " | " + task.Prompt, nil
	})

	s := New(Config{MaxConcurrent: 2, Executor: exec, Preparer: prep})
	_ = s.Submit(context.Background(), []*Task{
		newTask("a", "t1"),
		newTask("b", "t2"),
		newTask("c", "t3", "a", "b"),
	})
	s.Wait()

	for _, id := range []string{"a", "b", "c"} {
		if got := mustGet(t, s, id).Status; got != TaskCompleted {
			t.Errorf("%s: expected completed, got %s", id, got)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if prompts["a"] != "do a" {
		t.Errorf("expected root prompt verbatim, got %q", prompts["a"])
	}
	if prompts["c"] != "a=result of a;b=result of b | do c" {
		t.Errorf("expected prepared prompt with parents, got %q", prompts["c"])
	}
}

func TestScheduler_ExecutorPanicFailsTask(t *testing.T) {
	bus := &recordingBus{}
	exec := ExecutorFunc(func(ctx context.Context, task *Task) (string, error) {
		panic("boom")
	})
	s := New(Config{Executor: exec, Bus: bus})
	_ = s.Submit(context.Background(), []*Task{newTask("a", "t1")})
	s.Wait()

	task := mustGet(t, s, "a")
	if task.Status != TaskFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if !strings.Contains(task.ResultDetail, "boom") {
		t.Errorf("expected panic value in result, got %q", task.ResultDetail)
	}
	if bus.count(events.EventTypeTaskFailed, "a") != 1 {
		t.Error("expected a failed event")
	}
}

func TestScheduler_ConcurrencyNeverExceeded(t *testing.T) {
	var current, peak atomic.Int32
	release := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, task *Task) (string, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return "ok", nil
	})

	s := New(Config{MaxConcurrent: 3, Executor: exec})
	var batch []*Task
	for i := 0; i < 12; i++ {
		batch = append(batch, newTask(fmt.Sprintf("t%d", i), fmt.Sprintf("thread-%d", i%5)))
	}
	_ = s.Submit(context.Background(), batch)
	close(release)
	s.Wait()

	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent executions, got %d", peak.Load())
	}
	if s.Stats().Completed != 12 {
		t.Errorf("expected all 12 tasks completed, got %+v", s.Stats())
	}
}

func TestScheduler_RestoreAllowsDependingOnHistory(t *testing.T) {
	s := New(Config{})
	s.Restore([]*Task{
		{ID: "old", Title: "Old", Status: TaskCompleted, ResultDetail: "kept"},
		{ID: "stale", Title: "Stale", Status: TaskRunning},
	})

	if _, ok := s.Get("stale"); ok {
		t.Error("expected non-terminal history to be ignored")
	}

	_ = s.Submit(context.Background(), []*Task{newTask("new", "t1", "old")})
	if mustGet(t, s, "new").Status != TaskRunning {
		t.Error("expected task depending on completed history to start")
	}
}

func TestParseTaskStatus(t *testing.T) {
	for _, st := range []TaskStatus{TaskQueued, TaskRunning, TaskCompleted, TaskFailed, TaskCancelled} {
		got, err := ParseTaskStatus(st.String())
		if err != nil || got != st {
			t.Errorf("round trip of %s: got %s, err %v", st, got, err)
		}
	}
	if _, err := ParseTaskStatus("paused"); err == nil {
		t.Error("expected error for unknown status")
	}
	if TaskRunning.IsTerminal() || !TaskCancelled.IsTerminal() {
		t.Error("unexpected IsTerminal result")
	}
}

func TestBrief(t *testing.T) {
	if got := Brief("  \nfirst\nsecond"); got != "first" {
		t.Errorf("expected first non-empty line, got %q", got)
	}
	long := strings.Repeat("x", 300)
	if got := []rune(Brief(long)); len(got) != briefLimit {
		t.Errorf("expected %d runes, got %d", briefLimit, len(got))
	}
}

type preparerFunc func(task *Task, parents []*Task) (string, error)

func (f preparerFunc) Prepare(task *Task, parents []*Task) (string, error) { return f(task, parents) }

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
