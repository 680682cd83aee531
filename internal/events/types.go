package events

import (
	"time"
)

// Topic names a stream of related events.
type Topic string

const (
	TopicTask         Topic = "task"         // Task lifecycle
	TopicScheduler    Topic = "scheduler"    // Aggregate progress
	TopicChoice       Topic = "choice"       // Pending-choice arbitration
	TopicConversation Topic = "conversation" // Messages in the main conversation
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

const (
	EventTypeTaskQueued        = "task.queued"
	EventTypeTaskStarted       = "task.started"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeTaskCancelled     = "task.cancelled"
	EventTypeSchedulerProgress = "scheduler.progress"
	EventTypeChoiceOpened      = "choice.opened"
	EventTypeChoiceQueued      = "choice.queued"
	EventTypeChoiceResolved    = "choice.resolved"
	EventTypeMessage           = "conversation.message"
)

// TaskQueuedEvent is published when a task is accepted by the scheduler.
type TaskQueuedEvent struct {
	ID        string
	Title     string
	Mode      string
	GroupID   string
	Timestamp time.Time
}

func (e TaskQueuedEvent) EventType() string { return EventTypeTaskQueued }
func (e TaskQueuedEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a task is admitted to running.
type TaskStartedEvent struct {
	ID            string
	Title         string
	Mode          string
	DestinationID string
	Timestamp     time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task finishes successfully.
type TaskCompletedEvent struct {
	ID        string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task ran and the executor reported an
// error. Cascade failures are published as TaskCancelledEvent instead.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskCancelledEvent is published when a queued task is settled without
// running because an upstream task did not complete.
type TaskCancelledEvent struct {
	ID        string
	ParentID  string
	Reason    string
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string    { return e.ID }

// SchedulerProgressEvent is a snapshot of task counts by status.
type SchedulerProgressEvent struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
	Timestamp time.Time
}

func (e SchedulerProgressEvent) EventType() string { return EventTypeSchedulerProgress }
func (e SchedulerProgressEvent) TaskID() string    { return "" }

// ChoiceOpenedEvent is published when a choice becomes the live question.
type ChoiceOpenedEvent struct {
	ChoiceID     string
	Kind         string
	Prompt       string
	FailedTaskID string
	Timestamp    time.Time
}

func (e ChoiceOpenedEvent) EventType() string { return EventTypeChoiceOpened }
func (e ChoiceOpenedEvent) TaskID() string    { return e.FailedTaskID }

// ChoiceQueuedEvent is published when a choice waits behind the live one.
type ChoiceQueuedEvent struct {
	ChoiceID  string
	Kind      string
	Position  int
	Timestamp time.Time
}

func (e ChoiceQueuedEvent) EventType() string { return EventTypeChoiceQueued }
func (e ChoiceQueuedEvent) TaskID() string    { return "" }

// ChoiceResolvedEvent is published when the user answers the live choice.
type ChoiceResolvedEvent struct {
	ChoiceID  string
	Kind      string
	Answer    string
	Timestamp time.Time
}

func (e ChoiceResolvedEvent) EventType() string { return EventTypeChoiceResolved }
func (e ChoiceResolvedEvent) TaskID() string    { return "" }

// MessageEvent is published for every message appended to the conversation.
type MessageEvent struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

func (e MessageEvent) EventType() string { return EventTypeMessage }
func (e MessageEvent) TaskID() string    { return "" }
