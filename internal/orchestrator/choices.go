package orchestrator

import (
	"time"

	"github.com/aristath/butler/internal/plan"
)

// creation carries the turn-level context copied onto every task a plan
// materializes into.
type creation struct {
	OriginUserMessage string
	HabitAddendum     string
	RetryOfTaskID     string
	RetryAttempt      int
}

// Option is one branch of a choice. A dispatch option carries fully
// validated intents so it can be materialized without planning again.
type Option struct {
	Dispatch      bool
	Intents       []plan.Intent
	AssistantText string
	Summary       string
	MissingPaths  []string // created before dispatch
	creation      creation
}

// Choice is a question put to the user that the next message answers.
type Choice struct {
	ID           string
	Kind         ChoiceKind
	Prompt       string
	Hint         string
	Reason       string
	Confidence   float64
	FailedTaskID string
	Options      map[Answer]Option
	CreatedAt    time.Time
}

// ChoiceQueue holds the single live choice and the FIFO of choices raised
// while it was open. It is not safe for concurrent use.
type ChoiceQueue struct {
	current *Choice
	queued  []*Choice
}

// Schedule makes c live if nothing is, otherwise queues it. It reports
// whether c became live.
func (q *ChoiceQueue) Schedule(c *Choice) bool {
	if q.current == nil {
		q.current = c
		return true
	}
	q.queued = append(q.queued, c)
	return false
}

// Current returns the live choice, or nil.
func (q *ChoiceQueue) Current() *Choice {
	return q.current
}

// Resolve removes and returns the live choice.
func (q *ChoiceQueue) Resolve() *Choice {
	c := q.current
	q.current = nil
	return c
}

// Promote makes the oldest queued choice live when nothing is live, and
// returns it. It returns nil when a choice is already live or none is queued.
func (q *ChoiceQueue) Promote() *Choice {
	if q.current != nil || len(q.queued) == 0 {
		return nil
	}
	q.current = q.queued[0]
	q.queued[0] = nil
	q.queued = q.queued[1:]
	return q.current
}

// Len counts the live choice and the queued ones.
func (q *ChoiceQueue) Len() int {
	n := len(q.queued)
	if q.current != nil {
		n++
	}
	return n
}

// Queued returns the number of choices waiting behind the live one.
func (q *ChoiceQueue) Queued() int {
	return len(q.queued)
}

// Clear drops every choice.
func (q *ChoiceQueue) Clear() {
	q.current = nil
	q.queued = nil
}
