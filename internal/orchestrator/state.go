package orchestrator

import (
	"time"
)

// Round is one user message and the assistant replies that followed it.
type Round struct {
	User      string    `json:"user"`
	Replies   []string  `json:"replies"`
	Timestamp time.Time `json:"timestamp"`
}

// ChoiceSummary describes the live choice for display.
type ChoiceSummary struct {
	ID        string     `json:"id"`
	Kind      ChoiceKind `json:"kind"`
	Hint      string     `json:"hint"`
	Prompt    string     `json:"prompt"`
	CreatedAt time.Time  `json:"created_at"`
	Queued    int        `json:"queued"`
}

// State is a snapshot of the conversation for UIs.
type State struct {
	ThreadID          string         `json:"thread_id"`
	RecentRounds      []Round        `json:"recent_rounds"`
	TotalMessageCount int            `json:"total_message_count"`
	ActiveTaskCount   int            `json:"active_task_count"`
	PendingChoice     *ChoiceSummary `json:"pending_choice,omitempty"`
}

// State returns the current conversation snapshot.
func (m *Manager) State() State {
	active := m.sched.Stats().Active()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		ThreadID:          m.threadID,
		RecentRounds:      m.roundsLocked(m.recentRounds),
		TotalMessageCount: len(m.messages),
		ActiveTaskCount:   active,
	}
	if c := m.choices.Current(); c != nil {
		st.PendingChoice = &ChoiceSummary{
			ID:        c.ID,
			Kind:      c.Kind,
			Hint:      c.Hint,
			Prompt:    c.Prompt,
			CreatedAt: c.CreatedAt,
			Queued:    m.choices.Queued(),
		}
	}
	return st
}

// roundsLocked groups the log into rounds and returns the last n. Assistant
// messages before the first user message form a round with no user text.
func (m *Manager) roundsLocked(n int) []Round {
	var rounds []Round
	for _, msg := range m.messages {
		if msg.Role == RoleUser {
			rounds = append(rounds, Round{User: msg.Content, Timestamp: msg.Timestamp})
			continue
		}
		if len(rounds) == 0 {
			rounds = append(rounds, Round{Timestamp: msg.Timestamp})
		}
		last := &rounds[len(rounds)-1]
		last.Replies = append(last.Replies, msg.Content)
	}
	if len(rounds) > n {
		rounds = rounds[len(rounds)-n:]
	}
	return rounds
}
