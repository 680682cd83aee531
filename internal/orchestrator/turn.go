package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/planner"
)

// handleTurn runs on the inbox. A live choice consumes the message as its
// answer; otherwise the message is planned.
func (m *Manager) handleTurn(ctx context.Context, text string) {
	history := m.recentTurns(m.historyTurns)
	m.pushMessage(ctx, RoleUser, text)

	if c := m.currentChoice(); c != nil {
		m.answerChoice(ctx, c, text)
		return
	}

	proposal, err := m.proposer.Propose(ctx, planner.ProposalRequest{
		UserMessage: text,
		Policy:      planner.PolicyStandard,
		History:     history,
	})
	if err != nil {
		m.logger.Error("planning failed", "error", err)
		m.reply(ctx, "I could not plan that request: "+err.Error())
		return
	}

	intents := plan.Clone(proposal.Intents)
	if len(intents) == 0 {
		m.reply(ctx, noTaskReply(proposal))
		return
	}
	if err := checkPlan(intents); err != nil {
		m.reply(ctx, clarification(proposal.AssistantText, err))
		return
	}

	base := creation{OriginUserMessage: text, HabitAddendum: m.habitAddendum}
	if len(intents) == 1 {
		m.dispatch(ctx, Option{Dispatch: true, Intents: intents, AssistantText: proposal.AssistantText, creation: base})
		return
	}

	verdict := m.arbitrate(ctx, text, intents)
	if !isOversplit(verdict, m.threshold) {
		m.dispatch(ctx, Option{Dispatch: true, Intents: intents, AssistantText: proposal.AssistantText, creation: base})
		return
	}

	c := &Choice{
		ID:         ulid.Make().String(),
		Kind:       ChoiceOversplit,
		Hint:       hintOversplit,
		Reason:     verdict.Reason,
		Confidence: verdict.Confidence,
		CreatedAt:  time.Now(),
		Options: map[Answer]Option{
			AnswerA: m.singleTaskOption(ctx, text, history, base),
			AnswerB: {
				Dispatch:      true,
				Intents:       intents,
				AssistantText: orDefault(proposal.AssistantText, "Running plan B (original split)."),
				Summary:       summarizeOption(intents),
				creation:      base,
			},
		},
	}
	c.Prompt = oversplitPrompt(c)
	m.scheduleChoice(ctx, c)
}

func noTaskReply(p planner.Proposal) string {
	switch {
	case p.AssistantText != "":
		return p.AssistantText
	case p.Clarification:
		return "Please add the missing details."
	default:
		return "Noted."
	}
}

// checkPlan normalizes intents in place and validates the batch.
func checkPlan(intents []plan.Intent) error {
	if err := plan.NormalizeAll(intents); err != nil {
		return err
	}
	return plan.Validate(intents)
}

// answerChoice applies text to the live choice. An unparseable answer
// leaves the choice open and repeats the question.
func (m *Manager) answerChoice(ctx context.Context, c *Choice, text string) {
	answer, ok := ParseAnswer(c.Kind, text)
	if !ok {
		m.logger.Info("unrecognized choice answer", "choice", c.ID, "error", &ChoiceParseError{Kind: c.Kind, Input: text})
		m.reply(ctx, answerHelp(c.Kind))
		return
	}

	m.mu.Lock()
	m.choices.Resolve()
	m.mu.Unlock()

	m.bus.Publish(events.TopicChoice, events.ChoiceResolvedEvent{
		ChoiceID:  c.ID,
		Kind:      string(c.Kind),
		Answer:    string(answer),
		Timestamp: time.Now(),
	})

	opt := c.Options[answer]
	switch {
	case !opt.Dispatch:
		m.reply(ctx, opt.AssistantText)
	case len(opt.Intents) == 0:
		m.reply(ctx, "The chosen plan has no runnable tasks. Please restate the request.")
	default:
		if err := createWorkspaces(opt.MissingPaths); err != nil {
			m.logger.Warn("failed to create workspace", "error", err)
			m.reply(ctx, "Could not create the workspace. Please enter a usable path.\nError: "+err.Error())
			break
		}
		m.dispatch(ctx, opt)
	}

	m.promoteChoice(ctx)
}

// scheduleChoice makes c live and asks it, or queues it behind the live one.
func (m *Manager) scheduleChoice(ctx context.Context, c *Choice) {
	m.mu.Lock()
	live := m.choices.Schedule(c)
	position := m.choices.Queued()
	m.mu.Unlock()

	if live {
		m.announceChoice(ctx, c)
		return
	}

	m.bus.Publish(events.TopicChoice, events.ChoiceQueuedEvent{
		ChoiceID:  c.ID,
		Kind:      string(c.Kind),
		Position:  position,
		Timestamp: time.Now(),
	})
	m.reply(ctx, "Another decision ("+string(c.Kind)+") was added to the queue. Please answer the current one first.")
}

func (m *Manager) promoteChoice(ctx context.Context) {
	m.mu.Lock()
	next := m.choices.Promote()
	m.mu.Unlock()

	if next != nil {
		m.announceChoice(ctx, next)
	}
}

func (m *Manager) announceChoice(ctx context.Context, c *Choice) {
	m.bus.Publish(events.TopicChoice, events.ChoiceOpenedEvent{
		ChoiceID:     c.ID,
		Kind:         string(c.Kind),
		Prompt:       c.Prompt,
		FailedTaskID: c.FailedTaskID,
		Timestamp:    time.Now(),
	})
	m.reply(ctx, c.Prompt)
}

// dispatch materializes a validated option and reports the result. Intents
// naming a workspace that does not exist raise a workspace choice instead.
func (m *Manager) dispatch(ctx context.Context, opt Option) {
	intents := plan.Clone(opt.Intents)
	if err := checkPlan(intents); err != nil {
		m.reply(ctx, clarification(opt.AssistantText, err))
		return
	}
	missing, err := resolveWorkspaces(intents, m.workspaceRoot)
	if err != nil {
		m.reply(ctx, clarification(opt.AssistantText, err))
		return
	}
	if len(missing) > 0 {
		m.scheduleChoice(ctx, workspaceChoice(opt, intents, missing))
		return
	}

	res, err := m.materialize(ctx, intents, opt.creation)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			m.reply(ctx, clarification(opt.AssistantText, verr))
			return
		}
		m.logger.Error("dispatch failed", "error", err)
		m.reply(ctx, "Dispatch failed: "+err.Error())
		return
	}
	m.reply(ctx, dispatchReply(opt.AssistantText, res))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
