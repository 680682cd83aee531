// Package planner holds the completion-backed collaborators the orchestrator
// consults before anything is dispatched: the plan proposer that turns a user
// message into intents, and the classifier that judges whether a multi-task
// plan was split further than the request warrants.
package planner

import (
	"context"
	"fmt"

	"github.com/aristath/butler/internal/plan"
)

// Policy steers how the proposer plans.
type Policy string

const (
	PolicyStandard        Policy = "standard"
	PolicySingleTaskFirst Policy = "single-task-first"
	PolicyRetryReassign   Policy = "retry-reassign"
)

// Turn is one prior exchange handed to the proposer as context.
type Turn struct {
	Role    string
	Content string
}

// RetryContext describes the failed task a retry-reassign proposal replaces.
type RetryContext struct {
	FailedTaskTitle   string
	FailedTaskMode    plan.Mode
	FailedTaskPrompt  string
	FailureError      string
	OriginUserMessage string
}

// ProposalRequest is the input to one planning call.
type ProposalRequest struct {
	UserMessage string
	Policy      Policy
	History     []Turn
	Retry       *RetryContext // required when Policy is PolicyRetryReassign
}

// Proposal is what the proposer returns: text for the user plus zero or more
// intents. Clarification is set when the proposer needs more input instead.
type Proposal struct {
	AssistantText string
	Intents       []plan.Intent
	Clarification bool
}

// Proposer turns a user message into dispatch intents.
type Proposer interface {
	Propose(ctx context.Context, req ProposalRequest) (Proposal, error)
}

// VerdictKind is the classifier's judgement on a multi-task plan.
type VerdictKind string

const (
	VerdictValidMulti         VerdictKind = "valid_multi"
	VerdictSuspectedOversplit VerdictKind = "suspected_oversplit"
)

// Verdict is the classifier's answer. Confidence is in [0,1].
type Verdict struct {
	Kind       VerdictKind
	Reason     string
	Confidence float64
}

// Classifier judges whether a candidate plan is oversplit.
type Classifier interface {
	Classify(ctx context.Context, userMessage string, intents []plan.Intent) (Verdict, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, req ProposalRequest) (Proposal, error)

func (f ProposerFunc) Propose(ctx context.Context, req ProposalRequest) (Proposal, error) {
	return f(ctx, req)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, userMessage string, intents []plan.Intent) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, userMessage string, intents []plan.Intent) (Verdict, error) {
	return f(ctx, userMessage, intents)
}

func (p Policy) validate(req ProposalRequest) error {
	switch p {
	case PolicyStandard, PolicySingleTaskFirst:
		return nil
	case PolicyRetryReassign:
		if req.Retry == nil {
			return fmt.Errorf("policy %s requires a retry context", p)
		}
		return nil
	default:
		return fmt.Errorf("unknown planning policy %q", p)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
