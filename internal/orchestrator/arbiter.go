package orchestrator

import (
	"context"
	"fmt"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/planner"
)

// arbitrate classifies a multi-task plan. A classifier failure is returned
// as a certain oversplit so the user decides instead of the plan fanning out.
func (m *Manager) arbitrate(ctx context.Context, userMessage string, intents []plan.Intent) planner.Verdict {
	v, err := m.classifier.Classify(ctx, userMessage, intents)
	if err != nil {
		cerr := &ClassifierError{Err: err}
		m.logger.Warn("oversplit classification failed", "error", err)
		return planner.Verdict{
			Kind:       planner.VerdictSuspectedOversplit,
			Reason:     cerr.Error(),
			Confidence: 1,
		}
	}
	m.logger.Debug("oversplit verdict", "verdict", v.Kind, "confidence", v.Confidence, "tasks", len(intents))
	return v
}

func isOversplit(v planner.Verdict, threshold float64) bool {
	return v.Kind == planner.VerdictSuspectedOversplit && v.Confidence >= threshold
}

// singleTaskOption replans the request as a single task. When the replan
// fails or does not yield exactly one valid intent, the option cancels.
func (m *Manager) singleTaskOption(ctx context.Context, userMessage string, history []planner.Turn, base creation) Option {
	cancel := func(reason string) Option {
		return Option{
			AssistantText: "Cancelled. Restate the request and I will plan it again.",
			Summary:       "Cancel this request (single-task replan unavailable: " + reason + ")",
		}
	}

	proposal, err := m.proposer.Propose(ctx, planner.ProposalRequest{
		UserMessage: userMessage,
		Policy:      planner.PolicySingleTaskFirst,
		History:     history,
	})
	if err != nil {
		m.logger.Warn("single-task replan failed", "error", err)
		return cancel(err.Error())
	}

	intents := plan.Clone(proposal.Intents)
	if len(intents) != 1 {
		return cancel(fmt.Sprintf("replan produced %d tasks", len(intents)))
	}
	if err := checkPlan(intents); err != nil {
		return cancel(err.Error())
	}

	return Option{
		Dispatch:      true,
		Intents:       intents,
		AssistantText: orDefault(proposal.AssistantText, "Running plan A (single task)."),
		Summary:       summarizeOption(intents),
		creation:      base,
	}
}
