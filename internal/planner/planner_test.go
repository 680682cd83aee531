package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/butler/internal/plan"
)

func TestBackendProposer_DecodesIntents(t *testing.T) {
	b := &scriptedBackend{responses: []any{"```json\n" + `{
		"assistant_text": "Two tasks queued.",
		"intents": [
			{"task_key":"weather","title":"Check weather","mode":"immediate","initial_prompt":"Check tomorrow's weather"},
			{"task_key":"mail","title":"Email Ann","mode":"messaging","initial_prompt":"Email Ann about lunch","depends_on":["weather"],
			 "handoff":{"method":"context","note":"mention rain"}}
		]
	}` + "\n```"}}

	p := NewBackendProposer(b, nil)
	got, err := p.Propose(context.Background(), ProposalRequest{UserMessage: "weather and email Ann"})
	require.NoError(t, err)

	assert.Equal(t, "Two tasks queued.", got.AssistantText)
	assert.False(t, got.Clarification)
	require.Len(t, got.Intents, 2)
	assert.Equal(t, "weather", got.Intents[0].TaskKey)
	assert.Equal(t, plan.ModeMessaging, got.Intents[1].Mode)
	assert.Equal(t, []string{"weather"}, got.Intents[1].DependsOn)
	require.NotNil(t, got.Intents[1].Handoff)
	assert.Equal(t, plan.HandoffContext, got.Intents[1].Handoff.Method)

	assert.Contains(t, b.LastPrompt(), "[User Request]\nweather and email Ann")
	assert.NotContains(t, b.LastPrompt(), "[Planning Policy]")
}

func TestBackendProposer_PlainReplyHasNoIntents(t *testing.T) {
	b := &scriptedBackend{responses: []any{"  Hello! Nothing to do here.  "}}

	got, err := NewBackendProposer(b, nil).Propose(context.Background(), ProposalRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello! Nothing to do here.", got.AssistantText)
	assert.Empty(t, got.Intents)
}

func TestBackendProposer_MalformedJSON(t *testing.T) {
	b := &scriptedBackend{responses: []any{`{"intents": [ }`}}

	_, err := NewBackendProposer(b, nil).Propose(context.Background(), ProposalRequest{UserMessage: "x"})
	require.Error(t, err)
}

func TestBackendProposer_BackendError(t *testing.T) {
	boom := errors.New("backend down")
	b := &scriptedBackend{responses: []any{boom}}

	_, err := NewBackendProposer(b, nil).Propose(context.Background(), ProposalRequest{UserMessage: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestBackendProposer_PolicyPrompts(t *testing.T) {
	b := &scriptedBackend{responses: []any{`{"intents":[]}`, `{"intents":[]}`}}
	p := NewBackendProposer(b, nil)

	_, err := p.Propose(context.Background(), ProposalRequest{
		UserMessage: "plan my trip",
		Policy:      PolicySingleTaskFirst,
		History:     []Turn{{Role: "user", Content: "earlier"}},
	})
	require.NoError(t, err)
	assert.Contains(t, b.LastPrompt(), "single-task-first")
	assert.Contains(t, b.LastPrompt(), "[Recent Conversation]\nuser: earlier")

	_, err = p.Propose(context.Background(), ProposalRequest{
		UserMessage: "plan my trip",
		Policy:      PolicyRetryReassign,
		Retry: &RetryContext{
			FailedTaskTitle:   "Book hotel",
			FailedTaskMode:    plan.ModeImmediate,
			FailedTaskPrompt:  "Book a hotel in Rome",
			FailureError:      "site unreachable",
			OriginUserMessage: "plan my trip",
		},
	})
	require.NoError(t, err)
	prompt := b.LastPrompt()
	assert.Contains(t, prompt, "forced_mode: immediate")
	assert.Contains(t, prompt, "[Failure Error]\nsite unreachable")
	assert.Contains(t, prompt, "Create exactly 1 intent.")
}

func TestBackendProposer_RejectsBadPolicy(t *testing.T) {
	b := &scriptedBackend{}
	p := NewBackendProposer(b, nil)

	_, err := p.Propose(context.Background(), ProposalRequest{UserMessage: "x", Policy: PolicyRetryReassign})
	require.Error(t, err)

	_, err = p.Propose(context.Background(), ProposalRequest{UserMessage: "x", Policy: "whatever"})
	require.Error(t, err)
	assert.Zero(t, b.CallCount())
}

func TestBackendClassifier(t *testing.T) {
	intents := []plan.Intent{
		{TaskKey: "fetch", Title: "Fetch news", Mode: plan.ModeImmediate},
		{TaskKey: "send", Title: "Send digest", Mode: plan.ModeMessaging, DependsOn: []string{"fetch"}},
	}

	tests := []struct {
		name    string
		reply   string
		want    Verdict
		wantErr bool
	}{
		{
			name:  "oversplit",
			reply: `{"verdict":"suspected_oversplit","reason":"one pipeline","confidence":0.8}`,
			want:  Verdict{Kind: VerdictSuspectedOversplit, Reason: "one pipeline", Confidence: 0.8},
		},
		{
			name:  "clamps confidence",
			reply: `Result: {"verdict":"valid_multi","reason":"independent","confidence":1.7}`,
			want:  Verdict{Kind: VerdictValidMulti, Reason: "independent", Confidence: 1},
		},
		{name: "unknown verdict", reply: `{"verdict":"maybe","reason":"x","confidence":0.5}`, wantErr: true},
		{name: "missing reason", reply: `{"verdict":"valid_multi","confidence":0.5}`, wantErr: true},
		{name: "missing confidence", reply: `{"verdict":"valid_multi","reason":"x"}`, wantErr: true},
		{name: "no json", reply: `I think it's fine`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scriptedBackend{responses: []any{tt.reply}}
			got, err := NewBackendClassifier(b, nil).Classify(context.Background(), "send me a news digest", intents)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			prompt := b.LastPrompt()
			assert.Contains(t, prompt, "[Candidate Plan]\n1. [immediate] Fetch news | taskKey=fetch | dependsOn=none")
			assert.Contains(t, prompt, "2. [messaging] Send digest | taskKey=send | dependsOn=fetch")
		})
	}
}

func TestFuncAdapters(t *testing.T) {
	var p Proposer = ProposerFunc(func(_ context.Context, req ProposalRequest) (Proposal, error) {
		return Proposal{AssistantText: req.UserMessage}, nil
	})
	got, err := p.Propose(context.Background(), ProposalRequest{UserMessage: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", got.AssistantText)

	var c Classifier = ClassifierFunc(func(context.Context, string, []plan.Intent) (Verdict, error) {
		return Verdict{Kind: VerdictValidMulti}, nil
	})
	v, err := c.Classify(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, VerdictValidMulti, v.Kind)
}
