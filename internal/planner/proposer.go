package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aristath/butler/internal/backend"
	"github.com/aristath/butler/internal/plan"
)

// BackendProposer asks a completion backend for a plan.
type BackendProposer struct {
	backend backend.Backend
	logger  *slog.Logger
}

// NewBackendProposer creates a proposer on top of b. Wrap b in a Resilient
// to get retries and circuit breaking.
func NewBackendProposer(b backend.Backend, logger *slog.Logger) *BackendProposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendProposer{backend: b, logger: logger}
}

type proposalWire struct {
	AssistantText string        `json:"assistant_text"`
	Clarification bool          `json:"clarification"`
	Intents       []plan.Intent `json:"intents"`
}

// Propose sends the rendered planning prompt and decodes the reply. A reply
// with no JSON at all is taken as a plain answer with no intents.
func (p *BackendProposer) Propose(ctx context.Context, req ProposalRequest) (Proposal, error) {
	if req.Policy == "" {
		req.Policy = PolicyStandard
	}
	if err := req.Policy.validate(req); err != nil {
		return Proposal{}, err
	}

	resp, err := p.backend.Send(ctx, backend.Message{
		Role:    "user",
		Content: renderProposerPrompt(req),
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("propose: %w", err)
	}

	data, err := ExtractJSON(resp.Content)
	if errors.Is(err, ErrNoJSON) {
		p.logger.Debug("proposer replied without JSON", "policy", req.Policy)
		return Proposal{AssistantText: strings.TrimSpace(resp.Content)}, nil
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("propose: %w", err)
	}

	var wire proposalWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Proposal{}, fmt.Errorf("propose: decode reply: %w", err)
	}

	p.logger.Debug("proposal received",
		"policy", req.Policy,
		"intents", len(wire.Intents),
		"clarification", wire.Clarification,
	)

	return Proposal{
		AssistantText: strings.TrimSpace(wire.AssistantText),
		Intents:       wire.Intents,
		Clarification: wire.Clarification,
	}, nil
}
