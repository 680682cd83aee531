package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aristath/butler/internal/backend"
	"github.com/aristath/butler/internal/plan"
)

// BackendClassifier asks a completion backend whether a plan is oversplit.
type BackendClassifier struct {
	backend backend.Backend
	logger  *slog.Logger
}

// NewBackendClassifier creates a classifier on top of b.
func NewBackendClassifier(b backend.Backend, logger *slog.Logger) *BackendClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendClassifier{backend: b, logger: logger}
}

type verdictWire struct {
	Verdict    string   `json:"verdict"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence"`
}

// Classify returns the raw verdict with confidence clamped to [0,1]. The
// threshold decision belongs to the caller.
func (c *BackendClassifier) Classify(ctx context.Context, userMessage string, intents []plan.Intent) (Verdict, error) {
	resp, err := c.backend.Send(ctx, backend.Message{
		Role:    "user",
		Content: renderClassifierPrompt(userMessage, intents),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: %w", err)
	}

	data, err := ExtractJSON(resp.Content)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: %w", err)
	}

	var wire verdictWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Verdict{}, fmt.Errorf("classify: decode reply: %w", err)
	}

	kind := VerdictKind(strings.TrimSpace(wire.Verdict))
	if kind != VerdictValidMulti && kind != VerdictSuspectedOversplit {
		return Verdict{}, fmt.Errorf("classify: unknown verdict %q", wire.Verdict)
	}
	reason := strings.TrimSpace(wire.Reason)
	if reason == "" {
		return Verdict{}, fmt.Errorf("classify: verdict has no reason")
	}
	if wire.Confidence == nil {
		return Verdict{}, fmt.Errorf("classify: verdict has no confidence")
	}

	v := Verdict{Kind: kind, Reason: reason, Confidence: clamp01(*wire.Confidence)}
	c.logger.Debug("oversplit verdict", "verdict", v.Kind, "confidence", v.Confidence)
	return v, nil
}
