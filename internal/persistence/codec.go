package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/butler/internal/plan"
	"github.com/aristath/butler/internal/scheduler"
)

func encodeHandoff(h *plan.HandoffSpec) (string, error) {
	if h == nil {
		return "", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode handoff: %w", err)
	}
	return string(data), nil
}

func decodeHandoff(raw string) (*plan.HandoffSpec, error) {
	if raw == "" {
		return nil, nil
	}
	var h plan.HandoffSpec
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("failed to decode handoff: %w", err)
	}
	return &h, nil
}

// unixNano stores the zero time as 0 so unset timestamps round-trip.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func statusNames(statuses []scheduler.TaskStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, st.String())
	}
	return out
}
