package plan

import (
	"fmt"
	"strings"
)

// RenderContext carries turn-level text that every rendered prompt embeds.
type RenderContext struct {
	OriginUserMessage string
	HabitAddendum     string
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "none"
	}
	return s
}

// RenderPrompt builds the prompt stored on the task. The user's own request
// is embedded verbatim as the locked body; the planner's text only adds to it.
func RenderPrompt(in Intent, rc RenderContext) string {
	sections := []string{
		"[Locked Task Body]\n" + orNone(rc.OriginUserMessage),
		"[Task Objective]\n" + in.Title,
		"[Execution Requirements]\n" + in.InitialPrompt,
		"[User Habit Addendum]\n" + orNone(rc.HabitAddendum),
		"[Execution Guardrails]\n" +
			"- [Locked Task Body] is the user's original request and must be followed as written.\n" +
			"- [Execution Requirements] and [User Habit Addendum] are supplementary.\n" +
			"- On conflict, [Locked Task Body] wins.",
		"[Output & Acceptance]\n" + acceptance(in),
	}

	switch in.Mode {
	case ModeIterative:
		sections = append(sections, "[Acceptance Criteria]\n- "+strings.Join(in.AcceptanceCriteria, "\n- "))
		if in.MaxIterations > 0 {
			sections = append(sections, fmt.Sprintf("[Max Iterations]\n%d", in.MaxIterations))
		}
	case ModeMessaging:
		if in.MessagingIntent != "" {
			sections = append(sections, "[Message Intent]\n"+in.MessagingIntent)
		}
		if len(in.RecipientHints) > 0 {
			sections = append(sections, "[Recipient Hints]\n- "+strings.Join(in.RecipientHints, "\n- "))
		}
		if in.Tone != "" {
			sections = append(sections, "[Tone]\n"+in.Tone)
		}
	case ModeRecurring:
		if in.Recurrence != nil {
			sections = append(sections, fmt.Sprintf("[Recurrence]\ncron=%s\ntemplate=%s", in.Recurrence.Cron, orNone(in.Recurrence.ContentTemplate)))
		}
	}

	return strings.Join(sections, "\n\n")
}

func acceptance(in Intent) string {
	switch in.Mode {
	case ModeIterative:
		limit := "- Iteration limit: system default."
		if in.MaxIterations > 0 {
			limit = fmt.Sprintf("- Iteration limit: %d", in.MaxIterations)
		}
		return "- Every acceptance criterion must hold.\n- Report how each was verified.\n" + limit
	case ModeMessaging:
		return "- Produce a message that can be sent as is.\n- State the goal, audience and tone without dropping key facts."
	case ModeRecurring:
		return "- The recurrence settings are authoritative.\n- Each run must leave an auditable result or error summary."
	default:
		return "- Output must be directly deliverable and honor every user constraint."
	}
}
