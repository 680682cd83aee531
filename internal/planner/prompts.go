package planner

import (
	"fmt"
	"strings"

	"github.com/aristath/butler/internal/plan"
)

const proposerInstructions = `You are the dispatcher of a personal assistant. Decide whether the user's
request needs tasks and, if so, plan them. Reply with JSON only:

{"assistant_text":"...","clarification":false,"intents":[{"task_key":"...","title":"...",
"mode":"immediate|iterative|messaging|recurring","initial_prompt":"...",
"thread_strategy":"new|reuse-last-compatible","depends_on":["task_key"],"workspace_path":"...",
"handoff":{"method":"context|filesystem|both","note":"..."},
"acceptance_criteria":["..."],"max_iterations":0,
"messaging_intent":"...","recipient_hints":["..."],"tone":"...",
"recurrence":{"cron":"...","content_template":"..."}}]}

Rules:
- Return an empty intents list when the message needs only a reply.
- Set clarification to true and ask in assistant_text when the request is ambiguous.
- Split into several intents only when they are independently deliverable and one failing
  does not affect the others. A chain of steps toward one goal is one task.
- depends_on may only name task_key values from the same reply. No cycles.
- iterative intents need acceptance_criteria; recurring intents need recurrence.cron.
- Set workspace_path only when the user names a directory to work in. Relative paths are
  resolved against the configured workspace root.`

const classifierInstructions = `You judge task granularity and only decide whether a plan is oversplit.
A plan is valid_multi only when its tasks are semantically independent, independently
deliverable, and failures do not affect each other. A plan that is really a chain of steps
toward one goal (for example fetch, dedupe, send) is suspected_oversplit.
Reply with JSON only:
{"verdict":"valid_multi|suspected_oversplit","reason":"...","confidence":0.0}`

func renderProposerPrompt(req ProposalRequest) string {
	var b strings.Builder
	b.WriteString(proposerInstructions)
	b.WriteString("\n\n")

	if len(req.History) > 0 {
		b.WriteString("[Recent Conversation]\n")
		for _, t := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, strings.TrimSpace(t.Content))
		}
		b.WriteString("\n")
	}

	switch req.Policy {
	case PolicySingleTaskFirst:
		b.WriteString("[Planning Policy]\nsingle-task-first: the previous plan looked oversplit. ")
		b.WriteString("Return exactly one intent that covers the whole request.\n\n")
	case PolicyRetryReassign:
		r := req.Retry
		fmt.Fprintf(&b, "[Retry Reassign Context]\nfailed_task_title: %s\nfailed_task_mode: %s\nforced_mode: %s\n\n",
			r.FailedTaskTitle, r.FailedTaskMode, r.FailedTaskMode)
		fmt.Fprintf(&b, "[Failed Task Prompt]\n%s\n\n", r.FailedTaskPrompt)
		fmt.Fprintf(&b, "[Failure Error]\n%s\n\n", r.FailureError)
		fmt.Fprintf(&b, "[Original User Request For Retry]\n%s\n\n", r.OriginUserMessage)
		b.WriteString("[Retry Hard Constraints]\n")
		b.WriteString("- Create exactly 1 intent.\n")
		b.WriteString("- mode must equal failed_task_mode.\n")
		b.WriteString("- Keep the original request as the task body. Do not rewrite, weaken or replace it.\n")
		b.WriteString("- The new initial_prompt may only add the root cause and the fix.\n\n")
	}

	b.WriteString("[User Request]\n")
	b.WriteString(strings.TrimSpace(req.UserMessage))
	return b.String()
}

func renderClassifierPrompt(userMessage string, intents []plan.Intent) string {
	var b strings.Builder
	b.WriteString(classifierInstructions)
	b.WriteString("\n\n[User Request]\n")
	b.WriteString(strings.TrimSpace(userMessage))
	b.WriteString("\n\n[Candidate Plan]\n")
	b.WriteString(plan.Summarize(intents))
	b.WriteString("\n\n[Task]\nDecide whether the candidate plan is oversplit. confidence is how sure you are of the verdict.")
	return b.String()
}
