package plan

import (
	"fmt"
	"strings"
)

// Summarize renders one line per intent, used in choice prompts and as the
// candidate plan shown to the oversplit classifier.
func Summarize(intents []Intent) string {
	if len(intents) == 0 {
		return "(no tasks)"
	}
	lines := make([]string, 0, len(intents))
	for i, in := range intents {
		deps := "none"
		if len(in.DependsOn) > 0 {
			deps = strings.Join(in.DependsOn, ",")
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s | taskKey=%s | dependsOn=%s", i+1, in.Mode, in.Title, in.TaskKey, deps))
	}
	return strings.Join(lines, "\n")
}
