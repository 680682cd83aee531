package plan

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// ValidationError reports a structurally unsound plan. The whole batch is
// rejected; nothing from it may be dispatched.
type ValidationError struct {
	Msg   string
	Graph bool // dependency structure, as opposed to a malformed intent
}

func (e *ValidationError) Error() string { return e.Msg }

// Validate checks a batch of intents for unique keys, resolvable
// dependencies, self dependencies and cycles, in that order.
func Validate(intents []Intent) error {
	byKey := make(map[string]*Intent, len(intents))
	for i := range intents {
		key := intents[i].TaskKey
		if _, dup := byKey[key]; dup {
			return &ValidationError{Msg: fmt.Sprintf("duplicate task key: %s", key), Graph: true}
		}
		byKey[key] = &intents[i]
	}

	for _, in := range intents {
		for _, dep := range in.DependsOn {
			if _, ok := byKey[dep]; !ok {
				return &ValidationError{Msg: fmt.Sprintf("task %s depends on unknown task key: %s", in.TaskKey, dep), Graph: true}
			}
			if dep == in.TaskKey {
				return &ValidationError{Msg: fmt.Sprintf("task %s cannot depend on itself", in.TaskKey), Graph: true}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(intents))
	var hasCycle func(key string) bool
	hasCycle = func(key string) bool {
		switch state[key] {
		case visiting:
			return true
		case done:
			return false
		}
		state[key] = visiting
		for _, dep := range byKey[key].DependsOn {
			if hasCycle(dep) {
				return true
			}
		}
		state[key] = done
		return false
	}

	for _, in := range intents {
		if hasCycle(in.TaskKey) {
			return &ValidationError{Msg: "dependency graph contains a cycle and cannot be scheduled", Graph: true}
		}
	}
	return nil
}

// Order returns task keys so that every key appears after all of its
// dependencies. The batch must already have passed Validate.
func Order(intents []Intent) ([]string, error) {
	var edges []toposort.Edge
	for _, in := range intents {
		if len(in.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, in.TaskKey})
			continue
		}
		for _, dep := range in.DependsOn {
			edges = append(edges, toposort.Edge{dep, in.TaskKey})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("ordering plan: %w", err)
	}

	order := make([]string, 0, len(intents))
	for _, key := range sorted {
		if key != nil {
			order = append(order, key.(string))
		}
	}
	if len(order) != len(intents) {
		return nil, fmt.Errorf("ordering plan: expected %d keys, got %d", len(intents), len(order))
	}
	return order, nil
}
