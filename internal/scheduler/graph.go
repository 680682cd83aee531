package scheduler

import "sync"

// DependencyGraph tracks which parents each queued task is still waiting on.
// The scheduler owns one instance; alternate implementations can keep the
// bookkeeping elsewhere without changing the scheduler.
type DependencyGraph interface {
	// Add registers a task and the parents it waits on. Parents that have
	// already settled are not counted as unresolved.
	Add(taskID string, parentIDs []string)

	// MarkReady reports whether the task has no unresolved parents left and,
	// if so, drops its bookkeeping entry.
	MarkReady(taskID string) bool

	// MarkSettled records that a task reached a terminal status and removes
	// it from each child's unresolved set. first is false when the task was
	// already settled, in which case children is nil.
	MarkSettled(taskID string) (children []string, first bool)

	// Unresolved returns the number of parents the task still waits on.
	Unresolved(taskID string) int

	// Forget drops all bookkeeping for the given tasks.
	Forget(taskIDs []string)
}

// memoryGraph keeps both adjacency views in memory.
type memoryGraph struct {
	mu         sync.Mutex
	unresolved map[string]map[string]struct{} // taskID -> parents not yet settled
	children   map[string][]string            // parentID -> children in registration order
	settled    map[string]struct{}
}

// NewMemoryGraph returns an in-memory DependencyGraph.
func NewMemoryGraph() DependencyGraph {
	return &memoryGraph{
		unresolved: make(map[string]map[string]struct{}),
		children:   make(map[string][]string),
		settled:    make(map[string]struct{}),
	}
}

func (g *memoryGraph) Add(taskID string, parentIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := make(map[string]struct{}, len(parentIDs))
	seen := make(map[string]bool, len(parentIDs))
	for _, p := range parentIDs {
		if seen[p] {
			continue
		}
		seen[p] = true
		g.children[p] = append(g.children[p], taskID)
		if _, done := g.settled[p]; done {
			continue
		}
		set[p] = struct{}{}
	}
	g.unresolved[taskID] = set
}

func (g *memoryGraph) MarkReady(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.unresolved[taskID]) > 0 {
		return false
	}
	delete(g.unresolved, taskID)
	return true
}

func (g *memoryGraph) MarkSettled(taskID string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, done := g.settled[taskID]; done {
		return nil, false
	}
	g.settled[taskID] = struct{}{}
	delete(g.unresolved, taskID)

	children := append([]string(nil), g.children[taskID]...)
	for _, child := range children {
		if set, ok := g.unresolved[child]; ok {
			delete(set, taskID)
		}
	}
	return children, true
}

func (g *memoryGraph) Unresolved(taskID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.unresolved[taskID])
}

func (g *memoryGraph) Forget(taskIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range taskIDs {
		delete(g.unresolved, id)
		delete(g.children, id)
		delete(g.settled, id)
	}
}
