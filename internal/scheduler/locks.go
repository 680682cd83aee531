package scheduler

import (
	"sort"
	"sync"
)

// DestinationLocks provides per-destination exclusivity for running tasks.
// Unlike a mutex it never blocks: the pump skips a task whose destination is
// held and picks another.
type DestinationLocks struct {
	mu   sync.Mutex
	held map[string]string // destinationID -> taskID holding it
}

// NewDestinationLocks creates an empty lock table.
func NewDestinationLocks() *DestinationLocks {
	return &DestinationLocks{
		held: make(map[string]string),
	}
}

// TryAcquire claims the destination for taskID. It returns false if another
// task holds it. Re-acquiring by the same task succeeds.
func (d *DestinationLocks) TryAcquire(destinationID, taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.held[destinationID]; ok && owner != taskID {
		return false
	}
	d.held[destinationID] = taskID
	return true
}

// Release frees the destination if taskID holds it.
func (d *DestinationLocks) Release(destinationID, taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.held[destinationID]; ok && owner == taskID {
		delete(d.held, destinationID)
	}
}

// Busy reports whether any task holds the destination.
func (d *DestinationLocks) Busy(destinationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.held[destinationID]
	return ok
}

// Held returns the currently held destinations in sorted order.
func (d *DestinationLocks) Held() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.held))
	for dest := range d.held {
		out = append(out, dest)
	}
	sort.Strings(out)
	return out
}
