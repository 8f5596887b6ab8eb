// Package registry implements the per-job Task Registry (C3): the map of
// outstanding task-ids to task payloads, with a round-robin iteration order
// used by the scheduler to pick the next task for a job.
//
// Tasks form a cyclic list in insertion order. nextRoundRobin rotates a
// cursor one step forward and returns the task it lands on; remove can
// remove anywhere in the cycle.
package registry

import "github.com/bwkimmel/jdcp-go/pkg/types"

// Registry is the task registry for a single job. Not safe for concurrent
// use; callers (the scheduler) serialize access with their own lock.
type Registry struct {
	payloads map[types.TaskID][]byte
	// order is the cyclic list of task ids in insertion order.
	order []types.TaskID
	// pos is the cursor: the index whose task was most recently returned by
	// nextRoundRobin. -1 means "no task returned yet".
	pos int
}

// New creates an empty task registry.
func New() *Registry {
	return &Registry{
		payloads: make(map[types.TaskID][]byte),
		pos:      -1,
	}
}

// AddTask registers a new task. It is the caller's responsibility to ensure
// taskId is unique within this registry.
func (r *Registry) AddTask(taskID types.TaskID, payload []byte) {
	if _, exists := r.payloads[taskID]; exists {
		return
	}
	r.payloads[taskID] = payload
	r.order = append(r.order, taskID)
}

// RemoveTask removes a task by id, wherever it sits in the cycle, and
// returns its payload. The second return is false if the task was not
// present.
func (r *Registry) RemoveTask(taskID types.TaskID) ([]byte, bool) {
	payload, ok := r.payloads[taskID]
	if !ok {
		return nil, false
	}
	delete(r.payloads, taskID)

	idx := -1
	for i, id := range r.order {
		if id == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return payload, true
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)

	// Keep the cursor valid: if we removed an entry before or at pos, shift
	// it back one so the next rotation doesn't skip a task.
	if idx <= r.pos {
		r.pos--
	}
	return payload, true
}

// Contains reports whether taskId is currently registered.
func (r *Registry) Contains(taskID types.TaskID) bool {
	_, ok := r.payloads[taskID]
	return ok
}

// Len returns the number of outstanding tasks.
func (r *Registry) Len() int {
	return len(r.order)
}

// NextRoundRobin advances the cursor one step and returns the task id it
// landed on, or false if the registry is empty.
func (r *Registry) NextRoundRobin() (types.TaskID, bool) {
	if len(r.order) == 0 {
		r.pos = -1
		return 0, false
	}
	r.pos = (r.pos + 1) % len(r.order)
	return r.order[r.pos], true
}

// Iterator returns a snapshot slice of the task ids currently registered, in
// cyclic (insertion) order.
func (r *Registry) Iterator() []types.TaskID {
	out := make([]types.TaskID, len(r.order))
	copy(out, r.order)
	return out
}

// Payload returns the payload for a task id, if present.
func (r *Registry) Payload(taskID types.TaskID) ([]byte, bool) {
	p, ok := r.payloads[taskID]
	return p, ok
}
