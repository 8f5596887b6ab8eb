// Package scheduler implements the Task Scheduler (C4): a round-robin
// dispatcher over jobs kept in a heap ordered by (priority desc, creation
// order asc), delegating per-job task selection to a registry.Registry.
//
// Built on a hybrid design (a single source-of-truth map plus a secondary
// ordering index), adapted from a FIFO pending queue to a priority heap to
// give priority-aware round robin rather than plain FIFO.
package scheduler

import (
	"container/heap"
	"sync"

	"github.com/bwkimmel/jdcp-go/internal/registry"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// jobEntry is one job's scheduling state: its registry of outstanding tasks
// plus the priority/ordering fields the heap sorts on.
type jobEntry struct {
	jobID     types.JobID
	priority  int
	seq       int64 // creation order, monotonic, tie-break
	registry  *registry.Registry
	heapIndex int
}

// jobHeap orders entries by (-priority, seq) so that higher priority sorts
// first, and earlier creation order wins ties.
type jobHeap []*jobEntry

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *jobHeap) Push(x any) {
	e := x.(*jobEntry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

// Scheduler is the server's priority-aware round-robin task scheduler.
// Safe for concurrent use; operations are O(log N) in the number of jobs.
type Scheduler struct {
	mu      sync.Mutex
	h       jobHeap
	byJob   map[types.JobID]*jobEntry
	nextSeq int64
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		byJob: make(map[types.JobID]*jobEntry),
	}
}

// AddJob registers a new job with the scheduler at the given priority. It is
// a no-op if the job is already registered; call SetPriority to change an
// existing job's priority.
func (s *Scheduler) AddJob(jobID types.JobID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byJob[jobID]; exists {
		return
	}
	e := &jobEntry{
		jobID:    jobID,
		priority: priority,
		seq:      s.nextSeq,
		registry: registry.New(),
	}
	s.nextSeq++
	s.byJob[jobID] = e
	heap.Push(&s.h, e)
}

// Add registers a new task under jobId with the given taskId. The caller is
// responsible for minting a fresh, unique taskId (the
// Job Manager owns id assignment); Add merely records it. If jobId is not
// known to the scheduler, Add registers the job first at DefaultPriority.
func (s *Scheduler) Add(jobID types.JobID, taskID types.TaskID, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byJob[jobID]
	if !ok {
		e = &jobEntry{
			jobID:    jobID,
			priority: types.DefaultPriority,
			seq:      s.nextSeq,
			registry: registry.New(),
		}
		s.nextSeq++
		s.byJob[jobID] = e
		heap.Push(&s.h, e)
	}
	e.registry.AddTask(taskID, payload)
	// A job that was popped for lack of tasks and has now been refilled
	// needs to be back in the heap.
	if e.heapIndex < 0 {
		heap.Push(&s.h, e)
	}
}

// Remove removes a task from jobId's registry and returns its payload.
func (s *Scheduler) Remove(jobID types.JobID, taskID types.TaskID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byJob[jobID]
	if !ok {
		return nil, false
	}
	return e.registry.RemoveTask(taskID)
}

// SetPriority changes a job's priority and re-heapifies. No-op if the job is
// unknown.
func (s *Scheduler) SetPriority(jobID types.JobID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byJob[jobID]
	if !ok {
		return
	}
	e.priority = priority
	if e.heapIndex >= 0 {
		heap.Fix(&s.h, e.heapIndex)
	}
}

// RemoveJob drops a job from the scheduler entirely, discarding any
// outstanding tasks it still held.
func (s *Scheduler) RemoveJob(jobID types.JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byJob[jobID]
	if !ok {
		return
	}
	if e.heapIndex >= 0 {
		heap.Remove(&s.h, e.heapIndex)
	}
	delete(s.byJob, jobID)
}

// Outstanding reports how many tasks are currently registered for jobId.
func (s *Scheduler) Outstanding(jobID types.JobID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byJob[jobID]
	if !ok {
		return 0
	}
	return e.registry.Len()
}

// NextTask scans from the top of the heap: for each candidate job, advance
// its registry's round-robin cursor. If it yields a task, that job is
// re-keyed with a fresh seq and re-heapified — the same rotate-to-the-back
// move router.rotateAndSnapshot makes on every upstream poll — so the next
// call serves a different job among same-priority peers instead of
// re-draining this one until it empties. If the job's registry is empty,
// the job is popped from the heap (it will be re-pushed by a later Add)
// and the scan continues. Returns false if no job in the heap currently
// holds a task.
func (s *Scheduler) NextTask() (types.TaskDescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.h.Len() > 0 {
		e := s.h[0]
		taskID, ok := e.registry.NextRoundRobin()
		if ok {
			payload, _ := e.registry.Payload(taskID)
			e.seq = s.nextSeq
			s.nextSeq++
			heap.Fix(&s.h, e.heapIndex)
			return types.TaskDescription{JobID: e.jobID, TaskID: taskID, Payload: payload}, true
		}
		// Empty: pop it out of the heap until Add refills it.
		heap.Remove(&s.h, e.heapIndex)
	}
	return types.TaskDescription{}, false
}
