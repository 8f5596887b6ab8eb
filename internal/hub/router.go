// Package hub implements the Hub Router (C10): a multi-server multiplexer
// that presents a single downstream worker-facing endpoint while fanning
// out, FIFO-rotated, across a set of upstream servers (each reached through
// a reconnecting service proxy). The hub maintains a sticky job->upstream
// routing table so that a task's submitTaskResults/reportException/
// getTaskWorker/getClassDigest/getClassDefinition calls land back on
// whichever upstream produced the task, and runs its own aggregated
// completion-polling sweep so that getFinishedTasks keeps answering
// correctly even after a route has decayed.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/bwkimmel/jdcp-go/pkg/types"
)

var (
	// ErrUnknownUpstream is returned by Disconnect for a name the hub has
	// no connection for.
	ErrUnknownUpstream = errors.New("hub: unknown upstream")
	// ErrNoUpstreams is returned by RequestTask when the hub currently has
	// no upstream connections at all.
	ErrNoUpstreams = errors.New("hub: no upstream connections")
)

// UpstreamClient is the worker-facing subset of ComputeService a hub
// forwards to one upstream server. It is the same reduced surface a worker
// calls directly against a single server — the hub never calls createJob
// or submitJob upstream, since those are client-facing, not worker-facing.
type UpstreamClient interface {
	RequestTask(ctx context.Context) (types.TaskDescription, error)
	SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error
	ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error
	GetTaskWorker(ctx context.Context, jobID types.JobID) ([]byte, error)
	GetClassDigest(ctx context.Context, name string) (types.Digest, error)
	GetClassDefinition(ctx context.Context, name string, digest types.Digest) ([]byte, error)
	GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error)
}

type taskKey struct {
	jobID  types.JobID
	taskID types.TaskID
}

type upstream struct {
	name   string
	client UpstreamClient

	mu          sync.Mutex
	outstanding map[taskKey]struct{}
}

func newUpstream(name string, client UpstreamClient) *upstream {
	return &upstream{name: name, client: client, outstanding: make(map[taskKey]struct{})}
}

func (u *upstream) track(k taskKey) {
	u.mu.Lock()
	u.outstanding[k] = struct{}{}
	u.mu.Unlock()
}

func (u *upstream) untrack(k taskKey) {
	u.mu.Lock()
	delete(u.outstanding, k)
	u.mu.Unlock()
}

func (u *upstream) snapshot() []taskKey {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]taskKey, 0, len(u.outstanding))
	for k := range u.outstanding {
		out = append(out, k)
	}
	return out
}

// route is a sticky, explicitly refcounted job->upstream binding. It is
// evicted the instant its refcount reaches zero — no downstream worker
// still holds an in-flight task for that job — rather than lingering as a
// weak reference for a GC-like sweep to reclaim later, the same explicit
// refcounting discipline internal/classmanager uses for class snapshots.
type route struct {
	upstream *upstream
	refcount int
}

// Router is the Hub Router (C10).
type Router struct {
	mu          sync.Mutex
	order       []*upstream
	byName      map[string]*upstream
	routes      map[types.JobID]*route
	finished    map[taskKey]struct{}
	idleSeconds int

	sched        *gocron.Scheduler
	pollInterval time.Duration
}

// New creates an empty Router. idleSeconds is the sleep interval the hub
// tells a worker to use in its own idle directive when every upstream is
// idle; pollInterval governs the aggregated completion-polling sweep.
func New(idleSeconds int, pollInterval time.Duration) *Router {
	return &Router{
		byName:       make(map[string]*upstream),
		routes:       make(map[types.JobID]*route),
		finished:     make(map[taskKey]struct{}),
		idleSeconds:  idleSeconds,
		sched:        gocron.NewScheduler(time.UTC),
		pollInterval: pollInterval,
	}
}

// Start begins the aggregated completion-polling sweep.
func (r *Router) Start() {
	seconds := int(r.pollInterval / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	r.sched.Every(seconds).Seconds().Do(r.pollUpstreams)
	r.sched.StartAsync()
}

// Stop halts the aggregated completion-polling sweep.
func (r *Router) Stop() {
	r.sched.Stop()
}

// Connect adds client as a new upstream named name, appending it to the
// rotation. A name already connected is replaced in place (same rotation
// slot), matching reconnect-to-same-host semantics rather than duplicating
// the upstream.
func (r *Router) Connect(name string, client UpstreamClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok {
		existing.client = client
		return
	}
	u := newUpstream(name, client)
	r.byName[name] = u
	r.order = append(r.order, u)
}

// Disconnect drops the named upstream and invalidates every route pointing
// at it, so dangling per-task calls for its jobs fail closed instead of
// silently hanging: SubmitTaskResult and ReportException are logged and
// dropped, and the lookups return an empty result with a nil error.
func (r *Router) Disconnect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[name]
	if !ok {
		return ErrUnknownUpstream
	}
	delete(r.byName, name)
	for i, o := range r.order {
		if o == u {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for jobID, rt := range r.routes {
		if rt.upstream == u {
			delete(r.routes, jobID)
		}
	}
	return nil
}

// RequestTask rotates the upstream FIFO by one (head moves to tail) and
// asks each upstream in turn, starting from the new head, for a task.
// The first non-idle response is routed and returned; if every upstream
// reports idle, the hub's own configured idle directive is returned.
func (r *Router) RequestTask(ctx context.Context) (types.TaskDescription, error) {
	upstreams := r.rotateAndSnapshot()
	if len(upstreams) == 0 {
		return types.TaskDescription{}, ErrNoUpstreams
	}

	for _, u := range upstreams {
		td, err := u.client.RequestTask(ctx)
		if err != nil {
			log.Printf("hub: requestTask against upstream %q failed: %v", u.name, err)
			continue
		}
		if td.IsIdle() {
			continue
		}
		r.recordRoute(td.JobID, u)
		u.track(taskKey{td.JobID, td.TaskID})
		return td, nil
	}
	return types.TaskDescription{JobID: types.NilJobID, IdleSeconds: r.idleSeconds}, nil
}

// rotateAndSnapshot moves the current head to the tail and returns the new
// order, so a blocked or slow upstream does not get preferential retries
// on every call.
func (r *Router) rotateAndSnapshot() []*upstream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) > 1 {
		r.order = append(r.order[1:], r.order[0])
	}
	out := make([]*upstream, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Router) recordRoute(jobID types.JobID, u *upstream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[jobID]
	if !ok {
		r.routes[jobID] = &route{upstream: u, refcount: 1}
		return
	}
	rt.refcount++
}

func (r *Router) lookupRoute(jobID types.JobID) (*upstream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[jobID]
	if !ok {
		return nil, false
	}
	return rt.upstream, true
}

// releaseRoute decrements jobID's route refcount and evicts it immediately
// once no in-flight task still references it.
func (r *Router) releaseRoute(jobID types.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[jobID]
	if !ok {
		return
	}
	rt.refcount--
	if rt.refcount <= 0 {
		delete(r.routes, jobID)
	}
}

// SubmitTaskResult forwards to the upstream that produced (jobID, taskID).
// A missing route is logged and dropped, which is idempotent from the
// worker's perspective: it has already gotten the task it asked about.
func (r *Router) SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error {
	u, ok := r.lookupRoute(jobID)
	if !ok {
		log.Printf("hub: submitTaskResult for job %s with no route, dropping", jobID)
		return nil
	}
	err := u.client.SubmitTaskResult(ctx, jobID, taskID, result)
	u.untrack(taskKey{jobID, taskID})
	r.releaseRoute(jobID)
	return err
}

// ReportException forwards to the upstream that produced (jobID, taskID).
func (r *Router) ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error {
	u, ok := r.lookupRoute(jobID)
	if !ok {
		log.Printf("hub: reportException for job %s with no route, dropping", jobID)
		return nil
	}
	err := u.client.ReportException(ctx, jobID, taskID, message)
	u.untrack(taskKey{jobID, taskID})
	r.releaseRoute(jobID)
	return err
}

// GetTaskWorker forwards to jobID's routed upstream.
func (r *Router) GetTaskWorker(ctx context.Context, jobID types.JobID) ([]byte, error) {
	u, ok := r.lookupRoute(jobID)
	if !ok {
		return nil, nil
	}
	return u.client.GetTaskWorker(ctx, jobID)
}

// GetClassDigest forwards to jobID's routed upstream.
func (r *Router) GetClassDigest(ctx context.Context, jobID types.JobID, name string) (types.Digest, error) {
	u, ok := r.lookupRoute(jobID)
	if !ok {
		return types.Digest{}, nil
	}
	return u.client.GetClassDigest(ctx, name)
}

// GetClassDefinition forwards to jobID's routed upstream.
func (r *Router) GetClassDefinition(ctx context.Context, jobID types.JobID, name string, digest types.Digest) ([]byte, error) {
	u, ok := r.lookupRoute(jobID)
	if !ok {
		return nil, nil
	}
	return u.client.GetClassDefinition(ctx, name, digest)
}

// GetFinishedTasks answers from the hub's own completion cache first — kept
// fresh by pollUpstreams — so a task stays reportable-finished even after
// its route has decayed; anything not in the cache is reported not-finished
// rather than round-tripping synchronously.
func (r *Router) GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(jobIDs))
	for i := range jobIDs {
		_, out[i] = r.finished[taskKey{jobIDs[i], taskIDs[i]}]
	}
	return out, nil
}

// pollUpstreams asks each upstream for the completion status of every task
// the hub currently has outstanding there, marks upstream-complete tasks
// finished in the hub's own registry, releases their routes, and stops
// tracking them.
func (r *Router) pollUpstreams() {
	r.mu.Lock()
	upstreams := make([]*upstream, len(r.order))
	copy(upstreams, r.order)
	r.mu.Unlock()

	for _, u := range upstreams {
		keys := u.snapshot()
		if len(keys) == 0 {
			continue
		}
		jobIDs := make([]types.JobID, len(keys))
		taskIDs := make([]types.TaskID, len(keys))
		for i, k := range keys {
			jobIDs[i] = k.jobID
			taskIDs[i] = k.taskID
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.pollInterval)
		finished, err := u.client.GetFinishedTasks(ctx, jobIDs, taskIDs)
		cancel()
		if err != nil {
			log.Printf("hub: getFinishedTasks against upstream %q failed: %v", u.name, err)
			continue
		}

		r.mu.Lock()
		for i, done := range finished {
			if !done {
				continue
			}
			r.finished[keys[i]] = struct{}{}
			u.untrack(keys[i])
			if rt, ok := r.routes[keys[i].jobID]; ok {
				rt.refcount--
				if rt.refcount <= 0 {
					delete(r.routes, keys[i].jobID)
				}
			}
		}
		r.mu.Unlock()
	}
}
