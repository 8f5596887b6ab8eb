// Package workerpool implements the Worker Pool (C7): a set of goroutines
// that pull task descriptions from a TaskSource (ultimately a server or
// hub, reached through a rpcproxy.Proxy) and run them through a
// caller-supplied TaskExecutor — task computation itself is out of this
// platform's scope.
//
// At most one worker is ever blocked inside RequestTask at a time: when
// the whole pool is idle, workers take turns being the "designated
// poller" so the upstream doesn't see N concurrent long-poll requests
// from one host. Cancellation is sticky per worker (set once, consulted
// by the running task's progress monitor, cleared when the task ends),
// and every progress-monitor checkpoint also consults the Courtesy
// Monitor before letting the task proceed.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwkimmel/jdcp-go/internal/courtesy"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// ErrTaskCancelled is returned by a ProgressMonitor checkpoint once the
// owning worker's cancellation flag has been set.
var ErrTaskCancelled = errors.New("workerpool: task cancelled")

// TaskSource is how the pool talks to its upstream (server or hub).
// RequestTask may block for a long time — the idle-directive handshake is
// exactly this: no work yet, come back later.
type TaskSource interface {
	RequestTask(ctx context.Context) (types.TaskDescription, error)
	SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error
	ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error
}

// TaskExecutor runs one task's payload to completion, consulting monitor
// at whatever checkpoints make sense for the workload.
type TaskExecutor interface {
	Execute(ctx context.Context, monitor *ProgressMonitor, task types.TaskDescription) ([]byte, error)
}

// ProgressMonitor is handed to a TaskExecutor so it can cooperate with
// cancellation and courtesy suspension without knowing about the pool.
type ProgressMonitor struct {
	worker   *workerState
	courtesy *courtesy.Monitor
}

// CheckPoint blocks while the courtesy gate is closed, then reports
// ErrTaskCancelled if this worker's task has been cancelled, or ctx's own
// error if ctx was cancelled first.
func (pm *ProgressMonitor) CheckPoint(ctx context.Context) error {
	pm.courtesy.WaitUntilAllowed()
	if pm.worker.cancelRequested.Load() {
		return ErrTaskCancelled
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

type workerState struct {
	id              int
	cancelRequested atomic.Bool

	mu      sync.Mutex
	jobID   types.JobID
	taskID  types.TaskID
	running bool
}

// current returns the (jobID, taskID) this worker is presently executing,
// and whether it is executing anything at all.
func (w *workerState) current() (types.JobID, types.TaskID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobID, w.taskID, w.running
}

func (w *workerState) setCurrent(jobID types.JobID, taskID types.TaskID) {
	w.mu.Lock()
	w.jobID, w.taskID, w.running = jobID, taskID, true
	w.mu.Unlock()
}

func (w *workerState) clearCurrent() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Pool is the Worker Pool (C7).
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	source   TaskSource
	executor TaskExecutor
	courtesy *courtesy.Monitor

	workers      map[int]*workerState
	nextWorkerID int
	maxWorkers   int
	polling      bool
	stopped      bool

	wg sync.WaitGroup
}

// New creates a Pool and starts initialWorkers goroutines against source,
// executing tasks with executor and gating on courtesyMonitor.
func New(source TaskSource, executor TaskExecutor, courtesyMonitor *courtesy.Monitor, initialWorkers int) *Pool {
	p := &Pool{
		source:     source,
		executor:   executor,
		courtesy:   courtesyMonitor,
		workers:    make(map[int]*workerState),
		maxWorkers: initialWorkers,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < initialWorkers; i++ {
		p.spawnLocked()
	}
	return p
}

// spawnLocked starts one more worker goroutine. Caller must hold p.mu.
func (p *Pool) spawnLocked() {
	w := &workerState{id: p.nextWorkerID}
	p.nextWorkerID++
	p.workers[w.id] = w
	p.wg.Add(1)
	go p.runWorker(w)
}

// SetMaxWorkers grows or shrinks the pool. Growing spawns new workers
// immediately; shrinking marks the highest-numbered workers for exit —
// they finish their current task (if any) and then stop, rather than
// being killed mid-task.
func (p *Pool) SetMaxWorkers(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 {
		n = 0
	}
	p.maxWorkers = n
	if len(p.workers) < n {
		for len(p.workers) < n {
			p.spawnLocked()
		}
	}
	p.cond.Broadcast()
}

// Cancel sets the sticky cancellation flag for workerID's current (or
// next) task. The flag is cleared automatically once that task returns.
func (p *Pool) Cancel(workerID int) {
	p.mu.Lock()
	w, ok := p.workers[workerID]
	p.mu.Unlock()
	if ok {
		w.cancelRequested.Store(true)
	}
}

// Stop signals every worker to exit after its current task (if any) and
// waits for them all to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// WorkerCount reports how many workers are currently running.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *Pool) runWorker(w *workerState) {
	defer func() {
		p.mu.Lock()
		delete(p.workers, w.id)
		p.mu.Unlock()
		p.wg.Done()
	}()

	for {
		if p.shouldExit(w) {
			return
		}

		td, ok := p.fetchNext(w)
		if !ok {
			continue
		}

		if td.IsIdle() {
			p.sleepIdle(td.IdleSeconds)
			continue
		}

		p.runTask(w, td)
	}
}

// shouldExit reports whether w should stop rather than fetch more work:
// the pool is stopped, or w has been shrunk out of maxWorkers.
func (p *Pool) shouldExit(w *workerState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped || w.id >= p.maxWorkers
}

// fetchNext arranges for exactly one worker at a time to be the
// designated poller blocked inside RequestTask; the rest wait on the
// condition variable until it returns, a shrink targets them for exit, or
// the pool stops.
func (p *Pool) fetchNext(w *workerState) (types.TaskDescription, bool) {
	p.mu.Lock()
	for p.polling && !p.stopped && w.id < p.maxWorkers {
		p.cond.Wait()
	}
	if p.stopped || w.id >= p.maxWorkers {
		p.mu.Unlock()
		return types.TaskDescription{}, false
	}
	p.polling = true
	p.mu.Unlock()

	td, err := p.source.RequestTask(context.Background())

	p.mu.Lock()
	p.polling = false
	p.cond.Broadcast()
	p.mu.Unlock()

	if err != nil {
		time.Sleep(time.Second)
		return types.TaskDescription{}, false
	}
	return td, true
}

func (p *Pool) sleepIdle(seconds int) {
	if seconds <= 0 {
		seconds = 1
	}
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	<-timer.C
}

func (p *Pool) runTask(w *workerState, td types.TaskDescription) {
	defer w.cancelRequested.Store(false)
	defer w.clearCurrent()
	w.setCurrent(td.JobID, td.TaskID)

	monitor := &ProgressMonitor{worker: w, courtesy: p.courtesy}
	ctx := context.Background()

	result, err := p.executor.Execute(ctx, monitor, td)
	if errors.Is(err, ErrTaskCancelled) {
		return
	}
	if err != nil {
		_ = p.source.ReportException(ctx, td.JobID, td.TaskID, err.Error())
		return
	}
	_ = p.source.SubmitTaskResult(ctx, td.JobID, td.TaskID, result)
}

// WorkerTask describes what one worker is presently executing.
type WorkerTask struct {
	WorkerID int
	JobID    types.JobID
	TaskID   types.TaskID
}

// CurrentTasks returns a snapshot of every worker that is presently
// executing a task, for the Completion Poller's (C8) liveness sweep.
func (p *Pool) CurrentTasks() []WorkerTask {
	p.mu.Lock()
	workers := make([]*workerState, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	tasks := make([]WorkerTask, 0, len(workers))
	for _, w := range workers {
		jobID, taskID, running := w.current()
		if !running {
			continue
		}
		tasks = append(tasks, WorkerTask{WorkerID: w.id, JobID: jobID, TaskID: taskID})
	}
	return tasks
}

// CancelTask cancels whichever worker is currently running (jobID, taskID),
// if any. It is a no-op if no worker currently holds that task.
func (p *Pool) CancelTask(jobID types.JobID, taskID types.TaskID) {
	for _, wt := range p.CurrentTasks() {
		if wt.JobID == jobID && wt.TaskID == taskID {
			p.Cancel(wt.WorkerID)
		}
	}
}
