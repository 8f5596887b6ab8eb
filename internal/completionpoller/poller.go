// Package completionpoller implements the Completion Poller (C8): the
// worker-side loop that periodically asks the server which of this host's
// in-flight tasks are no longer needed, and which of its cached-but-unused
// job entries can be dropped. The platform never pushes cancellation to a
// worker; this poll is the only channel for it.
package completionpoller

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/bwkimmel/jdcp-go/internal/workerpool"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// RunningTasks reports what a worker pool currently has in flight, and can
// cancel one of them. Satisfied by *workerpool.Pool.
type RunningTasks interface {
	CurrentTasks() []workerpool.WorkerTask
	CancelTask(jobID types.JobID, taskID types.TaskID)
}

// EntryCache tracks job-scoped entries (e.g. cached class snapshots) this
// host holds even when no worker is actively running a task for that job,
// so they too can be reconciled against the server's view and dropped once
// unused.
type EntryCache interface {
	UnusedJobIDs() []types.JobID
	Evict(jobID types.JobID)
}

// FinishedTaskService is the subset of the worker-facing RPC surface this
// poller needs: given parallel jobID/taskID slices, report which of them
// the server considers finished (result already accepted, job terminal, or
// simply unknown).
type FinishedTaskService interface {
	GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error)
}

// Poller is the Completion Poller (C8).
type Poller struct {
	pool     RunningTasks
	cache    EntryCache
	service  FinishedTaskService
	sched    *gocron.Scheduler
	interval time.Duration
}

// New creates a Poller. EntryCache may be nil if the worker host keeps no
// job-scoped cache beyond the in-flight tasks themselves.
func New(pool RunningTasks, cache EntryCache, service FinishedTaskService, interval time.Duration) *Poller {
	return &Poller{
		pool:     pool,
		cache:    cache,
		service:  service,
		sched:    gocron.NewScheduler(time.UTC),
		interval: interval,
	}
}

// Start begins the periodic sweep. Call Stop to shut it down.
func (p *Poller) Start() {
	seconds := int(p.interval / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	p.sched.Every(seconds).Seconds().Do(p.sweep)
	p.sched.StartAsync()
}

// Stop halts the periodic sweep.
func (p *Poller) Stop() {
	p.sched.Stop()
}

// sweep runs one reconciliation pass: snapshot what this host holds, ask
// the server which entries are finished, then cancel or evict each one the
// server no longer needs. A transport failure is logged once and the next
// tick tries again, so a transient server outage never cascades.
func (p *Poller) sweep() {
	tasks := p.pool.CurrentTasks()

	var unusedJobs []types.JobID
	if p.cache != nil {
		unusedJobs = p.cache.UnusedJobIDs()
	}

	jobIDs := make([]types.JobID, 0, len(tasks)+len(unusedJobs))
	taskIDs := make([]types.TaskID, 0, len(tasks)+len(unusedJobs))
	for _, t := range tasks {
		jobIDs = append(jobIDs, t.JobID)
		taskIDs = append(taskIDs, t.TaskID)
	}
	for _, jobID := range unusedJobs {
		jobIDs = append(jobIDs, jobID)
		taskIDs = append(taskIDs, types.NoTaskID)
	}
	if len(jobIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	finished, err := p.service.GetFinishedTasks(ctx, jobIDs, taskIDs)
	if err != nil {
		log.Printf("completionpoller: getFinishedTasks failed, retrying next tick: %v", err)
		return
	}

	n := len(tasks)
	for i, done := range finished {
		if !done {
			continue
		}
		if i < n {
			p.pool.CancelTask(jobIDs[i], taskIDs[i])
		} else if p.cache != nil {
			p.cache.Evict(jobIDs[i])
		}
	}
}
