// Package jobmanager implements the Job Manager (C5): job lifecycle state
// (New -> Running -> {Stalled, Complete, Cancelled}), the task-production
// pump that feeds the Task Scheduler, idempotent result/exception
// handling, and progress-event publication for waitForJobStatusChange.
//
// Task payload generation is a caller-supplied concern (a TaskGenerator),
// not something this package computes: per the platform's scope, the
// server distributes and schedules task payloads but never interprets
// them.
package jobmanager

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bwkimmel/jdcp-go/internal/classmanager"
	"github.com/bwkimmel/jdcp-go/internal/scheduler"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

var (
	// ErrJobNotFound is returned for any operation on an unknown job id.
	ErrJobNotFound = errors.New("jobmanager: job not found")
	// ErrJobTerminal is returned when an operation requires a live job but
	// the job has already reached Complete or Cancelled. Resume also
	// returns it for any job that is not Stalled, including a Running one.
	ErrJobTerminal = errors.New("jobmanager: job already in a terminal state")
	// ErrUnknownTask is returned when a result or exception is reported
	// for a task id the job manager has no record of (already resolved,
	// or never issued).
	ErrUnknownTask = errors.New("jobmanager: unknown or already-resolved task")
)

// TaskGenerator produces a job's task payloads lazily, so the production
// pump only materializes as many tasks as the in-flight window allows.
// NextTask's ok return distinguishes two different "no payload" outcomes,
// told apart by IsComplete: ok false while IsComplete is also false means
// nothing is ready yet but more may follow once outstanding results come
// back (the pump stalls the job and retries on the next result or pump
// tick); ok false once IsComplete is true means the generator is
// permanently exhausted.
type TaskGenerator interface {
	NextTask() (payload []byte, ok bool, err error)
	IsComplete() bool
}

// maxInFlightPerJob bounds how many tasks the pump keeps queued in the
// scheduler at once for a single job, so one job with a huge backlog
// doesn't starve the scheduler's round robin of headroom.
const maxInFlightPerJob = 64

// pumpInterval is how often the background pump sweeps all running jobs
// for generator work, independent of the event-driven kick a result or
// exception report gives it.
const pumpInterval = 500 * time.Millisecond

type job struct {
	id          types.JobID
	description string
	priority    int
	snapshot    classmanager.SnapshotID
	generator   TaskGenerator

	state         types.JobState
	statusMessage string
	progress      float64
	hasProgress   bool
	eventID       int64

	nextTaskID  types.TaskID
	outstanding map[types.TaskID]struct{}
	// autoStalled marks a Stalled state the pump entered on its own because
	// the generator had nothing ready; the pump keeps retrying it on every
	// result and tick. A Stalled state left false means ReportException put
	// the job there, and only an explicit Resume lifts it.
	autoStalled bool

	cond *sync.Cond
}

// Manager is the Job Manager (C5).
type Manager struct {
	mu        sync.RWMutex
	jobs      map[types.JobID]*job
	scheduler *scheduler.Scheduler
	classes   *classmanager.Manager

	kick chan struct{}

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Manager that dispatches tasks into sched and starts its
// background production pump. classes may be nil in tests that don't care
// about class-snapshot release; a real server always supplies one so a
// job's snapshot is released the instant it reaches a terminal state, per
// the lifecycle invariant that terminal states hold no class references.
func New(sched *scheduler.Scheduler, classes *classmanager.Manager) *Manager {
	m := &Manager{
		jobs:      make(map[types.JobID]*job),
		scheduler: sched,
		classes:   classes,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	m.wg.Add(1)
	go m.pumpLoop()
	return m
}

func (m *Manager) releaseSnapshot(snap classmanager.SnapshotID) {
	if m.classes == nil {
		return
	}
	if err := m.classes.ReleaseSnapshot(snap); err != nil {
		log.Printf("jobmanager: release snapshot %d: %v", snap, err)
	}
}

// Close stops the background pump. The Manager must not be used
// afterward.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

// CreateJob registers a new job under the caller-supplied id in state New
// and immediately transitions it to Running. The production pump begins
// drawing tasks from generator on its next tick.
func (m *Manager) CreateJob(id types.JobID, description string, priority int, snap classmanager.SnapshotID, generator TaskGenerator) {
	j := &job{
		id:          id,
		description: description,
		priority:    priority,
		snapshot:    snap,
		generator:   generator,
		state:       types.JobRunning,
		outstanding: make(map[types.TaskID]struct{}),
		nextTaskID:  1,
	}
	j.cond = sync.NewCond(&sync.Mutex{})

	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	m.scheduler.AddJob(id, priority)
	m.requestPump()
}

// requestPump nudges the background pump without blocking; a pump already
// scheduled absorbs the request.
func (m *Manager) requestPump() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) pumpLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.pumpAll()
		case <-m.kick:
			m.pumpAll()
		}
	}
}

func (m *Manager) pumpAll() {
	m.mu.RLock()
	jobs := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.RUnlock()

	for _, j := range jobs {
		m.pumpJob(j)
	}
}

// pumpJob draws tasks from j's generator until the in-flight window is
// full, the generator has nothing ready, or it errors (which stalls the
// job). A generator that has nothing ready yet but isn't permanently
// exhausted stalls the job too, but only when results still outstanding
// might be what it's waiting on; that stall lifts on its own, on the next
// result or pump tick, without an explicit Resume.
func (m *Manager) pumpJob(j *job) {
	j.cond.L.Lock()
	if !(j.state == types.JobRunning || (j.state == types.JobStalled && j.autoStalled)) {
		j.cond.L.Unlock()
		return
	}

	produced := false
	notReady := false
	for len(j.outstanding) < maxInFlightPerJob {
		payload, ok, err := j.generator.NextTask()
		if err != nil {
			j.state = types.JobStalled
			j.autoStalled = false
			j.statusMessage = "task generator error: " + err.Error()
			j.eventID++
			j.cond.L.Unlock()
			j.cond.Broadcast()
			return
		}
		if !ok {
			notReady = !j.generator.IsComplete()
			break
		}
		produced = true
		taskID := j.nextTaskID
		j.nextTaskID++
		j.outstanding[taskID] = struct{}{}
		m.scheduler.Add(j.id, taskID, payload)
	}

	switch {
	case j.generator.IsComplete() && len(j.outstanding) == 0:
		j.state = types.JobComplete
		j.statusMessage = "complete"
		j.hasProgress = true
		j.progress = 1
		j.eventID++
		snap := j.snapshot
		j.cond.L.Unlock()
		j.cond.Broadcast()
		m.scheduler.RemoveJob(j.id)
		m.releaseSnapshot(snap)
		return
	case (!produced || notReady) && len(j.outstanding) > 0 && j.state == types.JobRunning:
		j.state = types.JobStalled
		j.autoStalled = true
		j.statusMessage = "waiting for outstanding results"
		j.eventID++
		j.cond.L.Unlock()
		j.cond.Broadcast()
		return
	case produced && j.state == types.JobStalled && j.autoStalled:
		j.state = types.JobRunning
		j.autoStalled = false
		j.statusMessage = ""
		j.eventID++
		j.cond.L.Unlock()
		j.cond.Broadcast()
		return
	}
	j.cond.L.Unlock()
}

// SubmitTaskResult records a successful task result. It is idempotent:
// resubmitting a result for a task already resolved returns
// ErrUnknownTask rather than double-counting progress.
func (m *Manager) SubmitTaskResult(jobID types.JobID, taskID types.TaskID) error {
	j, err := m.findJob(jobID)
	if err != nil {
		return err
	}

	j.cond.L.Lock()
	if _, ok := j.outstanding[taskID]; !ok {
		j.cond.L.Unlock()
		return ErrUnknownTask
	}
	delete(j.outstanding, taskID)
	j.eventID++
	j.cond.L.Unlock()
	j.cond.Broadcast()

	m.scheduler.Remove(jobID, taskID)
	m.requestPump()
	return nil
}

// ReportException records that a task failed unrecoverably, moving the
// job to Stalled. A stalled job stops producing new tasks until Resume or
// Cancel is called; its already-outstanding tasks are left as is.
func (m *Manager) ReportException(jobID types.JobID, taskID types.TaskID, message string) error {
	j, err := m.findJob(jobID)
	if err != nil {
		return err
	}

	j.cond.L.Lock()
	if _, ok := j.outstanding[taskID]; !ok {
		j.cond.L.Unlock()
		return ErrUnknownTask
	}
	delete(j.outstanding, taskID)
	j.state = types.JobStalled
	j.autoStalled = false
	j.statusMessage = message
	j.eventID++
	j.cond.L.Unlock()
	j.cond.Broadcast()

	m.scheduler.Remove(jobID, taskID)
	return nil
}

// Resume transitions a Stalled job back to Running, letting the pump
// resume drawing tasks from its generator.
func (m *Manager) Resume(jobID types.JobID) error {
	j, err := m.findJob(jobID)
	if err != nil {
		return err
	}
	j.cond.L.Lock()
	if j.state != types.JobStalled {
		j.cond.L.Unlock()
		return ErrJobTerminal
	}
	j.state = types.JobRunning
	j.autoStalled = false
	j.eventID++
	j.cond.L.Unlock()
	j.cond.Broadcast()
	m.requestPump()
	return nil
}

// CancelJob moves a job to Cancelled, discarding any of its tasks still
// outstanding in the scheduler. Cancelling an already-terminal job is a
// no-op.
func (m *Manager) CancelJob(jobID types.JobID) error {
	j, err := m.findJob(jobID)
	if err != nil {
		return err
	}

	j.cond.L.Lock()
	if j.state.Terminal() {
		j.cond.L.Unlock()
		return nil
	}
	j.state = types.JobCancelled
	j.statusMessage = "cancelled"
	j.eventID++
	snap := j.snapshot
	j.cond.L.Unlock()
	j.cond.Broadcast()

	m.scheduler.RemoveJob(jobID)
	m.releaseSnapshot(snap)
	return nil
}

// SnapshotOf returns the class-snapshot id a job was created against, so
// the server can resolve class lookups scoped to that job.
func (m *Manager) SnapshotOf(jobID types.JobID) (classmanager.SnapshotID, error) {
	j, err := m.findJob(jobID)
	if err != nil {
		return 0, err
	}
	j.cond.L.Lock()
	defer j.cond.L.Unlock()
	return j.snapshot, nil
}

// IsTaskFinished answers the getFinishedTasks protocol for one (jobID,
// taskID) pair: true iff jobID is unknown, jobID's job is terminal, or
// taskID is not currently outstanding for it. taskID == types.NoTaskID is
// the "is this job still active" wildcard, satisfied by the terminal check
// alone.
func (m *Manager) IsTaskFinished(jobID types.JobID, taskID types.TaskID) bool {
	j, err := m.findJob(jobID)
	if err != nil {
		return true
	}
	j.cond.L.Lock()
	defer j.cond.L.Unlock()
	if j.state.Terminal() {
		return true
	}
	if taskID == types.NoTaskID {
		return false
	}
	_, outstanding := j.outstanding[taskID]
	return !outstanding
}

// SetPriority changes a job's scheduling priority.
func (m *Manager) SetPriority(jobID types.JobID, priority int) error {
	j, err := m.findJob(jobID)
	if err != nil {
		return err
	}
	j.cond.L.Lock()
	j.priority = priority
	j.cond.L.Unlock()
	m.scheduler.SetPriority(jobID, priority)
	return nil
}

// Status returns a point-in-time snapshot of a job's progress.
func (m *Manager) Status(jobID types.JobID) (types.JobStatus, error) {
	j, err := m.findJob(jobID)
	if err != nil {
		return types.JobStatus{}, err
	}
	j.cond.L.Lock()
	defer j.cond.L.Unlock()
	return j.snapshotLocked(), nil
}

// WaitForStatusChange blocks until jobId's eventId advances past
// sinceEventID, ctx is cancelled, or timeout elapses — whichever comes
// first — then returns the current status.
func (m *Manager) WaitForStatusChange(ctx context.Context, jobID types.JobID, sinceEventID int64, timeout time.Duration) (types.JobStatus, error) {
	j, err := m.findJob(jobID)
	if err != nil {
		return types.JobStatus{}, err
	}

	done := make(chan types.JobStatus, 1)
	go func() {
		j.cond.L.Lock()
		for j.eventID <= sinceEventID && !j.state.Terminal() {
			j.cond.Wait()
		}
		status := j.snapshotLocked()
		j.cond.L.Unlock()
		done <- status
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case status := <-done:
		if status.EventID > sinceEventID {
			return status, nil
		}
		// A terminal job publishes no newer event; wait out the timeout as
		// for any other unchanged job.
		select {
		case <-timer.C:
			return status, nil
		case <-ctx.Done():
			return types.JobStatus{}, ctx.Err()
		}
	case <-timer.C:
		j.cond.L.Lock()
		status := j.snapshotLocked()
		j.cond.L.Unlock()
		return status, nil
	case <-ctx.Done():
		return types.JobStatus{}, ctx.Err()
	}
}

// snapshotLocked builds a JobStatus from j's current fields. The caller
// must hold j.cond.L.
func (j *job) snapshotLocked() types.JobStatus {
	return types.JobStatus{
		JobID:       j.id,
		Description: j.description,
		State:       j.state,
		Progress:    j.progress,
		HasProgress: j.hasProgress,
		Status:      j.statusMessage,
		EventID:     j.eventID,
	}
}

func (m *Manager) findJob(jobID types.JobID) (*job, error) {
	m.mu.RLock()
	j, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}
