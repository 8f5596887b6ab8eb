// Package integration exercises the real server, hub, and supporting
// managers wired together in-process, against real components rather
// than mocks.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/api/computepb"
	"github.com/bwkimmel/jdcp-go/internal/auth"
	"github.com/bwkimmel/jdcp-go/internal/classmanager"
	"github.com/bwkimmel/jdcp-go/internal/codecache"
	"github.com/bwkimmel/jdcp-go/internal/hub"
	"github.com/bwkimmel/jdcp-go/internal/jobmanager"
	"github.com/bwkimmel/jdcp-go/internal/scheduler"
	"github.com/bwkimmel/jdcp-go/internal/server"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// harness assembles one server's worth of real managers, backed by a
// temporary Code Cache directory.
type harness struct {
	cache   *codecache.Cache
	classes *classmanager.Manager
	sched   *scheduler.Scheduler
	jobs    *jobmanager.Manager
	srv     *server.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cache, err := codecache.Open(dir+"/cache.wal", dir+"/cache.snapshot")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	classes := classmanager.New(cache)
	sched := scheduler.New()
	jobs := jobmanager.New(sched, classes)
	t.Cleanup(jobs.Close)

	auther := auth.NewStaticAuthenticator(map[string]string{"alice": "secret"})
	srv := server.New(jobs, sched, classes, auther)

	return &harness{cache: cache, classes: classes, sched: sched, jobs: jobs, srv: srv}
}

// drainAll repeatedly pulls tasks off the scheduler (as a worker would via
// requestTask) and submits their results, until deadline passes. It
// returns the job each drained task belonged to, in service order.
func (h *harness) drainAll(t *testing.T, deadline time.Duration) []types.JobID {
	t.Helper()
	var order []types.JobID
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		td, ok := h.sched.NextTask()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		order = append(order, td.JobID)
		require.NoError(t, h.jobs.SubmitTaskResult(td.JobID, td.TaskID))
	}
	return order
}

// mustSubmitJob submits a job directly (no createJob/submitJob split) and
// returns its id.
func mustSubmitJob(t *testing.T, ctx context.Context, h *harness, description string, payload []byte) types.JobID {
	t.Helper()
	resp, err := h.srv.SubmitJob(ctx, &computepb.SubmitJobRequest{Description: description, Payload: payload})
	require.NoError(t, err)
	jobID, err := uuid.FromBytes(resp.JobID)
	require.NoError(t, err)
	return jobID
}

func waitUntilOutstanding(t *testing.T, sched *scheduler.Scheduler, jobID types.JobID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Outstanding(jobID) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %d outstanding tasks", jobID, n)
}

func TestJobLifecycleToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.srv.CreateJob(ctx, &computepb.CreateJobRequest{Description: "render frame batch"})
	require.NoError(t, err)

	payload := make([]byte, 300*1024) // spans multiple 256KiB chunks
	submitted, err := h.srv.SubmitJob(ctx, &computepb.SubmitJobRequest{JobID: created.JobID, Payload: payload})
	require.NoError(t, err)
	jobID, err := uuid.FromBytes(submitted.JobID)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		td, ok := h.sched.NextTask()
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		require.Equal(t, jobID, td.JobID)
		require.NoError(t, h.jobs.SubmitTaskResult(td.JobID, td.TaskID))
		st, err := h.jobs.Status(jobID)
		require.NoError(t, err)
		if st.State == types.JobComplete {
			break
		}
	}

	st, err := h.jobs.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, types.JobComplete, st.State)
	require.True(t, st.HasProgress)
	require.Equal(t, 1.0, st.Progress)
}

func TestPriorityPreemption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lowID := mustSubmitJob(t, ctx, h, "low priority job", make([]byte, 10))
	require.NoError(t, h.jobs.SetPriority(lowID, 5))

	highID := mustSubmitJob(t, ctx, h, "high priority job", make([]byte, 10))
	require.NoError(t, h.jobs.SetPriority(highID, 50))

	waitUntilOutstanding(t, h.sched, lowID, 1)
	waitUntilOutstanding(t, h.sched, highID, 1)

	td, ok := h.sched.NextTask()
	require.True(t, ok)
	require.Equal(t, highID, td.JobID, "the higher-priority job's task must be served first")
}

func TestStallAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	jobID := mustSubmitJob(t, ctx, h, "flaky job", make([]byte, 10))
	waitUntilOutstanding(t, h.sched, jobID, 1)

	td, ok := h.sched.NextTask()
	require.True(t, ok)
	require.NoError(t, h.jobs.ReportException(td.JobID, td.TaskID, "worker crashed mid-task"))

	st, err := h.jobs.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, types.JobStalled, st.State)

	require.NoError(t, h.jobs.Resume(jobID))

	// The failed task's single chunk was already consumed by the
	// generator, so resuming simply lets the pump notice there is nothing
	// left to produce and finish the job — no new task reaches the
	// scheduler.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err = h.jobs.Status(jobID)
		require.NoError(t, err)
		if st.State == types.JobComplete {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, types.JobComplete, st.State)
}

func TestClassDistributionThroughServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.srv.SetClassDefinition(ctx, &computepb.SetClassDefinitionRequest{Name: "Renderer.class", Definition: []byte("bytecode v1")})
	require.NoError(t, err)

	digestResp, err := h.srv.GetClassDigest(ctx, &computepb.GetClassDigestRequest{Name: "Renderer.class"})
	require.NoError(t, err)
	require.True(t, digestResp.Found)

	defResp, err := h.srv.GetClassDefinition(ctx, &computepb.GetClassDefinitionRequest{Name: "Renderer.class"})
	require.NoError(t, err)
	require.True(t, defResp.Found)
	require.Equal(t, []byte("bytecode v1"), defResp.Definition)
}

// fakeUpstream is a hub.UpstreamClient backed by an in-memory task queue,
// standing in for a real server connection so the hub fan-out test doesn't
// need a network listener.
type fakeUpstream struct {
	tasks chan types.TaskDescription
}

func newFakeUpstream(jobID types.JobID, n int) *fakeUpstream {
	u := &fakeUpstream{tasks: make(chan types.TaskDescription, n)}
	for i := 0; i < n; i++ {
		u.tasks <- types.TaskDescription{JobID: jobID, TaskID: types.TaskID(i + 1), Payload: []byte("x")}
	}
	return u
}

func (u *fakeUpstream) RequestTask(ctx context.Context) (types.TaskDescription, error) {
	select {
	case td := <-u.tasks:
		return td, nil
	default:
		return types.TaskDescription{JobID: types.NilJobID, IdleSeconds: 1}, nil
	}
}
func (u *fakeUpstream) SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error {
	return nil
}
func (u *fakeUpstream) ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error {
	return nil
}
func (u *fakeUpstream) GetTaskWorker(ctx context.Context, jobID types.JobID) ([]byte, error) {
	return nil, nil
}
func (u *fakeUpstream) GetClassDigest(ctx context.Context, name string) (types.Digest, error) {
	return types.Digest{}, nil
}
func (u *fakeUpstream) GetClassDefinition(ctx context.Context, name string, digest types.Digest) ([]byte, error) {
	return nil, nil
}
func (u *fakeUpstream) GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error) {
	return make([]bool, len(jobIDs)), nil
}

var _ hub.UpstreamClient = (*fakeUpstream)(nil)

func TestHubFanOutAcrossUpstreams(t *testing.T) {
	router := hub.New(5, time.Hour) // poll interval irrelevant; tasks submit inline
	router.Start()
	defer router.Stop()

	jobA, jobB := uuid.New(), uuid.New()
	router.Connect("serverA", newFakeUpstream(jobA, 2))
	router.Connect("serverB", newFakeUpstream(jobB, 2))

	ctx := context.Background()
	seen := map[types.JobID]int{}
	for i := 0; i < 4; i++ {
		td, err := router.RequestTask(ctx)
		require.NoError(t, err)
		require.False(t, td.IsIdle())
		seen[td.JobID]++
	}
	require.Equal(t, 2, seen[jobA])
	require.Equal(t, 2, seen[jobB])
}
