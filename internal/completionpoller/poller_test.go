package completionpoller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/internal/workerpool"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

type fakePool struct {
	mu        sync.Mutex
	tasks     []workerpool.WorkerTask
	cancelled []workerpool.WorkerTask
}

func (f *fakePool) CurrentTasks() []workerpool.WorkerTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]workerpool.WorkerTask, len(f.tasks))
	copy(out, f.tasks)
	return out
}

func (f *fakePool) CancelTask(jobID types.JobID, taskID types.TaskID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, workerpool.WorkerTask{JobID: jobID, TaskID: taskID})
}

type fakeCache struct {
	mu      sync.Mutex
	unused  []types.JobID
	evicted []types.JobID
}

func (c *fakeCache) UnusedJobIDs() []types.JobID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.JobID, len(c.unused))
	copy(out, c.unused)
	return out
}

func (c *fakeCache) Evict(jobID types.JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evicted = append(c.evicted, jobID)
}

type fakeService struct {
	mu       sync.Mutex
	finished map[types.TaskID]bool
	err      error
	calls    int
}

func (s *fakeService) GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]bool, len(taskIDs))
	for i, tid := range taskIDs {
		out[i] = s.finished[tid]
	}
	return out, nil
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSweepCancelsTasksTheServerReportsFinished(t *testing.T) {
	jobID := uuid.New()
	pool := &fakePool{tasks: []workerpool.WorkerTask{{WorkerID: 0, JobID: jobID, TaskID: 5}}}
	svc := &fakeService{finished: map[types.TaskID]bool{5: true}}

	p := New(pool, nil, svc, 20*time.Millisecond)
	p.Start()
	defer p.Stop()

	waitUntil(t, func() bool {
		pool.mu.Lock()
		defer pool.mu.Unlock()
		return len(pool.cancelled) == 1
	})
	require.Equal(t, types.TaskID(5), pool.cancelled[0].TaskID)
}

func TestSweepEvictsUnusedJobEntriesTheServerReportsFinished(t *testing.T) {
	jobID := uuid.New()
	pool := &fakePool{}
	cache := &fakeCache{unused: []types.JobID{jobID}}
	svc := &fakeService{finished: map[types.TaskID]bool{types.NoTaskID: true}}

	p := New(pool, cache, svc, 20*time.Millisecond)
	p.Start()
	defer p.Stop()

	waitUntil(t, func() bool {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		return len(cache.evicted) == 1
	})
	require.Equal(t, jobID, cache.evicted[0])
}

func TestSweepLeavesStillLiveTasksAlone(t *testing.T) {
	jobID := uuid.New()
	pool := &fakePool{tasks: []workerpool.WorkerTask{{WorkerID: 0, JobID: jobID, TaskID: 9}}}
	svc := &fakeService{finished: map[types.TaskID]bool{}}

	p := New(pool, nil, svc, 20*time.Millisecond)
	p.Start()
	defer p.Stop()

	waitUntil(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.calls >= 2
	})
	pool.mu.Lock()
	defer pool.mu.Unlock()
	require.Empty(t, pool.cancelled)
}

func TestSweepToleratesTransportFailureAndRetriesNextTick(t *testing.T) {
	jobID := uuid.New()
	pool := &fakePool{tasks: []workerpool.WorkerTask{{WorkerID: 0, JobID: jobID, TaskID: 1}}}
	svc := &fakeService{err: errors.New("unreachable")}

	p := New(pool, nil, svc, 20*time.Millisecond)
	p.Start()
	defer p.Stop()

	waitUntil(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.calls >= 2
	})
}

func TestSweepIsNoOpWithNothingToReconcile(t *testing.T) {
	pool := &fakePool{}
	svc := &fakeService{}
	p := New(pool, nil, svc, 20*time.Millisecond)
	p.sweep()
	require.Equal(t, 0, svc.calls)
}
