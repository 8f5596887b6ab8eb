package jobmanager

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/internal/classmanager"
	"github.com/bwkimmel/jdcp-go/internal/codecache"
	"github.com/bwkimmel/jdcp-go/internal/scheduler"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// fixedGenerator hands out n fixed payloads then is permanently exhausted.
type fixedGenerator struct {
	payloads [][]byte
	i        int
}

func (g *fixedGenerator) NextTask() ([]byte, bool, error) {
	if g.i >= len(g.payloads) {
		return nil, false, nil
	}
	p := g.payloads[g.i]
	g.i++
	return p, true, nil
}

func (g *fixedGenerator) IsComplete() bool { return g.i >= len(g.payloads) }

type erroringGenerator struct{}

func (erroringGenerator) NextTask() ([]byte, bool, error) {
	return nil, false, errors.New("boom")
}

func (erroringGenerator) IsComplete() bool { return false }

// stepGenerator replays a scripted sequence of outcomes: a non-empty
// string produces that payload, an empty string reports "nothing ready
// yet" without being permanently exhausted. It's complete only once every
// step has been consumed.
type stepGenerator struct {
	mu    sync.Mutex
	steps []string
	i     int
}

func (g *stepGenerator) NextTask() ([]byte, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.i >= len(g.steps) {
		return nil, false, nil
	}
	s := g.steps[g.i]
	g.i++
	if s == "" {
		return nil, false, nil
	}
	return []byte(s), true, nil
}

func (g *stepGenerator) IsComplete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.i >= len(g.steps)
}

func newTestManager(t *testing.T) (*Manager, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New()
	dir := t.TempDir()
	cache, err := codecache.Open(filepath.Join(dir, "classes.wal"), filepath.Join(dir, "classes.snap"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	classes := classmanager.New(cache)
	m := New(sched, classes)
	t.Cleanup(m.Close)
	return m, sched
}

func waitForState(t *testing.T, m *Manager, jobID types.JobID, want types.JobState) types.JobStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := m.Status(jobID)
		require.NoError(t, err)
		if st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", jobID, want)
	return types.JobStatus{}
}

func waitForTask(t *testing.T, sched *scheduler.Scheduler) (types.TaskDescription, bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if td, ok := sched.NextTask(); ok {
			return td, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return types.TaskDescription{}, false
}

func TestJobCompletesAfterAllResultsSubmitted(t *testing.T) {
	m, sched := newTestManager(t)
	jobID := uuid.New()
	gen := &fixedGenerator{payloads: [][]byte{[]byte("a"), []byte("b")}}
	m.CreateJob(jobID, "two tasks", types.DefaultPriority, 0, gen)

	var got []types.TaskDescription
	for i := 0; i < 2; i++ {
		td, ok := waitForTask(t, sched)
		require.True(t, ok)
		got = append(got, td)
	}
	require.Len(t, got, 2)

	for _, td := range got {
		require.NoError(t, m.SubmitTaskResult(td.JobID, td.TaskID))
	}

	waitForState(t, m, jobID, types.JobComplete)
}

func TestReportExceptionStallsJob(t *testing.T) {
	m, sched := newTestManager(t)
	jobID := uuid.New()
	gen := &fixedGenerator{payloads: [][]byte{[]byte("a")}}
	m.CreateJob(jobID, "one task", types.DefaultPriority, 0, gen)

	td, ok := waitForTask(t, sched)
	require.True(t, ok)

	require.NoError(t, m.ReportException(td.JobID, td.TaskID, "worker crashed"))
	st := waitForState(t, m, jobID, types.JobStalled)
	require.Equal(t, "worker crashed", st.Status)
}

func TestResumeReturnsStalledJobToRunning(t *testing.T) {
	m, sched := newTestManager(t)
	jobID := uuid.New()
	gen := &fixedGenerator{payloads: [][]byte{[]byte("a")}}
	m.CreateJob(jobID, "one task", types.DefaultPriority, 0, gen)

	td, _ := waitForTask(t, sched)
	require.NoError(t, m.ReportException(td.JobID, td.TaskID, "transient"))
	waitForState(t, m, jobID, types.JobStalled)

	require.NoError(t, m.Resume(jobID))
	st, err := m.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, types.JobRunning, st.State)
}

// TestGeneratorTemporaryNullStallsThenAutoResumes exercises a generator
// sequence of [A, B, null, C, null, null]: with A and B both outstanding
// and nothing else ready, the job stalls on its own; submitting A's result
// frees enough room for the generator to yield C, which flips the job
// back to Running without ever calling Resume.
func TestGeneratorTemporaryNullStallsThenAutoResumes(t *testing.T) {
	m, sched := newTestManager(t)
	jobID := uuid.New()
	gen := &stepGenerator{steps: []string{"A", "B", "", "C", "", ""}}
	m.CreateJob(jobID, "scenario 3", types.DefaultPriority, 0, gen)

	var tasks []types.TaskDescription
	for i := 0; i < 2; i++ {
		td, ok := waitForTask(t, sched)
		require.True(t, ok)
		tasks = append(tasks, td)
	}
	require.Len(t, tasks, 2)

	waitForState(t, m, jobID, types.JobStalled)

	require.NoError(t, m.SubmitTaskResult(tasks[0].JobID, tasks[0].TaskID))

	td, ok := waitForTask(t, sched)
	require.True(t, ok)
	waitForState(t, m, jobID, types.JobRunning)

	require.NoError(t, m.SubmitTaskResult(tasks[1].JobID, tasks[1].TaskID))
	require.NoError(t, m.SubmitTaskResult(td.JobID, td.TaskID))

	waitForState(t, m, jobID, types.JobComplete)
}

func TestCancelJobIsIdempotentAndTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	jobID := uuid.New()
	gen := &fixedGenerator{payloads: [][]byte{[]byte("a"), []byte("b")}}
	m.CreateJob(jobID, "cancel me", types.DefaultPriority, 0, gen)

	require.NoError(t, m.CancelJob(jobID))
	require.NoError(t, m.CancelJob(jobID), "cancelling twice must not error")

	st, err := m.Status(jobID)
	require.NoError(t, err)
	require.Equal(t, types.JobCancelled, st.State)
}

func TestSubmitTaskResultForUnknownTaskErrors(t *testing.T) {
	m, _ := newTestManager(t)
	jobID := uuid.New()
	gen := &fixedGenerator{}
	m.CreateJob(jobID, "empty", types.DefaultPriority, 0, gen)

	err := m.SubmitTaskResult(jobID, 999)
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestGeneratorErrorStallsJob(t *testing.T) {
	m, _ := newTestManager(t)
	jobID := uuid.New()
	m.CreateJob(jobID, "bad generator", types.DefaultPriority, 0, erroringGenerator{})

	waitForState(t, m, jobID, types.JobStalled)
}

func TestWaitForStatusChangeWakesOnEvent(t *testing.T) {
	m, sched := newTestManager(t)
	jobID := uuid.New()
	gen := &fixedGenerator{payloads: [][]byte{[]byte("a")}}
	m.CreateJob(jobID, "wait test", types.DefaultPriority, 0, gen)

	initial, err := m.Status(jobID)
	require.NoError(t, err)

	resultCh := make(chan types.JobStatus, 1)
	go func() {
		st, err := m.WaitForStatusChange(context.Background(), jobID, initial.EventID, 5*time.Second)
		require.NoError(t, err)
		resultCh <- st
	}()

	td, ok := waitForTask(t, sched)
	require.True(t, ok)
	require.NoError(t, m.SubmitTaskResult(td.JobID, td.TaskID))

	select {
	case st := <-resultCh:
		require.Greater(t, st.EventID, initial.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForStatusChange did not wake on event")
	}
}

func TestWaitForStatusChangeTimesOut(t *testing.T) {
	m, _ := newTestManager(t)
	jobID := uuid.New()
	// Never ready and not complete within the test's window, with nothing
	// outstanding: the job stays Running and publishes no event.
	gen := &stepGenerator{steps: []string{"", "", "", ""}}
	m.CreateJob(jobID, "no events", types.DefaultPriority, 0, gen)

	initial, err := m.Status(jobID)
	require.NoError(t, err)

	start := time.Now()
	st, err := m.WaitForStatusChange(context.Background(), jobID, initial.EventID+1000, 50*time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, initial.State, st.State)
}

func TestStatusForUnknownJobErrors(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Status(uuid.New())
	require.ErrorIs(t, err, ErrJobNotFound)
}
