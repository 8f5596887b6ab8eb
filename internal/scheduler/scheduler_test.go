package scheduler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// TestRoundRobinFairness covers P1: with equal priority, tasks from distinct
// jobs are interleaved rather than one job's backlog draining first.
func TestRoundRobinFairness(t *testing.T) {
	s := New()
	jobA, jobB := uuid.New(), uuid.New()
	s.AddJob(jobA, types.DefaultPriority)
	s.AddJob(jobB, types.DefaultPriority)

	s.Add(jobA, 1, []byte("a1"))
	s.Add(jobA, 2, []byte("a2"))
	s.Add(jobB, 1, []byte("b1"))
	s.Add(jobB, 2, []byte("b2"))

	var order []types.JobID
	for i := 0; i < 4; i++ {
		td, ok := s.NextTask()
		require.True(t, ok)
		order = append(order, td.JobID)
	}
	require.Equal(t, []types.JobID{jobA, jobB, jobA, jobB}, order)
}

// TestPriorityDominance covers P2: a higher-priority job's tasks are always
// offered before a lower-priority job's, regardless of submission order.
func TestPriorityDominance(t *testing.T) {
	s := New()
	low, high := uuid.New(), uuid.New()
	s.AddJob(low, 10)
	s.Add(low, 1, nil)
	s.Add(low, 2, nil)

	s.AddJob(high, 50)
	s.Add(high, 1, nil)
	s.Add(high, 2, nil)
	s.Add(high, 3, nil)
	s.Add(high, 4, nil)

	for i := 0; i < 4; i++ {
		td, ok := s.NextTask()
		require.True(t, ok)
		require.Equal(t, high, td.JobID, "high priority job must exhaust before low priority job starts")
		s.Remove(td.JobID, td.TaskID)
	}
	td, ok := s.NextTask()
	require.True(t, ok)
	require.Equal(t, low, td.JobID)
}

func TestEmptyJobDropsOutOfRotationUntilRefilled(t *testing.T) {
	s := New()
	job := uuid.New()
	s.AddJob(job, types.DefaultPriority)
	s.Add(job, 1, []byte("x"))

	td, ok := s.NextTask()
	require.True(t, ok)
	_, removed := s.Remove(td.JobID, td.TaskID)
	require.True(t, removed)

	_, ok = s.NextTask()
	require.False(t, ok, "job with no outstanding tasks must not be offered")

	s.Add(job, 2, []byte("y"))
	td, ok = s.NextTask()
	require.True(t, ok)
	require.EqualValues(t, 2, td.TaskID)
}

func TestSetPriorityReordersHeap(t *testing.T) {
	s := New()
	a, b := uuid.New(), uuid.New()
	s.AddJob(a, 10)
	s.Add(a, 1, nil)
	s.AddJob(b, 10)
	s.Add(b, 1, nil)

	s.SetPriority(b, 100)

	td, ok := s.NextTask()
	require.True(t, ok)
	require.Equal(t, b, td.JobID)
}

func TestRemoveJobDiscardsOutstandingTasks(t *testing.T) {
	s := New()
	job := uuid.New()
	s.AddJob(job, types.DefaultPriority)
	s.Add(job, 1, nil)
	s.Add(job, 2, nil)

	s.RemoveJob(job)
	require.Equal(t, 0, s.Outstanding(job))

	_, ok := s.NextTask()
	require.False(t, ok)
}

func TestNextTaskEmptyScheduler(t *testing.T) {
	s := New()
	_, ok := s.NextTask()
	require.False(t, ok)
}
