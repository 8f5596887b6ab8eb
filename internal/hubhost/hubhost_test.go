package hubhost

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bwkimmel/jdcp-go/api/computepb"
	"github.com/bwkimmel/jdcp-go/internal/hub"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

type stubUpstream struct {
	task types.TaskDescription
}

func (s *stubUpstream) RequestTask(ctx context.Context) (types.TaskDescription, error) {
	return s.task, nil
}
func (s *stubUpstream) SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error {
	return nil
}
func (s *stubUpstream) ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error {
	return nil
}
func (s *stubUpstream) GetTaskWorker(ctx context.Context, jobID types.JobID) ([]byte, error) {
	return []byte("worker-1"), nil
}
func (s *stubUpstream) GetClassDigest(ctx context.Context, name string) (types.Digest, error) {
	return types.DigestOf([]byte(name)), nil
}
func (s *stubUpstream) GetClassDefinition(ctx context.Context, name string, digest types.Digest) ([]byte, error) {
	return []byte(name), nil
}
func (s *stubUpstream) GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error) {
	return make([]bool, len(jobIDs)), nil
}

var _ hub.UpstreamClient = (*stubUpstream)(nil)

func TestServer_RequestTask_Idle(t *testing.T) {
	router := hub.New(7, time.Hour)
	router.Start()
	defer router.Stop()

	srv := NewServer(router)
	td, err := srv.RequestTask(context.Background(), &computepb.Empty{})
	require.NoError(t, err)
	require.Equal(t, types.NilJobID[:], td.JobID)
	require.Equal(t, int32(7), td.IdleSeconds)
}

func TestServer_RequestTask_RoutesAndSubmits(t *testing.T) {
	router := hub.New(5, time.Hour)
	router.Start()
	defer router.Stop()

	jobID := uuid.New()
	router.Connect("upstream1", &stubUpstream{task: types.TaskDescription{JobID: jobID, TaskID: 1, Payload: []byte("p")}})

	srv := NewServer(router)
	td, err := srv.RequestTask(context.Background(), &computepb.Empty{})
	require.NoError(t, err)
	require.Equal(t, jobID[:], td.JobID)
	require.Equal(t, uint32(1), td.TaskID)

	_, err = srv.SubmitTaskResults(context.Background(), &computepb.SubmitTaskResultsRequest{JobID: jobID[:], TaskID: 1, Result: []byte("ok")})
	require.NoError(t, err)
}

func TestServer_GetClassDigestAndDefinition(t *testing.T) {
	router := hub.New(5, time.Hour)
	router.Start()
	defer router.Stop()

	jobID := uuid.New()
	router.Connect("upstream1", &stubUpstream{task: types.TaskDescription{JobID: jobID, TaskID: 1, Payload: []byte("p")}})

	srv := NewServer(router)
	// Establishes the job's route so the class lookups below forward to
	// the same upstream instead of finding no route on file.
	_, err := srv.RequestTask(context.Background(), &computepb.Empty{})
	require.NoError(t, err)

	digestResp, err := srv.GetClassDigest(context.Background(), &computepb.GetClassDigestRequest{JobID: jobID[:], Name: "Foo.class"})
	require.NoError(t, err)
	require.True(t, digestResp.Found)

	defResp, err := srv.GetClassDefinition(context.Background(), &computepb.GetClassDefinitionRequest{JobID: jobID[:], Name: "Foo.class"})
	require.NoError(t, err)
	require.True(t, defResp.Found)
	require.Equal(t, []byte("Foo.class"), defResp.Definition)
}

func TestJobIDFromWire_Malformed(t *testing.T) {
	_, err := jobIDFromWire([]byte{1, 2, 3})
	require.Error(t, err)
}
