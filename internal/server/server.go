// Package server implements the gRPC-facing surface of the compute
// platform's server host: it wires the Job Manager (C5), Task Scheduler
// (C4), Versioned Class Manager (C2), and the authentication handshake
// into the wire services defined in api/computepb.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/peer"

	"github.com/bwkimmel/jdcp-go/api/computepb"
	"github.com/bwkimmel/jdcp-go/internal/auth"
	"github.com/bwkimmel/jdcp-go/internal/classmanager"
	"github.com/bwkimmel/jdcp-go/internal/jobmanager"
	"github.com/bwkimmel/jdcp-go/internal/scheduler"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// defaultIdleSeconds is handed to a worker that finds no task waiting,
// until an operator overrides it with setIdleTime.
const defaultIdleSeconds = 5

var (
	// ErrIllegalArgument covers the table's IllegalArgument errors: a job id
	// that doesn't resolve, mismatched array lengths, and similar.
	ErrIllegalArgument = errors.New("server: illegal argument")
	// ErrClassNotFound names the class-not-found error kind. SubmitJob
	// treats payloads as opaque and does not check them against the class
	// cache, so no Server method returns it.
	ErrClassNotFound = errors.New("server: class not found")
)

// pendingJob is a job minted by createJob that has not yet had a payload
// attached by submitJob. It already owns a class snapshot, so
// setClassDefinition(name, jobId, bytes) works before the job starts
// producing tasks.
type pendingJob struct {
	description string
	priority    int
	snapshot    classmanager.SnapshotID
}

// Server implements computepb.ComputeServiceServer and
// computepb.AuthenticationServiceServer.
type Server struct {
	jobs    *jobmanager.Manager
	sched   *scheduler.Scheduler
	classes *classmanager.Manager
	auther  auth.Authenticator

	mu          sync.Mutex
	pending     map[types.JobID]*pendingJob
	taskWorkers map[types.JobID][]byte
	idleSeconds int32
}

// New creates a Server over an already-running jobmanager.Manager and its
// Task Scheduler, sharing a single classmanager.Manager for class lookups.
func New(jobs *jobmanager.Manager, sched *scheduler.Scheduler, classes *classmanager.Manager, auther auth.Authenticator) *Server {
	return &Server{
		jobs:        jobs,
		sched:       sched,
		classes:     classes,
		auther:      auther,
		pending:     make(map[types.JobID]*pendingJob),
		taskWorkers: make(map[types.JobID][]byte),
		idleSeconds: defaultIdleSeconds,
	}
}

// --- AuthenticationService ---------------------------------------------

func (s *Server) Authenticate(ctx context.Context, req *computepb.AuthenticateRequest) (*computepb.AuthenticateResponse, error) {
	handle, err := s.auther.Authenticate(ctx, req.User, req.Password, req.ProtocolVersionID)
	if err != nil {
		return nil, err
	}
	return &computepb.AuthenticateResponse{ServiceHandle: handle}, nil
}

// --- ComputeService: job lifecycle --------------------------------------

func (s *Server) CreateJob(ctx context.Context, req *computepb.CreateJobRequest) (*computepb.CreateJobResponse, error) {
	jobID := uuid.New()
	snap := s.classes.CreateSnapshot()

	s.mu.Lock()
	s.pending[jobID] = &pendingJob{
		description: req.Description,
		priority:    types.DefaultPriority,
		snapshot:    snap,
	}
	s.mu.Unlock()

	return &computepb.CreateJobResponse{JobID: jobID[:]}, nil
}

func (s *Server) SubmitJob(ctx context.Context, req *computepb.SubmitJobRequest) (*computepb.SubmitJobResponse, error) {
	gen := jobmanager.NewChunkGenerator(req.Payload)

	if len(req.JobID) > 0 {
		jobID, err := uuid.FromBytes(req.JobID)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
		}
		s.mu.Lock()
		pj, ok := s.pending[jobID]
		if ok {
			delete(s.pending, jobID)
		}
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: job %s was not created or already submitted", ErrIllegalArgument, jobID)
		}
		s.jobs.CreateJob(jobID, pj.description, pj.priority, pj.snapshot, gen)
		return &computepb.SubmitJobResponse{JobID: jobID[:]}, nil
	}

	jobID := uuid.New()
	snap := s.classes.CreateSnapshot()
	s.jobs.CreateJob(jobID, req.Description, types.DefaultPriority, snap, gen)
	return &computepb.SubmitJobResponse{JobID: jobID[:]}, nil
}

func (s *Server) CancelJob(ctx context.Context, req *computepb.CancelJobRequest) (*computepb.Empty, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}

	s.mu.Lock()
	pj, pending := s.pending[jobID]
	if pending {
		delete(s.pending, jobID)
	}
	s.mu.Unlock()
	if pending {
		if err := s.classes.ReleaseSnapshot(pj.snapshot); err != nil {
			return nil, err
		}
		return &computepb.Empty{}, nil
	}

	if err := s.jobs.CancelJob(jobID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	return &computepb.Empty{}, nil
}

func (s *Server) SetJobPriority(ctx context.Context, req *computepb.SetJobPriorityRequest) (*computepb.Empty, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	if err := s.jobs.SetPriority(jobID, int(req.Priority)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	return &computepb.Empty{}, nil
}

func (s *Server) SetIdleTime(ctx context.Context, req *computepb.SetIdleTimeRequest) (*computepb.Empty, error) {
	if req.Seconds < 0 {
		return nil, fmt.Errorf("%w: idle seconds must be >= 0", ErrIllegalArgument)
	}
	s.mu.Lock()
	s.idleSeconds = req.Seconds
	s.mu.Unlock()
	return &computepb.Empty{}, nil
}

func (s *Server) GetJobStatus(ctx context.Context, req *computepb.GetJobStatusRequest) (*computepb.JobStatus, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	st, err := s.jobs.Status(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	return wireJobStatus(st), nil
}

func (s *Server) WaitForJobStatusChange(ctx context.Context, req *computepb.WaitForJobStatusChangeRequest) (*computepb.JobStatus, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	st, err := s.jobs.WaitForStatusChange(ctx, jobID, req.LastEventID, time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return wireJobStatus(st), nil
}

func wireJobStatus(st types.JobStatus) *computepb.JobStatus {
	return &computepb.JobStatus{
		JobID:       st.JobID[:],
		Description: st.Description,
		State:       int32(st.State),
		Progress:    st.Progress,
		HasProgress: st.HasProgress,
		Status:      st.Status,
		EventID:     st.EventID,
	}
}

// --- ComputeService: class distribution ---------------------------------

// resolveSnapshot finds the class snapshot scoped to jobID, whether the job
// is still pending (awaiting submitJob) or already running.
func (s *Server) resolveSnapshot(jobID types.JobID) (classmanager.SnapshotID, bool) {
	s.mu.Lock()
	if pj, ok := s.pending[jobID]; ok {
		s.mu.Unlock()
		return pj.snapshot, true
	}
	s.mu.Unlock()
	snap, err := s.jobs.SnapshotOf(jobID)
	if err != nil {
		return 0, false
	}
	return snap, true
}

func (s *Server) SetClassDefinition(ctx context.Context, req *computepb.SetClassDefinitionRequest) (*computepb.Empty, error) {
	if len(req.JobID) == 0 {
		if _, err := s.classes.SetCurrent(req.Name, req.Definition); err != nil {
			return nil, err
		}
		return &computepb.Empty{}, nil
	}

	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	snap, ok := s.resolveSnapshot(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown job %s", ErrIllegalArgument, jobID)
	}
	if _, err := s.classes.SetForSnapshot(snap, req.Name, req.Definition); err != nil {
		return nil, err
	}
	return &computepb.Empty{}, nil
}

func (s *Server) GetClassDigest(ctx context.Context, req *computepb.GetClassDigestRequest) (*computepb.GetClassDigestResponse, error) {
	if len(req.JobID) == 0 {
		digest, ok := s.classes.CurrentDigest(req.Name)
		return digestResponse(digest, ok), nil
	}
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	snap, ok := s.resolveSnapshot(jobID)
	if !ok {
		return digestResponse(types.Digest{}, false), nil
	}
	digest, found := s.classes.GetForSnapshot(snap, req.Name)
	return digestResponse(digest, found), nil
}

func digestResponse(digest types.Digest, found bool) *computepb.GetClassDigestResponse {
	if !found {
		return &computepb.GetClassDigestResponse{Found: false}
	}
	return &computepb.GetClassDigestResponse{Digest: digest[:], Found: true}
}

func (s *Server) GetClassDefinition(ctx context.Context, req *computepb.GetClassDefinitionRequest) (*computepb.GetClassDefinitionResponse, error) {
	var snap classmanager.SnapshotID
	if len(req.JobID) > 0 {
		jobID, err := uuid.FromBytes(req.JobID)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
		}
		resolved, ok := s.resolveSnapshot(jobID)
		if !ok {
			return &computepb.GetClassDefinitionResponse{Found: false}, nil
		}
		snap = resolved
	}
	definition, ok := s.classes.GetDefinition(snap, req.Name)
	if !ok {
		return &computepb.GetClassDefinitionResponse{Found: false}, nil
	}
	return &computepb.GetClassDefinitionResponse{Definition: definition, Found: true}, nil
}

// --- HubComputeService: worker-facing surface ---------------------------

func (s *Server) RequestTask(ctx context.Context, _ *computepb.Empty) (*computepb.TaskDescription, error) {
	td, ok := s.sched.NextTask()
	if !ok {
		s.mu.Lock()
		idle := s.idleSeconds
		s.mu.Unlock()
		return &computepb.TaskDescription{
			JobID:       types.NilJobID[:],
			IdleSeconds: idle,
		}, nil
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		s.mu.Lock()
		s.taskWorkers[td.JobID] = []byte(p.Addr.String())
		s.mu.Unlock()
	}

	return &computepb.TaskDescription{
		JobID:   td.JobID[:],
		TaskID:  uint32(td.TaskID),
		Payload: td.Payload,
	}, nil
}

func (s *Server) SubmitTaskResults(ctx context.Context, req *computepb.SubmitTaskResultsRequest) (*computepb.Empty, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	if err := s.jobs.SubmitTaskResult(jobID, types.TaskID(req.TaskID)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	return &computepb.Empty{}, nil
}

func (s *Server) ReportException(ctx context.Context, req *computepb.ReportExceptionRequest) (*computepb.Empty, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	if err := s.jobs.ReportException(jobID, types.TaskID(req.TaskID), req.Message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	return &computepb.Empty{}, nil
}

func (s *Server) GetTaskWorker(ctx context.Context, req *computepb.GetTaskWorkerRequest) (*computepb.GetTaskWorkerResponse, error) {
	jobID, err := uuid.FromBytes(req.JobID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed job id", ErrIllegalArgument)
	}
	s.mu.Lock()
	info, ok := s.taskWorkers[jobID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no worker on record for job %s", ErrIllegalArgument, jobID)
	}
	return &computepb.GetTaskWorkerResponse{Info: info}, nil
}

func (s *Server) GetFinishedTasks(ctx context.Context, req *computepb.GetFinishedTasksRequest) (*computepb.GetFinishedTasksResponse, error) {
	if len(req.JobIDs) != len(req.TaskIDs) {
		return nil, fmt.Errorf("%w: jobIds and taskIds must be the same length", ErrIllegalArgument)
	}
	finished := make([]bool, len(req.JobIDs))
	for i := range req.JobIDs {
		jobID, err := uuid.FromBytes(req.JobIDs[i])
		if err != nil {
			finished[i] = true
			continue
		}
		finished[i] = s.jobs.IsTaskFinished(jobID, types.TaskID(req.TaskIDs[i]))
	}
	return &computepb.GetFinishedTasksResponse{Finished: finished}, nil
}

var _ computepb.ComputeServiceServer = (*Server)(nil)
var _ computepb.AuthenticationServiceServer = (*Server)(nil)
