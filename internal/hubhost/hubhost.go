// Package hubhost wires the Hub Router (internal/hub) to the wire services
// in api/computepb: it implements the downstream-facing
// HubComputeServiceServer a worker dials into, and adapts an upstream gRPC
// connection (through a Reconnecting Service Proxy) into the
// hub.UpstreamClient interface the router fans out across.
package hubhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/bwkimmel/jdcp-go/api/computepb"
	"github.com/bwkimmel/jdcp-go/internal/hub"
	"github.com/bwkimmel/jdcp-go/internal/rpcproxy"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// Server adapts hub.Router to computepb.HubComputeServiceServer — the only
// surface a hub publishes downstream: a reduced interface rather than the
// full ComputeService with runtime rejections on the unsupported calls.
type Server struct {
	router *hub.Router
}

// NewServer wraps router as a gRPC HubComputeServiceServer.
func NewServer(router *hub.Router) *Server {
	return &Server{router: router}
}

func (s *Server) RequestTask(ctx context.Context, _ *computepb.Empty) (*computepb.TaskDescription, error) {
	td, err := s.router.RequestTask(ctx)
	if err != nil {
		return nil, err
	}
	if td.IsIdle() {
		return &computepb.TaskDescription{JobID: types.NilJobID[:], IdleSeconds: td.IdleSeconds}, nil
	}
	return &computepb.TaskDescription{JobID: td.JobID[:], TaskID: uint32(td.TaskID), Payload: td.Payload}, nil
}

func (s *Server) SubmitTaskResults(ctx context.Context, req *computepb.SubmitTaskResultsRequest) (*computepb.Empty, error) {
	jobID, err := jobIDFromWire(req.JobID)
	if err != nil {
		return nil, err
	}
	if err := s.router.SubmitTaskResult(ctx, jobID, types.TaskID(req.TaskID), req.Result); err != nil {
		return nil, err
	}
	return &computepb.Empty{}, nil
}

func (s *Server) ReportException(ctx context.Context, req *computepb.ReportExceptionRequest) (*computepb.Empty, error) {
	jobID, err := jobIDFromWire(req.JobID)
	if err != nil {
		return nil, err
	}
	if err := s.router.ReportException(ctx, jobID, types.TaskID(req.TaskID), req.Message); err != nil {
		return nil, err
	}
	return &computepb.Empty{}, nil
}

func (s *Server) GetTaskWorker(ctx context.Context, req *computepb.GetTaskWorkerRequest) (*computepb.GetTaskWorkerResponse, error) {
	jobID, err := jobIDFromWire(req.JobID)
	if err != nil {
		return nil, err
	}
	info, err := s.router.GetTaskWorker(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &computepb.GetTaskWorkerResponse{Info: info}, nil
}

func (s *Server) GetClassDigest(ctx context.Context, req *computepb.GetClassDigestRequest) (*computepb.GetClassDigestResponse, error) {
	jobID, err := jobIDFromWire(req.JobID)
	if err != nil {
		return nil, err
	}
	digest, err := s.router.GetClassDigest(ctx, jobID, req.Name)
	if err != nil {
		return &computepb.GetClassDigestResponse{Found: false}, nil
	}
	return &computepb.GetClassDigestResponse{Digest: digest[:], Found: true}, nil
}

func (s *Server) GetClassDefinition(ctx context.Context, req *computepb.GetClassDefinitionRequest) (*computepb.GetClassDefinitionResponse, error) {
	jobID, err := jobIDFromWire(req.JobID)
	if err != nil {
		return nil, err
	}
	var digest types.Digest
	if len(req.Digest) == len(digest) {
		copy(digest[:], req.Digest)
	}
	definition, err := s.router.GetClassDefinition(ctx, jobID, req.Name, digest)
	if err != nil {
		return &computepb.GetClassDefinitionResponse{Found: false}, nil
	}
	return &computepb.GetClassDefinitionResponse{Definition: definition, Found: true}, nil
}

func (s *Server) GetFinishedTasks(ctx context.Context, req *computepb.GetFinishedTasksRequest) (*computepb.GetFinishedTasksResponse, error) {
	if len(req.JobIDs) != len(req.TaskIDs) {
		return nil, fmt.Errorf("hubhost: jobIds and taskIds must be the same length")
	}
	jobIDs := make([]types.JobID, len(req.JobIDs))
	taskIDs := make([]types.TaskID, len(req.TaskIDs))
	for i := range req.JobIDs {
		id, err := jobIDFromWire(req.JobIDs[i])
		if err != nil {
			return nil, err
		}
		jobIDs[i] = id
		taskIDs[i] = types.TaskID(req.TaskIDs[i])
	}
	finished, err := s.router.GetFinishedTasks(ctx, jobIDs, taskIDs)
	if err != nil {
		return nil, err
	}
	return &computepb.GetFinishedTasksResponse{Finished: finished}, nil
}

func jobIDFromWire(b []byte) (types.JobID, error) {
	var id types.JobID
	if len(b) != len(id) {
		return id, errors.New("hubhost: malformed job id on wire")
	}
	copy(id[:], b)
	return id, nil
}

var _ computepb.HubComputeServiceServer = (*Server)(nil)

// upstreamClient adapts one reconnecting gRPC connection to an upstream
// server into hub.UpstreamClient — the same reduced surface a worker calls
// directly, so the hub is indistinguishable from a worker to that upstream.
type upstreamClient struct {
	proxy *rpcproxy.Proxy[computepb.HubComputeServiceClient]
}

// classify treats only a gRPC Unavailable status (the link to the upstream
// itself is down) as a transport problem worth reconnecting over; upstream
// logical errors (IllegalArgument, etc.), a class the upstream reports
// missing, a reply the hub cannot decode, and a cancelled/deadline-exceeded
// context reach the hub's caller unchanged.
func classify(err error) rpcproxy.ErrorClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return rpcproxy.ClassLogical
	}
	if status.Code(err) == codes.Unavailable {
		return rpcproxy.ClassTransport
	}
	return rpcproxy.ClassLogical
}

// DialUpstream opens a reconnecting gRPC connection to an upstream server at
// addr and wraps it as a hub.UpstreamClient for hub.Router.Connect.
func DialUpstream(addr string, reconnectInterval time.Duration) hub.UpstreamClient {
	proxy := rpcproxy.New(func(ctx context.Context) (computepb.HubComputeServiceClient, io.Closer, error) {
		return grpcDial(ctx, addr)
	}, classify, reconnectInterval)
	return &upstreamClient{proxy: proxy}
}

var _ hub.UpstreamClient = (*upstreamClient)(nil)

func (c *upstreamClient) RequestTask(ctx context.Context) (types.TaskDescription, error) {
	var out types.TaskDescription
	err := c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		resp, err := cl.RequestTask(ctx, &computepb.Empty{})
		if err != nil {
			return err
		}
		jobID, err := jobIDFromWire(resp.JobID)
		if err != nil {
			return err
		}
		out = types.TaskDescription{JobID: jobID, TaskID: types.TaskID(resp.TaskID), Payload: resp.Payload, IdleSeconds: int(resp.IdleSeconds)}
		return nil
	})
	return out, err
}

func (c *upstreamClient) SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error {
	return c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		_, err := cl.SubmitTaskResults(ctx, &computepb.SubmitTaskResultsRequest{JobID: jobID[:], TaskID: uint32(taskID), Result: result})
		return err
	})
}

func (c *upstreamClient) ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error {
	return c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		_, err := cl.ReportException(ctx, &computepb.ReportExceptionRequest{JobID: jobID[:], TaskID: uint32(taskID), Message: message})
		return err
	})
}

func (c *upstreamClient) GetTaskWorker(ctx context.Context, jobID types.JobID) ([]byte, error) {
	var out []byte
	err := c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		resp, err := cl.GetTaskWorker(ctx, &computepb.GetTaskWorkerRequest{JobID: jobID[:]})
		if err != nil {
			return err
		}
		out = resp.Info
		return nil
	})
	return out, err
}

func (c *upstreamClient) GetClassDigest(ctx context.Context, name string) (types.Digest, error) {
	var out types.Digest
	err := c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		resp, err := cl.GetClassDigest(ctx, &computepb.GetClassDigestRequest{Name: name})
		if err != nil {
			return err
		}
		if !resp.Found {
			return fmt.Errorf("hubhost: class %q not found upstream", name)
		}
		copy(out[:], resp.Digest)
		return nil
	})
	return out, err
}

func (c *upstreamClient) GetClassDefinition(ctx context.Context, name string, digest types.Digest) ([]byte, error) {
	var out []byte
	err := c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		resp, err := cl.GetClassDefinition(ctx, &computepb.GetClassDefinitionRequest{Name: name, Digest: digest[:]})
		if err != nil {
			return err
		}
		if !resp.Found {
			return fmt.Errorf("hubhost: class %q not found upstream", name)
		}
		out = resp.Definition
		return nil
	})
	return out, err
}

func (c *upstreamClient) GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error) {
	wireJobIDs := make([][]byte, len(jobIDs))
	wireTaskIDs := make([]uint32, len(taskIDs))
	for i := range jobIDs {
		wireJobIDs[i] = jobIDs[i][:]
		wireTaskIDs[i] = uint32(taskIDs[i])
	}
	var out []bool
	err := c.proxy.Invoke(ctx, func(cl computepb.HubComputeServiceClient) error {
		resp, err := cl.GetFinishedTasks(ctx, &computepb.GetFinishedTasksRequest{JobIDs: wireJobIDs, TaskIDs: wireTaskIDs})
		if err != nil {
			return err
		}
		out = resp.Finished
		return nil
	})
	return out, err
}

// grpcDial is the real Dialer used by DialUpstream; split out so tests can
// substitute an in-process connection.
func grpcDial(ctx context.Context, addr string) (computepb.HubComputeServiceClient, io.Closer, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return computepb.NewHubComputeServiceClient(conn), conn, nil
}

// Config describes one hub process: its downstream listen address, its
// idle-directive seconds for when every upstream is idle, and how often it
// polls upstreams for completed tasks.
type Config struct {
	ListenAddr        string
	IdleSeconds       int
	PollInterval      time.Duration
	ReconnectInterval time.Duration
}

// Host owns the hub's in-process Router, its downstream gRPC listener, and
// the reconnecting upstream connections Connect/Disconnect manage.
type Host struct {
	cfg    Config
	Router *hub.Router
	grpc   *grpc.Server
}

// New assembles a Host and starts the Router's aggregated completion-polling
// sweep. Call Serve to start accepting downstream worker connections.
func New(cfg Config) *Host {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	router := hub.New(cfg.IdleSeconds, cfg.PollInterval)
	router.Start()

	gs := grpc.NewServer()
	computepb.RegisterHubComputeServiceServer(gs, NewServer(router))

	return &Host{cfg: cfg, Router: router, grpc: gs}
}

// Connect dials addr as a new upstream named name and registers it with the
// Router's FIFO.
func (h *Host) Connect(name, addr string) {
	h.Router.Connect(name, DialUpstream(addr, h.cfg.ReconnectInterval))
}

// Disconnect drops the named upstream and invalidates its routes.
func (h *Host) Disconnect(name string) error {
	return h.Router.Disconnect(name)
}

// Serve blocks accepting downstream worker connections on cfg.ListenAddr.
func (h *Host) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", h.cfg.ListenAddr)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- h.grpc.Serve(lis) }()
	select {
	case <-ctx.Done():
		h.grpc.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop releases the downstream listener and the Router's polling loop.
func (h *Host) Stop() {
	h.grpc.Stop()
	h.Router.Stop()
}
