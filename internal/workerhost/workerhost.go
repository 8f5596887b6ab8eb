// Package workerhost assembles the worker process: a reconnecting RPC link
// to a server or hub (internal/rpcproxy), the Worker Pool (C7) pulling
// tasks over that link, the Completion Poller (C8) reconciling against the
// upstream, and the Courtesy Monitor (C9) gating both.
package workerhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/bwkimmel/jdcp-go/api/computepb"
	"github.com/bwkimmel/jdcp-go/internal/completionpoller"
	"github.com/bwkimmel/jdcp-go/internal/courtesy"
	"github.com/bwkimmel/jdcp-go/internal/rpcproxy"
	"github.com/bwkimmel/jdcp-go/internal/workerpool"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// taskSource adapts a rpcproxy.Proxy over the reduced HubComputeService
// surface into workerpool.TaskSource, classifying each error so the proxy
// knows whether to reconnect-and-retry or hand it straight to the pool.
type taskSource struct {
	proxy *rpcproxy.Proxy[computepb.HubComputeServiceClient]
}

func classify(err error) rpcproxy.ErrorClass {
	if err == nil {
		return rpcproxy.ClassTransport
	}
	// IllegalArgument and similar reports from the server are deliberate
	// rejections, not link trouble, as are replies this host cannot decode
	// and a cancelled or expired context; only a gRPC Unavailable status
	// (the link itself is down) is treated as transport.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return rpcproxy.ClassLogical
	}
	if status.Code(err) == codes.Unavailable {
		return rpcproxy.ClassTransport
	}
	return rpcproxy.ClassLogical
}

func (s *taskSource) RequestTask(ctx context.Context) (types.TaskDescription, error) {
	var out types.TaskDescription
	err := s.proxy.Invoke(ctx, func(c computepb.HubComputeServiceClient) error {
		resp, err := c.RequestTask(ctx, &computepb.Empty{})
		if err != nil {
			return err
		}
		jobID, err := jobIDFromWire(resp.JobID)
		if err != nil {
			return err
		}
		out = types.TaskDescription{
			JobID:       jobID,
			TaskID:      types.TaskID(resp.TaskID),
			Payload:     resp.Payload,
			IdleSeconds: int(resp.IdleSeconds),
		}
		return nil
	})
	return out, err
}

func (s *taskSource) SubmitTaskResult(ctx context.Context, jobID types.JobID, taskID types.TaskID, result []byte) error {
	return s.proxy.Invoke(ctx, func(c computepb.HubComputeServiceClient) error {
		_, err := c.SubmitTaskResults(ctx, &computepb.SubmitTaskResultsRequest{
			JobID:  jobID[:],
			TaskID: uint32(taskID),
			Result: result,
		})
		return err
	})
}

func (s *taskSource) ReportException(ctx context.Context, jobID types.JobID, taskID types.TaskID, message string) error {
	return s.proxy.Invoke(ctx, func(c computepb.HubComputeServiceClient) error {
		_, err := c.ReportException(ctx, &computepb.ReportExceptionRequest{
			JobID:   jobID[:],
			TaskID:  uint32(taskID),
			Message: message,
		})
		return err
	})
}

// finishedTaskService adapts the same proxy to completionpoller.FinishedTaskService.
type finishedTaskService struct {
	proxy *rpcproxy.Proxy[computepb.HubComputeServiceClient]
}

func (f *finishedTaskService) GetFinishedTasks(ctx context.Context, jobIDs []types.JobID, taskIDs []types.TaskID) ([]bool, error) {
	wireJobIDs := make([][]byte, len(jobIDs))
	wireTaskIDs := make([]uint32, len(taskIDs))
	for i := range jobIDs {
		wireJobIDs[i] = jobIDs[i][:]
		wireTaskIDs[i] = uint32(taskIDs[i])
	}

	var out []bool
	err := f.proxy.Invoke(ctx, func(c computepb.HubComputeServiceClient) error {
		resp, err := c.GetFinishedTasks(ctx, &computepb.GetFinishedTasksRequest{JobIDs: wireJobIDs, TaskIDs: wireTaskIDs})
		if err != nil {
			return err
		}
		out = resp.Finished
		return nil
	})
	return out, err
}

func jobIDFromWire(b []byte) (types.JobID, error) {
	var id types.JobID
	if len(b) != len(id) {
		return id, fmt.Errorf("workerhost: malformed job id on wire (%d bytes)", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Host owns one worker process's Worker Pool, Completion Poller, and their
// shared upstream connection.
type Host struct {
	pool   *workerpool.Pool
	poller *completionpoller.Poller
	proxy  *rpcproxy.Proxy[computepb.HubComputeServiceClient]
}

// Config describes the upstream and execution parameters for a worker host.
type Config struct {
	// UpstreamAddr is the server or hub this host requests tasks from.
	UpstreamAddr string
	// ReconnectInterval bounds how often a failed dial is retried.
	ReconnectInterval time.Duration
	// PollInterval is how often the Completion Poller sweeps.
	PollInterval time.Duration
	// InitialWorkers sizes the pool at startup.
	InitialWorkers int
	// Executor runs a task's payload; callers supply the concrete
	// computation since task semantics are out of this platform's scope.
	Executor workerpool.TaskExecutor
	// Courtesy gates task progress; a nil value always permits work.
	Courtesy *courtesy.Monitor
}

// dial opens a plaintext gRPC connection to addr and wraps it as a
// HubComputeServiceClient — a worker never needs the full ComputeService,
// whether it's really talking to a server or to a hub standing in for one.
func dial(ctx context.Context, addr string) (computepb.HubComputeServiceClient, io.Closer, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return computepb.NewHubComputeServiceClient(conn), conn, nil
}

// New assembles a Host from cfg and starts its worker pool.
func New(cfg Config) *Host {
	if cfg.Courtesy == nil {
		cfg.Courtesy = courtesy.New(true)
	}
	reconnect := cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = time.Second
	}

	proxy := rpcproxy.New(func(ctx context.Context) (computepb.HubComputeServiceClient, io.Closer, error) {
		return dial(ctx, cfg.UpstreamAddr)
	}, classify, reconnect)

	source := &taskSource{proxy: proxy}
	pool := workerpool.New(source, cfg.Executor, cfg.Courtesy, cfg.InitialWorkers)

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	poller := completionpoller.New(pool, nil, &finishedTaskService{proxy: proxy}, pollInterval)
	poller.Start()

	return &Host{pool: pool, poller: poller, proxy: proxy}
}

// Pool exposes the Worker Pool for CLI commands (stat, idle, cancel by
// worker id).
func (h *Host) Pool() *workerpool.Pool { return h.pool }

// Stop halts the Completion Poller, drains the worker pool, and releases
// the upstream connection.
func (h *Host) Stop() {
	h.poller.Stop()
	h.pool.Stop()
	_ = h.proxy.Close()
}
