package computepb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName deliberately replaces grpc-go's default "proto" codec (which
// expects proto.Message's reflection-based ProtoReflect method) with the
// codec in wire.go, since these messages are plain structs rather than
// full protoreflect-backed types.
const codecName = "proto"

type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error)      { return Marshal(v) }
func (wireCodec) Unmarshal(data []byte, v interface{}) error { return Unmarshal(data, v) }
func (wireCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}

// --- AuthenticationService -------------------------------------------------

type AuthenticationServiceServer interface {
	Authenticate(context.Context, *AuthenticateRequest) (*AuthenticateResponse, error)
}

type AuthenticationServiceClient interface {
	Authenticate(ctx context.Context, in *AuthenticateRequest, opts ...grpc.CallOption) (*AuthenticateResponse, error)
}

type authenticationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthenticationServiceClient(cc grpc.ClientConnInterface) AuthenticationServiceClient {
	return &authenticationServiceClient{cc: cc}
}

func (c *authenticationServiceClient) Authenticate(ctx context.Context, in *AuthenticateRequest, opts ...grpc.CallOption) (*AuthenticateResponse, error) {
	out := new(AuthenticateResponse)
	if err := c.cc.Invoke(ctx, "/jdcp.compute.v1.AuthenticationService/Authenticate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var AuthenticationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "jdcp.compute.v1.AuthenticationService",
	HandlerType: (*AuthenticationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Authenticate",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(AuthenticateRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AuthenticationServiceServer).Authenticate(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/jdcp.compute.v1.AuthenticationService/Authenticate"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AuthenticationServiceServer).Authenticate(ctx, req.(*AuthenticateRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
}

// --- ComputeService (full server-facing surface) ---------------------------

type ComputeServiceServer interface {
	CreateJob(context.Context, *CreateJobRequest) (*CreateJobResponse, error)
	SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error)
	CancelJob(context.Context, *CancelJobRequest) (*Empty, error)
	SetJobPriority(context.Context, *SetJobPriorityRequest) (*Empty, error)
	SetIdleTime(context.Context, *SetIdleTimeRequest) (*Empty, error)
	GetJobStatus(context.Context, *GetJobStatusRequest) (*JobStatus, error)
	WaitForJobStatusChange(context.Context, *WaitForJobStatusChangeRequest) (*JobStatus, error)
	SetClassDefinition(context.Context, *SetClassDefinitionRequest) (*Empty, error)

	HubComputeServiceServer
}

// HubComputeServiceServer is the reduced worker-facing subset; ComputeService
// embeds it so a full server satisfies both interfaces with one
// implementation, while a hub only ever needs to implement this one.
type HubComputeServiceServer interface {
	RequestTask(context.Context, *Empty) (*TaskDescription, error)
	SubmitTaskResults(context.Context, *SubmitTaskResultsRequest) (*Empty, error)
	ReportException(context.Context, *ReportExceptionRequest) (*Empty, error)
	GetTaskWorker(context.Context, *GetTaskWorkerRequest) (*GetTaskWorkerResponse, error)
	GetClassDigest(context.Context, *GetClassDigestRequest) (*GetClassDigestResponse, error)
	GetClassDefinition(context.Context, *GetClassDefinitionRequest) (*GetClassDefinitionResponse, error)
	GetFinishedTasks(context.Context, *GetFinishedTasksRequest) (*GetFinishedTasksResponse, error)
}

type ComputeServiceClient interface {
	CreateJob(ctx context.Context, in *CreateJobRequest, opts ...grpc.CallOption) (*CreateJobResponse, error)
	SubmitJob(ctx context.Context, in *SubmitJobRequest, opts ...grpc.CallOption) (*SubmitJobResponse, error)
	CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*Empty, error)
	SetJobPriority(ctx context.Context, in *SetJobPriorityRequest, opts ...grpc.CallOption) (*Empty, error)
	SetIdleTime(ctx context.Context, in *SetIdleTimeRequest, opts ...grpc.CallOption) (*Empty, error)
	GetJobStatus(ctx context.Context, in *GetJobStatusRequest, opts ...grpc.CallOption) (*JobStatus, error)
	WaitForJobStatusChange(ctx context.Context, in *WaitForJobStatusChangeRequest, opts ...grpc.CallOption) (*JobStatus, error)
	SetClassDefinition(ctx context.Context, in *SetClassDefinitionRequest, opts ...grpc.CallOption) (*Empty, error)

	HubComputeServiceClient
}

// HubComputeServiceClient is what a worker actually needs, whether it's
// talking to a real server or to a hub standing in for one — the two wire
// services have identical method sets, so one client interface serves both.
type HubComputeServiceClient interface {
	RequestTask(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*TaskDescription, error)
	SubmitTaskResults(ctx context.Context, in *SubmitTaskResultsRequest, opts ...grpc.CallOption) (*Empty, error)
	ReportException(ctx context.Context, in *ReportExceptionRequest, opts ...grpc.CallOption) (*Empty, error)
	GetTaskWorker(ctx context.Context, in *GetTaskWorkerRequest, opts ...grpc.CallOption) (*GetTaskWorkerResponse, error)
	GetClassDigest(ctx context.Context, in *GetClassDigestRequest, opts ...grpc.CallOption) (*GetClassDigestResponse, error)
	GetClassDefinition(ctx context.Context, in *GetClassDefinitionRequest, opts ...grpc.CallOption) (*GetClassDefinitionResponse, error)
	GetFinishedTasks(ctx context.Context, in *GetFinishedTasksRequest, opts ...grpc.CallOption) (*GetFinishedTasksResponse, error)
}

type computeServiceClient struct {
	cc         grpc.ClientConnInterface
	serviceFQN string
}

// NewComputeServiceClient wraps cc for the full ComputeService, as called by
// a client host talking directly to a server.
func NewComputeServiceClient(cc grpc.ClientConnInterface) ComputeServiceClient {
	return &computeServiceClient{cc: cc, serviceFQN: "jdcp.compute.v1.ComputeService"}
}

// NewHubComputeServiceClient wraps cc for the reduced HubComputeService, as
// called by a worker that may be talking to either a server or a hub.
func NewHubComputeServiceClient(cc grpc.ClientConnInterface) HubComputeServiceClient {
	return &computeServiceClient{cc: cc, serviceFQN: "jdcp.compute.v1.HubComputeService"}
}

func (c *computeServiceClient) method(name string) string {
	return "/" + c.serviceFQN + "/" + name
}

func (c *computeServiceClient) CreateJob(ctx context.Context, in *CreateJobRequest, opts ...grpc.CallOption) (*CreateJobResponse, error) {
	out := new(CreateJobResponse)
	if err := c.cc.Invoke(ctx, c.method("CreateJob"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) SubmitJob(ctx context.Context, in *SubmitJobRequest, opts ...grpc.CallOption) (*SubmitJobResponse, error) {
	out := new(SubmitJobResponse)
	if err := c.cc.Invoke(ctx, c.method("SubmitJob"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, c.method("CancelJob"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) SetJobPriority(ctx context.Context, in *SetJobPriorityRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, c.method("SetJobPriority"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) SetIdleTime(ctx context.Context, in *SetIdleTimeRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, c.method("SetIdleTime"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) GetJobStatus(ctx context.Context, in *GetJobStatusRequest, opts ...grpc.CallOption) (*JobStatus, error) {
	out := new(JobStatus)
	if err := c.cc.Invoke(ctx, c.method("GetJobStatus"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) WaitForJobStatusChange(ctx context.Context, in *WaitForJobStatusChangeRequest, opts ...grpc.CallOption) (*JobStatus, error) {
	out := new(JobStatus)
	if err := c.cc.Invoke(ctx, c.method("WaitForJobStatusChange"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) SetClassDefinition(ctx context.Context, in *SetClassDefinitionRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, c.method("SetClassDefinition"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) RequestTask(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*TaskDescription, error) {
	out := new(TaskDescription)
	if err := c.cc.Invoke(ctx, c.method("RequestTask"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) SubmitTaskResults(ctx context.Context, in *SubmitTaskResultsRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, c.method("SubmitTaskResults"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) ReportException(ctx context.Context, in *ReportExceptionRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, c.method("ReportException"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) GetTaskWorker(ctx context.Context, in *GetTaskWorkerRequest, opts ...grpc.CallOption) (*GetTaskWorkerResponse, error) {
	out := new(GetTaskWorkerResponse)
	if err := c.cc.Invoke(ctx, c.method("GetTaskWorker"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) GetClassDigest(ctx context.Context, in *GetClassDigestRequest, opts ...grpc.CallOption) (*GetClassDigestResponse, error) {
	out := new(GetClassDigestResponse)
	if err := c.cc.Invoke(ctx, c.method("GetClassDigest"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) GetClassDefinition(ctx context.Context, in *GetClassDefinitionRequest, opts ...grpc.CallOption) (*GetClassDefinitionResponse, error) {
	out := new(GetClassDefinitionResponse)
	if err := c.cc.Invoke(ctx, c.method("GetClassDefinition"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeServiceClient) GetFinishedTasks(ctx context.Context, in *GetFinishedTasksRequest, opts ...grpc.CallOption) (*GetFinishedTasksResponse, error) {
	out := new(GetFinishedTasksResponse)
	if err := c.cc.Invoke(ctx, c.method("GetFinishedTasks"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler(name string, dispatch func(ctx context.Context, srv interface{}, req interface{}) (interface{}, error), newReq func() interface{}, fqn string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return dispatch(ctx, srv, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + fqn + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return dispatch(ctx, srv, req)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

const computeServiceFQN = "jdcp.compute.v1.ComputeService"
const hubComputeServiceFQN = "jdcp.compute.v1.HubComputeService"

var ComputeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: computeServiceFQN,
	HandlerType: (*ComputeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateJob", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).CreateJob(ctx, req.(*CreateJobRequest))
		}, func() interface{} { return new(CreateJobRequest) }, computeServiceFQN),
		unaryHandler("SubmitJob", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).SubmitJob(ctx, req.(*SubmitJobRequest))
		}, func() interface{} { return new(SubmitJobRequest) }, computeServiceFQN),
		unaryHandler("CancelJob", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).CancelJob(ctx, req.(*CancelJobRequest))
		}, func() interface{} { return new(CancelJobRequest) }, computeServiceFQN),
		unaryHandler("SetJobPriority", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).SetJobPriority(ctx, req.(*SetJobPriorityRequest))
		}, func() interface{} { return new(SetJobPriorityRequest) }, computeServiceFQN),
		unaryHandler("SetIdleTime", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).SetIdleTime(ctx, req.(*SetIdleTimeRequest))
		}, func() interface{} { return new(SetIdleTimeRequest) }, computeServiceFQN),
		unaryHandler("GetJobStatus", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).GetJobStatus(ctx, req.(*GetJobStatusRequest))
		}, func() interface{} { return new(GetJobStatusRequest) }, computeServiceFQN),
		unaryHandler("WaitForJobStatusChange", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).WaitForJobStatusChange(ctx, req.(*WaitForJobStatusChangeRequest))
		}, func() interface{} { return new(WaitForJobStatusChangeRequest) }, computeServiceFQN),
		unaryHandler("SetClassDefinition", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).SetClassDefinition(ctx, req.(*SetClassDefinitionRequest))
		}, func() interface{} { return new(SetClassDefinitionRequest) }, computeServiceFQN),
		unaryHandler("RequestTask", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).RequestTask(ctx, req.(*Empty))
		}, func() interface{} { return new(Empty) }, computeServiceFQN),
		unaryHandler("SubmitTaskResults", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).SubmitTaskResults(ctx, req.(*SubmitTaskResultsRequest))
		}, func() interface{} { return new(SubmitTaskResultsRequest) }, computeServiceFQN),
		unaryHandler("ReportException", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).ReportException(ctx, req.(*ReportExceptionRequest))
		}, func() interface{} { return new(ReportExceptionRequest) }, computeServiceFQN),
		unaryHandler("GetTaskWorker", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).GetTaskWorker(ctx, req.(*GetTaskWorkerRequest))
		}, func() interface{} { return new(GetTaskWorkerRequest) }, computeServiceFQN),
		unaryHandler("GetClassDigest", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).GetClassDigest(ctx, req.(*GetClassDigestRequest))
		}, func() interface{} { return new(GetClassDigestRequest) }, computeServiceFQN),
		unaryHandler("GetClassDefinition", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).GetClassDefinition(ctx, req.(*GetClassDefinitionRequest))
		}, func() interface{} { return new(GetClassDefinitionRequest) }, computeServiceFQN),
		unaryHandler("GetFinishedTasks", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(ComputeServiceServer).GetFinishedTasks(ctx, req.(*GetFinishedTasksRequest))
		}, func() interface{} { return new(GetFinishedTasksRequest) }, computeServiceFQN),
	},
}

var HubComputeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: hubComputeServiceFQN,
	HandlerType: (*HubComputeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("RequestTask", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).RequestTask(ctx, req.(*Empty))
		}, func() interface{} { return new(Empty) }, hubComputeServiceFQN),
		unaryHandler("SubmitTaskResults", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).SubmitTaskResults(ctx, req.(*SubmitTaskResultsRequest))
		}, func() interface{} { return new(SubmitTaskResultsRequest) }, hubComputeServiceFQN),
		unaryHandler("ReportException", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).ReportException(ctx, req.(*ReportExceptionRequest))
		}, func() interface{} { return new(ReportExceptionRequest) }, hubComputeServiceFQN),
		unaryHandler("GetTaskWorker", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).GetTaskWorker(ctx, req.(*GetTaskWorkerRequest))
		}, func() interface{} { return new(GetTaskWorkerRequest) }, hubComputeServiceFQN),
		unaryHandler("GetClassDigest", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).GetClassDigest(ctx, req.(*GetClassDigestRequest))
		}, func() interface{} { return new(GetClassDigestRequest) }, hubComputeServiceFQN),
		unaryHandler("GetClassDefinition", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).GetClassDefinition(ctx, req.(*GetClassDefinitionRequest))
		}, func() interface{} { return new(GetClassDefinitionRequest) }, hubComputeServiceFQN),
		unaryHandler("GetFinishedTasks", func(ctx context.Context, srv, req interface{}) (interface{}, error) {
			return srv.(HubComputeServiceServer).GetFinishedTasks(ctx, req.(*GetFinishedTasksRequest))
		}, func() interface{} { return new(GetFinishedTasksRequest) }, hubComputeServiceFQN),
	},
}

// RegisterAuthenticationServiceServer registers srv with s under the
// AuthenticationService name.
func RegisterAuthenticationServiceServer(s grpc.ServiceRegistrar, srv AuthenticationServiceServer) {
	s.RegisterService(&AuthenticationService_ServiceDesc, srv)
}

// RegisterComputeServiceServer registers srv with s under the full
// ComputeService name — used by a real server, never by a hub.
func RegisterComputeServiceServer(s grpc.ServiceRegistrar, srv ComputeServiceServer) {
	s.RegisterService(&ComputeService_ServiceDesc, srv)
}

// RegisterHubComputeServiceServer registers srv with s under the reduced
// HubComputeService name — used by a hub.
func RegisterHubComputeServiceServer(s grpc.ServiceRegistrar, srv HubComputeServiceServer) {
	s.RegisterService(&HubComputeService_ServiceDesc, srv)
}
