// Package computepb holds the wire messages and gRPC service definitions
// for jdcp.compute.v1, hand-authored from compute.proto (see that file for
// the canonical field table) rather than produced by protoc-gen-go/
// protoc-gen-go-grpc, which aren't available in this environment. See
// wire.go for how messages serialize.
package computepb

type AuthenticateRequest struct {
	User              string `wire:"1,string"`
	Password          string `wire:"2,string"`
	ProtocolVersionID []byte `wire:"3,bytes"`
}

type AuthenticateResponse struct {
	ServiceHandle string `wire:"1,string"`
}

type Empty struct{}

type CreateJobRequest struct {
	Description string `wire:"1,string"`
}

type CreateJobResponse struct {
	JobID []byte `wire:"1,bytes"`
}

type SubmitJobRequest struct {
	Payload     []byte `wire:"1,bytes"`
	JobID       []byte `wire:"2,bytes"`
	Description string `wire:"3,string"`
}

type SubmitJobResponse struct {
	JobID []byte `wire:"1,bytes"`
}

type CancelJobRequest struct {
	JobID []byte `wire:"1,bytes"`
}

type SetJobPriorityRequest struct {
	JobID    []byte `wire:"1,bytes"`
	Priority int32  `wire:"2,varint"`
}

type SetIdleTimeRequest struct {
	Seconds int32 `wire:"1,varint"`
}

type GetJobStatusRequest struct {
	JobID []byte `wire:"1,bytes"`
}

type WaitForJobStatusChangeRequest struct {
	JobID       []byte `wire:"1,bytes"`
	LastEventID int64  `wire:"2,varint"`
	TimeoutMs   int64  `wire:"3,varint"`
}

type JobStatus struct {
	JobID       []byte  `wire:"1,bytes"`
	Description string  `wire:"2,string"`
	State       int32   `wire:"3,varint"`
	Progress    float64 `wire:"4,fixed64"`
	HasProgress bool    `wire:"5,bool"`
	Status      string  `wire:"6,string"`
	EventID     int64   `wire:"7,varint"`
}

type SetClassDefinitionRequest struct {
	Name       string `wire:"1,string"`
	JobID      []byte `wire:"2,bytes"`
	Definition []byte `wire:"3,bytes"`
}

type TaskDescription struct {
	JobID       []byte `wire:"1,bytes"`
	TaskID      uint32 `wire:"2,varint"`
	Payload     []byte `wire:"3,bytes"`
	IdleSeconds int32  `wire:"4,varint"`
}

type SubmitTaskResultsRequest struct {
	JobID  []byte `wire:"1,bytes"`
	TaskID uint32 `wire:"2,varint"`
	Result []byte `wire:"3,bytes"`
}

type ReportExceptionRequest struct {
	JobID   []byte `wire:"1,bytes"`
	TaskID  uint32 `wire:"2,varint"`
	Message string `wire:"3,string"`
}

type GetTaskWorkerRequest struct {
	JobID []byte `wire:"1,bytes"`
}

type GetTaskWorkerResponse struct {
	Info []byte `wire:"1,bytes"`
}

type GetClassDigestRequest struct {
	Name  string `wire:"1,string"`
	JobID []byte `wire:"2,bytes"`
}

type GetClassDigestResponse struct {
	Digest []byte `wire:"1,bytes"`
	Found  bool   `wire:"2,bool"`
}

type GetClassDefinitionRequest struct {
	Name   string `wire:"1,string"`
	JobID  []byte `wire:"2,bytes"`
	Digest []byte `wire:"3,bytes"`
}

type GetClassDefinitionResponse struct {
	Definition []byte `wire:"1,bytes"`
	Found      bool   `wire:"2,bool"`
}

type GetFinishedTasksRequest struct {
	JobIDs  [][]byte `wire:"1,repeated_bytes"`
	TaskIDs []uint32 `wire:"2,repeated_varint32"`
}

type GetFinishedTasksResponse struct {
	Finished []bool `wire:"1,repeated_bool"`
}
