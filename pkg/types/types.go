// Package types defines the core domain model shared by the server, worker,
// and hub: job identifiers, task descriptions, job status events, and the
// class-cache entities that back versioned code distribution.
package types

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// JobID uniquely identifies a job across its lifetime: 128-bit, assigned by
// the server at creation time.
type JobID = uuid.UUID

// NilJobID is the zero value of JobID; an idle directive carries this as its
// JobID.
var NilJobID = uuid.Nil

// TaskID uniquely identifies a task within a single job. Monotonically
// assigned by the server, starting at 1; 0 is reserved ("no task").
type TaskID uint32

// NoTaskID is the reserved "no task / pre-task error" sentinel.
const NoTaskID TaskID = 0

// JobState is one of the five states in the job lifecycle.
type JobState int

const (
	JobNew JobState = iota
	JobRunning
	JobStalled
	JobComplete
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobNew:
		return "New"
	case JobRunning:
		return "Running"
	case JobStalled:
		return "Stalled"
	case JobComplete:
		return "Complete"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is absorbing (Complete or Cancelled).
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobCancelled
}

// DefaultPriority is the priority assigned to a job when the client does not
// specify one.
const DefaultPriority = 20

// TaskDescription is handed to a worker in response to requestTask. A task
// description with JobID == NilJobID is an idle directive: IdleSeconds holds
// the number of seconds the worker should sleep before asking again.
type TaskDescription struct {
	JobID       JobID
	TaskID      TaskID
	Payload     []byte
	IdleSeconds int
}

// IsIdle reports whether this task description is an idle directive rather
// than real work.
func (t TaskDescription) IsIdle() bool {
	return t.JobID == NilJobID
}

// Digest is the 16-byte MD5 content hash keying a ClassEntry.
type Digest [md5.Size]byte

// DigestOf computes the content digest of a class definition.
func DigestOf(definition []byte) Digest {
	return md5.Sum(definition)
}

// ClassEntry is one named, versioned code definition in the Code Cache.
type ClassEntry struct {
	Name       string
	Digest     Digest
	Definition []byte
}

// JobStatus is a point-in-time snapshot of a job's progress, published as an
// event whenever state or progress changes.
type JobStatus struct {
	JobID       JobID
	Description string
	State       JobState
	// Progress is in [0,1]; HasProgress is false when progress is
	// indeterminate (bottom).
	Progress    float64
	HasProgress bool
	Status      string
	EventID     int64
}
