// Package codecache implements the Code Cache (C1): a content-addressed
// store of named class definitions, keyed by (name, digest), with a durable
// backing log so the cache survives a restart of the distribution
// mechanism. Job state is not persisted here or anywhere else — see the
// design notes on the explicit split between class-cache durability (this
// package) and job-state durability (out of scope).
package codecache

import "github.com/bwkimmel/jdcp-go/pkg/types"

// EventType enumerates the durable log's record kinds.
type EventType string

const (
	// EventPut records that (name, digest) -> definition was added.
	EventPut EventType = "PUT"
	// EventEvict records that a (name, digest) pair was dropped from the
	// live set because its last referencing snapshot was released.
	EventEvict EventType = "EVICT"
)

// Event is one durable log record. Definition is only populated on a Put
// event; an Evict event carries just the key.
type Event struct {
	Seq        uint64      `json:"seq"`
	Type       EventType   `json:"type"`
	Name       string      `json:"name"`
	Digest     types.Digest `json:"digest"`
	Definition []byte      `json:"definition,omitempty"`
	Checksum   uint32      `json:"checksum"`
}
