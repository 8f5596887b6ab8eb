package codecache

// Compaction snapshot: an atomic (temp file + rename) JSON dump of the
// cache's live name->digest table and its pending-deletion queue, written
// by Cache.Compact. Open loads it and then still replays the entire WAL
// from the beginning.

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bwkimmel/jdcp-go/pkg/types"
)

const snapshotSchemaVersion = 1

// SnapshotState is the compacted, restart-time view of a Cache: every
// (name, digest) pair the log has recorded as live, plus the digests
// waiting for refcount-driven eviction.
type SnapshotState struct {
	SchemaVer int                       `json:"schema_ver"`
	LastSeq   uint64                    `json:"last_seq"`
	Live      map[string][]types.Digest `json:"live"`
	Pending   []PendingEviction         `json:"pending"`
}

// PendingEviction is one entry on the deprecation queue: a digest kept
// alive only because some snapshot handle still references it.
type PendingEviction struct {
	Name   string       `json:"name"`
	Digest types.Digest `json:"digest"`
}

// SnapshotStore manages the on-disk compaction file.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore returns a store rooted at path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Write atomically persists state.
func (s *SnapshotStore) Write(state SnapshotState) error {
	state.SchemaVer = snapshotSchemaVersion
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("codecache: marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("codecache: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("codecache: rename snapshot: %w", err)
	}
	return nil
}

// Load reads the compaction file, returning an empty state if one has
// never been written.
func (s *SnapshotStore) Load() (SnapshotState, error) {
	var state SnapshotState
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotState{SchemaVer: snapshotSchemaVersion, Live: make(map[string][]types.Digest)}, nil
		}
		return state, fmt.Errorf("codecache: read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("codecache: corrupted snapshot: %w", err)
	}
	if state.SchemaVer != snapshotSchemaVersion {
		return state, fmt.Errorf("codecache: incompatible snapshot version %d", state.SchemaVer)
	}
	if state.Live == nil {
		state.Live = make(map[string][]types.Digest)
	}
	return state, nil
}
