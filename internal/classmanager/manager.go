// Package classmanager implements the Versioned Class Manager (C2): it
// layers per-snapshot version overrides and refcounted deprecation on top
// of the Code Cache (C1), so in-flight jobs keep seeing the class versions
// they started with even after the server publishes a newer one.
package classmanager

import (
	"fmt"
	"sync"

	"github.com/bwkimmel/jdcp-go/internal/codecache"
	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// SnapshotID identifies one class-version snapshot: the view of class
// definitions a single job was created against.
type SnapshotID int64

type refKey struct {
	name   string
	digest types.Digest
}

// Manager is the Versioned Class Manager. Safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	cache *codecache.Cache

	current   map[string]types.Digest
	snapshots map[SnapshotID]map[string]types.Digest
	refs      map[refKey]int
	nextID    SnapshotID
}

// New wraps a Code Cache with version tracking.
func New(cache *codecache.Cache) *Manager {
	return &Manager{
		cache:     cache,
		current:   make(map[string]types.Digest),
		snapshots: make(map[SnapshotID]map[string]types.Digest),
		refs:      make(map[refKey]int),
	}
}

// CreateSnapshot opens a new snapshot pinned to every currently published
// digest, each pin holding a reference, so a later SetCurrent does not
// change what the snapshot sees. A name first published after the
// snapshot was created, and not overridden for it, falls through to the
// current published version.
func (m *Manager) CreateSnapshot() SnapshotID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	overrides := make(map[string]types.Digest, len(m.current))
	for name, digest := range m.current {
		overrides[name] = digest
		m.refs[refKey{name, digest}]++
	}
	m.snapshots[id] = overrides
	return id
}

// ReleaseSnapshot closes a snapshot, dropping the reference every override
// it held. A class whose refcount falls to zero as a result is evicted
// from the backing cache immediately: the pending-deletion queue is this
// refcount reaching zero, not a separate deferred step.
func (m *Manager) ReleaseSnapshot(id SnapshotID) error {
	m.mu.Lock()
	overrides, ok := m.snapshots[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("classmanager: unknown snapshot %d", id)
	}
	delete(m.snapshots, id)

	var toEvict []refKey
	for name, digest := range overrides {
		key := refKey{name, digest}
		m.refs[key]--
		if m.refs[key] <= 0 {
			delete(m.refs, key)
			toEvict = append(toEvict, key)
		}
	}
	m.mu.Unlock()

	for _, key := range toEvict {
		if err := m.cache.Evict(key.name, key.digest); err != nil {
			return err
		}
	}
	return nil
}

// SetCurrent publishes a new globally current definition for name. The
// previously current digest loses the reference SetCurrent itself was
// holding; it survives if some open snapshot still overrides to it.
func (m *Manager) SetCurrent(name string, definition []byte) (types.Digest, error) {
	digest, err := m.cache.Put(name, definition)
	if err != nil {
		return digest, err
	}

	m.mu.Lock()
	old, hadOld := m.current[name]
	m.current[name] = digest
	if !hadOld || old != digest {
		m.refs[refKey{name, digest}]++
	}
	m.mu.Unlock()

	if hadOld && old != digest {
		m.release(name, old)
	}
	return digest, nil
}

// SetForSnapshot pins name to a specific definition for one snapshot only,
// independent of whatever SetCurrent later publishes.
func (m *Manager) SetForSnapshot(id SnapshotID, name string, definition []byte) (types.Digest, error) {
	digest, err := m.cache.Put(name, definition)
	if err != nil {
		return digest, err
	}

	m.mu.Lock()
	overrides, ok := m.snapshots[id]
	if !ok {
		m.mu.Unlock()
		return digest, fmt.Errorf("classmanager: unknown snapshot %d", id)
	}
	old, hadOld := overrides[name]
	overrides[name] = digest
	if !hadOld || old != digest {
		m.refs[refKey{name, digest}]++
	}
	m.mu.Unlock()

	if hadOld && old != digest {
		m.release(name, old)
	}
	return digest, nil
}

// release drops one reference to (name, digest) and evicts it from the
// cache if nothing references it any longer.
func (m *Manager) release(name string, digest types.Digest) {
	key := refKey{name, digest}
	m.mu.Lock()
	m.refs[key]--
	evict := m.refs[key] <= 0
	if evict {
		delete(m.refs, key)
	}
	m.mu.Unlock()

	if evict {
		_ = m.cache.Evict(name, digest)
	}
}

// GetForSnapshot resolves name as seen from snapshot id: the snapshot's own
// override if it has one, else the globally current digest.
func (m *Manager) GetForSnapshot(id SnapshotID, name string) (types.Digest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if overrides, ok := m.snapshots[id]; ok {
		if digest, ok := overrides[name]; ok {
			return digest, true
		}
	}
	digest, ok := m.current[name]
	return digest, ok
}

// GetDefinition resolves name for snapshot id and returns its bytes.
func (m *Manager) GetDefinition(id SnapshotID, name string) ([]byte, bool) {
	digest, ok := m.GetForSnapshot(id, name)
	if !ok {
		return nil, false
	}
	return m.cache.Get(name, digest)
}

// CurrentDigest returns the globally published digest for name, ignoring
// any snapshot overrides.
func (m *Manager) CurrentDigest(name string) (types.Digest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	digest, ok := m.current[name]
	return digest, ok
}
