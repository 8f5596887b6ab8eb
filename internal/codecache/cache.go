package codecache

import (
	"sync"
	"time"

	"github.com/bwkimmel/jdcp-go/pkg/types"
)

// Cache is the Code Cache (C1): a content-addressed map of (name, digest)
// to a class definition's bytes, backed by a durable log so the index
// survives a restart. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[types.Digest][]byte
	wal     *WALStore
	snap    *SnapshotStore
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	walBufferSize int
	walFlush      time.Duration
}

// WithWALBatching overrides the durable log's batching parameters.
func WithWALBatching(bufferSize int, flushInterval time.Duration) Option {
	return func(c *openConfig) {
		c.walBufferSize = bufferSize
		c.walFlush = flushInterval
	}
}

// Open creates a Cache backed by a WAL at walPath and a compaction
// snapshot at snapshotPath, restoring any state left from a previous run:
// the snapshot is loaded first, then the WAL is replayed in full (the
// snapshot does not yet track its own last-seq cutover, so replay is
// always complete).
func Open(walPath, snapshotPath string, opts ...Option) (*Cache, error) {
	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	wal, err := OpenWALStore(walPath, cfg.walBufferSize, cfg.walFlush)
	if err != nil {
		return nil, err
	}
	snap := NewSnapshotStore(snapshotPath)

	c := &Cache{
		entries: make(map[string]map[types.Digest][]byte),
		wal:     wal,
		snap:    snap,
	}

	state, err := snap.Load()
	if err != nil {
		return nil, err
	}
	for name, digests := range state.Live {
		for _, d := range digests {
			c.ensureBucket(name)[d] = nil // placeholder; filled by WAL replay
		}
	}

	if err := wal.Replay(func(evt Event) error {
		switch evt.Type {
		case EventPut:
			c.ensureBucket(evt.Name)[evt.Digest] = evt.Definition
		case EventEvict:
			if bucket, ok := c.entries[evt.Name]; ok {
				delete(bucket, evt.Digest)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Cache) ensureBucket(name string) map[types.Digest][]byte {
	b, ok := c.entries[name]
	if !ok {
		b = make(map[types.Digest][]byte)
		c.entries[name] = b
	}
	return b
}

// Put stores a class definition under name, returning its content digest.
// Idempotent: putting the same bytes under the same name twice is a no-op
// the second time.
func (c *Cache) Put(name string, definition []byte) (types.Digest, error) {
	digest := types.DigestOf(definition)

	c.mu.Lock()
	bucket := c.ensureBucket(name)
	if _, exists := bucket[digest]; exists {
		c.mu.Unlock()
		return digest, nil
	}
	c.mu.Unlock()

	if err := c.wal.Append(Event{Type: EventPut, Name: name, Digest: digest, Definition: definition}); err != nil {
		return digest, err
	}

	c.mu.Lock()
	c.ensureBucket(name)[digest] = definition
	c.mu.Unlock()
	return digest, nil
}

// Get returns the definition bytes for (name, digest), if present.
func (c *Cache) Get(name string, digest types.Digest) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	def, ok := bucket[digest]
	return def, ok
}

// Has reports whether (name, digest) is present, without returning the
// (possibly large) definition bytes.
func (c *Cache) Has(name string, digest types.Digest) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bucket, ok := c.entries[name]
	if !ok {
		return false
	}
	_, ok = bucket[digest]
	return ok
}

// Evict removes (name, digest) from the live set once the Versioned Class
// Manager has determined no snapshot references it any longer.
func (c *Cache) Evict(name string, digest types.Digest) error {
	if err := c.wal.Append(Event{Type: EventEvict, Name: name, Digest: digest}); err != nil {
		return err
	}
	c.mu.Lock()
	if bucket, ok := c.entries[name]; ok {
		delete(bucket, digest)
	}
	c.mu.Unlock()
	return nil
}

// Compact writes a fresh compaction snapshot of the current live set. The
// caller supplies the pending-eviction queue (owned by the class manager)
// since the cache itself has no notion of snapshot refcounts.
func (c *Cache) Compact(pending []PendingEviction) error {
	c.mu.RLock()
	live := make(map[string][]types.Digest, len(c.entries))
	for name, bucket := range c.entries {
		digests := make([]types.Digest, 0, len(bucket))
		for d := range bucket {
			digests = append(digests, d)
		}
		live[name] = digests
	}
	c.mu.RUnlock()

	return c.snap.Write(SnapshotState{
		LastSeq: c.wal.Seq(),
		Live:    live,
		Pending: pending,
	})
}

// Close releases the cache's durable log handle.
func (c *Cache) Close() error {
	return c.wal.Close()
}
