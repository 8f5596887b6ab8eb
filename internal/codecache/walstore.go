package codecache

// Durable log for the code cache: an append-only, checksummed,
// batch-flushed JSON log of cache events, replayed at startup to rebuild
// the in-memory index. It logs class cache Put/Evict events so the
// distribution mechanism's cache survives a restart.

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type batchRequest struct {
	event Event
	errCh chan error
}

// WALStore is the append-only durable log backing a Cache.
type WALStore struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	path    string
	seq     uint64

	batchChan     chan batchRequest
	bufferSize    int
	flushInterval time.Duration
	closed        chan struct{}
	wg            sync.WaitGroup
	isClosed      bool
}

// OpenWALStore opens (creating if necessary) the log at path and starts its
// background batch writer. bufferSize and flushInterval control how many
// events accumulate before a single fsync; both fall back to sane defaults
// when zero.
func OpenWALStore(path string, bufferSize int, flushInterval time.Duration) (*WALStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("codecache: create wal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("codecache: open wal: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 64
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Millisecond
	}

	w := &WALStore{
		file:          file,
		encoder:       json.NewEncoder(file),
		path:          path,
		batchChan:     make(chan batchRequest, bufferSize*2),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		closed:        make(chan struct{}),
	}
	w.wg.Add(1)
	go w.batchWriter()
	return w, nil
}

// Append writes one event to the log and blocks until it (and its batch)
// has been fsynced, or the store is closed.
func (w *WALStore) Append(evt Event) error {
	w.mu.Lock()
	w.seq++
	evt.Seq = w.seq
	w.mu.Unlock()

	evt.Checksum = checksum(evt)
	errCh := make(chan error, 1)
	select {
	case w.batchChan <- batchRequest{event: evt, errCh: errCh}:
		return <-errCh
	case <-w.closed:
		return fmt.Errorf("codecache: wal closed")
	}
}

// Replay reads every record in the log from the start, verifying its
// checksum, and invokes handler for each. It stops and returns an error on
// the first checksum mismatch or decode failure.
func (w *WALStore) Replay(handler func(Event) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("codecache: open wal for replay: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for {
		var evt Event
		if err := dec.Decode(&evt); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("codecache: decode wal record: %w", err)
		}
		if evt.Checksum != checksum(evt) {
			return fmt.Errorf("codecache: checksum mismatch at seq=%d", evt.Seq)
		}
		if err := handler(evt); err != nil {
			return err
		}
	}
	return nil
}

// Seq returns the current event sequence number.
func (w *WALStore) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Close flushes any pending batch and closes the underlying file. The
// store must not be used afterward.
func (w *WALStore) Close() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return nil
	}
	w.isClosed = true
	w.mu.Unlock()

	close(w.closed)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *WALStore) batchWriter() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]batchRequest, 0, w.bufferSize)
	for {
		select {
		case req := <-w.batchChan:
			batch = append(batch, req)
			if len(batch) >= w.bufferSize {
				w.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(batch)
				batch = batch[:0]
			}
		case <-w.closed:
			if len(batch) > 0 {
				w.flushBatch(batch)
			}
			return
		}
	}
}

func (w *WALStore) flushBatch(batch []batchRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var flushErr error
	for i := range batch {
		if err := w.encoder.Encode(batch[i].event); err != nil {
			flushErr = fmt.Errorf("codecache: encode wal record: %w", err)
			break
		}
	}
	if flushErr == nil {
		if err := w.file.Sync(); err != nil {
			flushErr = fmt.Errorf("codecache: sync wal: %w", err)
		}
	}
	for i := range batch {
		batch[i].errCh <- flushErr
		close(batch[i].errCh)
	}
}

func checksum(evt Event) uint32 {
	data := string(evt.Type) + evt.Name + string(evt.Digest[:]) + string(evt.Definition)
	return crc32.ChecksumIEEE([]byte(data))
}
