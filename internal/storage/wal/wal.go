package wal

// ============================================================================
// WAL core
// Responsibilities:
// 1. Append game events to the results log (append-only, one JSON per line)
// 2. Replay events newer than the last snapshot to restore competition state
// 3. Rotate the log after a snapshot, archiving the old file gzipped
// 4. Guarantee durability and integrity of what was written
// ============================================================================

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// FileInterface is the subset of *os.File the WAL writes through.
// Tests substitute it to simulate disk failures.
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// WAL is a Write-Ahead Log instance.
type WAL struct {
	mu           sync.Mutex    // guards everything below
	file         FileInterface // open log file
	encoder      *json.Encoder // writes one event per line
	path         string        // log file path
	seq          uint64        // last sequence number handed out
	syncOnAppend bool          // flush and fsync on every append
	closed       bool

	buffer        []Event
	bufferSize    int
	lastFlushTime time.Time
	flushInterval time.Duration
}

// ============================================================================
// Public API
// ============================================================================

// NewWAL creates or opens the log at path.
//
// The sequence number continues from the last event in the file. A torn
// final line, left by a crash in the middle of a write, is cut off before
// the file is reopened for appending.
func NewWAL(path string, syncOnAppend bool) (*WAL, error) {
	var seq uint64
	if f, err := os.Open(path); err == nil {
		res, scanErr := scanLog(f, nil)
		f.Close()
		if scanErr != nil {
			return nil, fmt.Errorf("open %s: %w", path, scanErr)
		}
		if res.Last != nil {
			seq = res.Last.Seq
		}
		if res.Torn {
			if err := os.Truncate(path, res.GoodOffset); err != nil {
				return nil, fmt.Errorf("truncate torn tail of %s: %w", path, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		file:         file,
		encoder:      json.NewEncoder(file),
		path:         path,
		seq:          seq,
		syncOnAppend: syncOnAppend,

		buffer:        make([]Event, 0, 64),
		bufferSize:    64,
		lastFlushTime: time.Now(),
		flushInterval: time.Second,
	}, nil
}

// Append assigns the next sequence number to event and writes it.
//
// The event is buffered unless syncOnAppend or forceFlush is set, the
// buffer is full, or the flush interval has elapsed.
func (w *WAL) Append(event Event, forceFlush bool) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWALClosed
	}

	w.seq++
	event.Seq = w.seq
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	event.Checksum = CalculateChecksum(event)
	w.buffer = append(w.buffer, event)

	needFlush := w.syncOnAppend || forceFlush ||
		len(w.buffer) >= w.bufferSize ||
		time.Since(w.lastFlushTime) > w.flushInterval
	if needFlush {
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	}
	return event.Seq, nil
}

// AppendResult durably records a finished game.
func (w *WAL) AppendResult(record types.GameRecord) (uint64, error) {
	return w.Append(Event{Type: EventGameResult, GameID: record.GameID, Record: &record}, true)
}

// AppendError durably records an aborted game.
func (w *WAL) AppendError(gameID, message string) (uint64, error) {
	return w.Append(Event{Type: EventGameError, GameID: gameID, Message: message}, true)
}

// Flush writes buffered events and syncs the file.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWALClosed
	}
	return w.flushLocked()
}

// Replay calls handler for every event with a sequence number greater
// than afterSeq, in log order.
//
// Every event's checksum is verified, and sequence numbers must be
// consecutive. Replay stops at the first error.
func (w *WAL) Replay(afterSeq uint64, handler EventHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWALClosed
	}
	if err := w.flushLocked(); err != nil {
		return err
	}

	file, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = scanLog(file, func(event Event) error {
		if event.Seq <= afterSeq {
			return nil
		}
		return handler(event)
	})
	return err
}

// Rotate archives the current log as a gzip file and starts an empty one.
// Sequence numbers keep counting, so a snapshot's LastSeq stays valid.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWALClosed
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}

	backupPath := w.path + "." + time.Now().Format("20060102_150405.000000000")
	if err := os.Rename(w.path, backupPath); err != nil {
		return err
	}
	if err := compressWALFile(backupPath, backupPath+".gz"); err != nil {
		return fmt.Errorf("compress %s: %w", backupPath, err)
	}
	if err := os.Remove(backupPath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = newFile
	w.encoder = json.NewEncoder(newFile)
	w.lastFlushTime = time.Now()
	return nil
}

// Close flushes and closes the log. A closed WAL cannot be reused.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// GetLastSeq returns the last sequence number handed out.
//
// A snapshot records it, so recovery knows where replay starts.
func (w *WAL) GetLastSeq() uint64 {
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// AdvanceSeq makes the next event number at least seq+1. After a
// rotation the live file is empty, so a reopened log would otherwise
// count from zero again and collide with the snapshot's LastSeq.
func (w *WAL) AdvanceSeq(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.seq {
		w.seq = seq
	}
}

// Path returns the log file path.
func (w *WAL) Path() string {
	return w.path
}

// ============================================================================
// Internal helpers
// ============================================================================

// flushLocked writes the buffer and syncs. The caller holds w.mu.
func (w *WAL) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}
	for _, event := range w.buffer {
		if err := w.encoder.Encode(event); err != nil {
			return err
		}
	}
	w.buffer = w.buffer[:0]
	w.lastFlushTime = time.Now()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}

// compressWALFile writes a gzip copy of srcPath to dstPath.
func compressWALFile(srcPath, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()
	dstFile, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	gzipWriter := gzip.NewWriter(dstFile)
	if _, err := io.Copy(gzipWriter, srcFile); err != nil {
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	return dstFile.Sync()
}
