package wal

// ============================================================================
// Errors returned while appending to or reading a results log
// ============================================================================

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptedWAL matches a line that is not a valid event.
	ErrCorruptedWAL = errors.New("wal: file is corrupted")

	// ErrChecksumMismatch matches an event whose CRC32 does not verify.
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")

	// ErrEmptyWAL is returned by GetLastEvent for a log with no events.
	ErrEmptyWAL = errors.New("wal: file is empty")

	// ErrWALClosed is returned by Append and Rotate after Close.
	ErrWALClosed = errors.New("wal: already closed")

	// ErrSyncFailed means a result may not be durable; the game must not be
	// counted as played.
	ErrSyncFailed = errors.New("wal: sync to disk failed")

	ErrSequenceGap = errors.New("wal: sequence gap")
)

// ChecksumError reports which event failed verification.
type ChecksumError struct {
	Seq      uint64
	Expected uint32 // stored in the event
	Actual   uint32 // computed from the event
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("wal: checksum mismatch at seq=%d (expected=0x%08x, got=0x%08x)", e.Seq, e.Expected, e.Actual)
}

// Is lets errors.Is match ErrChecksumMismatch.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// CorruptionError locates an undecodable line. A torn final line is not
// a CorruptionError; see scanLog.
type CorruptionError struct {
	Line   int // 1-based
	Offset int64
	Cause  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("wal: corrupted event at line %d (offset %d): %v", e.Line, e.Offset, e.Cause)
}

func (e *CorruptionError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ErrCorruptedWAL.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruptedWAL
}
