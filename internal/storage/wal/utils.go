package wal

// ============================================================================
// WAL utilities
// Responsibility: scanning, validation and inspection of log files
// ============================================================================

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// scanResult summarises one pass over a log.
type scanResult struct {
	Last       *Event // last good event
	Count      int    // number of good events
	GoodOffset int64  // byte offset just past the last good line
	Torn       bool   // the final line was an incomplete write
}

// scanLog decodes and verifies every event in r, calling fn (if not nil)
// for each one.
//
// A final line with no trailing newline that fails to decode is a torn
// write from a crash; it is reported in the result rather than as an error.
// Any other bad line is a CorruptionError.
func scanLog(r io.Reader, fn EventHandler) (scanResult, error) {
	var res scanResult
	br := bufio.NewReader(r)
	var offset int64
	line := 0
	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return res, readErr
		}
		if len(raw) == 0 && readErr == io.EOF {
			return res, nil
		}
		line++
		start := offset
		offset += int64(len(raw))

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			res.GoodOffset = offset
			if readErr == io.EOF {
				return res, nil
			}
			continue
		}

		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			if readErr == io.EOF {
				res.Torn = true
				return res, nil
			}
			return res, &CorruptionError{Line: line, Offset: start, Cause: err}
		}
		if err := VerifyChecksum(event); err != nil {
			return res, err
		}
		if res.Last != nil && event.Seq != res.Last.Seq+1 {
			return res, fmt.Errorf("%w: seq %d follows %d at line %d", ErrSequenceGap, event.Seq, res.Last.Seq, line)
		}
		if fn != nil {
			if err := fn(event); err != nil {
				return res, err
			}
		}
		res.Last = &event
		res.Count++
		res.GoodOffset = offset
		if readErr == io.EOF {
			return res, nil
		}
	}
}

// openLog opens a log file, transparently decompressing archives.
func openLog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, closers{gz, f}}, nil
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ============================================================================
// File helpers
// ============================================================================

// ReplayFile is Replay for a log that is not open: it reads the file at
// path without modifying it, so it is safe while another process appends.
// A missing file holds no events.
func ReplayFile(path string, afterSeq uint64, handler EventHandler) error {
	f, err := openLog(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	_, err = scanLog(f, func(event Event) error {
		if event.Seq <= afterSeq {
			return nil
		}
		return handler(event)
	})
	return err
}

// GetLastEvent reads the last good event of a log.
// It returns ErrEmptyWAL if the log holds no events.
func GetLastEvent(path string) (*Event, error) {
	f, err := openLog(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := scanLog(f, nil)
	if err != nil {
		return nil, err
	}
	if res.Last == nil {
		return nil, ErrEmptyWAL
	}
	return res.Last, nil
}

// ValidateWAL checks the JSON framing, checksums and sequence numbers of
// every event in a log. A torn final line is reported as corruption.
func ValidateWAL(path string) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := scanLog(f, nil)
	if err != nil {
		return err
	}
	if res.Torn {
		return fmt.Errorf("%w: incomplete final line after seq %d", ErrCorruptedWAL, lastSeq(res))
	}
	return nil
}

func lastSeq(res scanResult) uint64 {
	if res.Last == nil {
		return 0
	}
	return res.Last.Seq
}

// ============================================================================
// Debugging and diagnostics
// ============================================================================

// DumpWAL writes one human-readable line per event, e.g.
//
//	[seq:1] GAME_RESULT m_0 at 2026-10-19T12:00:00Z B+10.5 (checksum:0x1234abcd)
func DumpWAL(path string, w io.Writer) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := scanLog(f, func(event Event) error {
		_, err := fmt.Fprintf(w, "[seq:%d] %s %s at %s %s (checksum:0x%08x)\n",
			event.Seq, event.Type, event.GameID,
			time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339),
			summary(event), event.Checksum)
		return err
	})
	if err != nil {
		return err
	}
	if res.Torn {
		_, err = fmt.Fprintln(w, "[torn final line]")
	}
	return err
}

func summary(event Event) string {
	switch {
	case event.Record != nil && event.Record.IsVoid:
		return "Void"
	case event.Record != nil && event.Record.IsForfeit && event.Record.Winner != nil:
		return event.Record.Winner.Letter() + "+F"
	case event.Record != nil:
		return event.Record.Result
	default:
		return fmt.Sprintf("%q", event.Message)
	}
}

// ============================================================================
// Statistics
// ============================================================================

// WALStats summarises a log file.
type WALStats struct {
	TotalEvents int               // good events
	EventTypes  map[EventType]int // per-type counts
	FirstSeq    uint64
	LastSeq     uint64
	TimeRange   [2]int64 // earliest and latest timestamp, Unix milliseconds
	Torn        bool     // the final line is an incomplete write
}

// GetWALStats scans a log and collects its statistics.
func GetWALStats(path string) (*WALStats, error) {
	f, err := openLog(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats := &WALStats{EventTypes: make(map[EventType]int)}
	res, err := scanLog(f, func(event Event) error {
		if stats.TotalEvents == 0 {
			stats.FirstSeq = event.Seq
			stats.TimeRange = [2]int64{event.Timestamp, event.Timestamp}
		}
		stats.TotalEvents++
		stats.EventTypes[event.Type]++
		stats.LastSeq = event.Seq
		stats.TimeRange[0] = min(stats.TimeRange[0], event.Timestamp)
		stats.TimeRange[1] = max(stats.TimeRange[1], event.Timestamp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.Torn = res.Torn
	return stats, nil
}
