package wal

import "github.com/ChuLiYu/ringmaster/pkg/types"

// ============================================================================
// WAL Type Definitions
// Responsibility: Define the records of the competition results log
// ============================================================================

// EventType defines WAL event types
type EventType string

const (
	EventGameResult EventType = "GAME_RESULT" // A game finished and produced a result
	EventGameError  EventType = "GAME_ERROR"  // A game was aborted; its token goes back to the scheduler
)

// Event represents a WAL event record
type Event struct {
	Seq       uint64            `json:"seq"`               // Event sequence number (monotonically increasing, survives rotation)
	Type      EventType         `json:"type"`              // Event type
	GameID    string            `json:"game_id"`           // "<matchup>_<token>"
	Record    *types.GameRecord `json:"record,omitempty"`  // Set for GAME_RESULT
	Message   string            `json:"message,omitempty"` // Set for GAME_ERROR
	Timestamp int64             `json:"timestamp"`         // Unix millisecond timestamp
	Checksum  uint32            `json:"checksum"`          // CRC32 checksum
}

// EventHandler is the function type for processing WAL events
// Used during Replay to apply events to competition state.
// Returning an error aborts the replay.
type EventHandler func(event Event) error
