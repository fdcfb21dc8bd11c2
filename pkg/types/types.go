// Package types defines the domain model shared by the ringmaster packages.
package types

import (
	"encoding/json"
	"fmt"
)

// Colour is a side in a game of Go.
type Colour string

// Colour constants use the single-letter form of the GTP wire protocol.
const (
	Black Colour = "b" // plays first
	White Colour = "w"
)

// Opponent returns the other colour.
func (c Colour) Opponent() Colour {
	if c == Black {
		return White
	}
	return Black
}

// Name returns "Black" or "White".
func (c Colour) Name() string {
	if c == Black {
		return "Black"
	}
	return "White"
}

// Letter returns the upper-case letter used in game records and results ("B" or "W").
func (c Colour) Letter() string {
	if c == Black {
		return "B"
	}
	return "W"
}

// ParseColour accepts "b", "black", "w" or "white" in any case.
func ParseColour(s string) (Colour, error) {
	switch s {
	case "b", "B", "black", "Black", "BLACK":
		return Black, nil
	case "w", "W", "white", "White", "WHITE":
		return White, nil
	}
	return "", fmt.Errorf("invalid colour %q", s)
}

// GameRecord is the persisted summary of one finished game.
// It is what the results log and the status snapshot store per game.
type GameRecord struct {
	GameID       string   `json:"game_id"`
	Matchup      string   `json:"matchup"`
	Token        int      `json:"token"`
	Black        string   `json:"black"`
	White        string   `json:"white"`
	Winner       *Colour  `json:"winner,omitempty"` // nil for jigo and void games
	Result       string   `json:"result"`           // compact notation, e.g. "B+10.5", "W+R", "W+"
	IsForfeit    bool     `json:"is_forfeit,omitempty"`
	IsVoid       bool     `json:"is_void,omitempty"`
	LosingPlayer string   `json:"losing_player,omitempty"`
	Detail       string   `json:"detail,omitempty"`
	MoveCount    int      `json:"move_count"`
	Warnings     []string `json:"warnings,omitempty"`
	FinishedAt   int64    `json:"finished_at"` // Unix milliseconds
}

// WinnerCode returns the player code of the winner, or "" if there is none.
func (r *GameRecord) WinnerCode() string {
	if r.Winner == nil {
		return ""
	}
	if *r.Winner == Black {
		return r.Black
	}
	return r.White
}

// SnapshotData is the persisted status of a competition.
// Scheduler holds the opaque scheduler state; only the scheduler package
// interprets it.
type SnapshotData struct {
	SchemaVer  int             `json:"schema_ver"`
	RunID      string          `json:"run_id,omitempty"`
	Scheduler  json.RawMessage `json:"scheduler,omitempty"`
	Results    []GameRecord    `json:"results"`
	GameErrors int             `json:"game_errors"`
	LastSeq    uint64          `json:"last_seq"`
	SavedAt    int64           `json:"saved_at"` // Unix milliseconds
}
