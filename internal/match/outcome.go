package match

import (
	"fmt"
	"time"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// Outcome is how a game ended.
type Outcome struct {
	Black, White string // player codes
	// Winner is nil for jigo and void games.
	Winner *types.Colour
	// Result is the compact result ("B+10.5", "W+R", "W+", "0"). It is
	// empty for forfeits and void games.
	Result       string
	IsForfeit    bool
	IsVoid       bool
	LosingPlayer string
	// Detail explains forfeits and void games.
	Detail string
}

func (o *Outcome) code(c types.Colour) string {
	if c == types.Black {
		return o.Black
	}
	return o.White
}

// RecordResult is the value of the RE property: Result, or "B+F"/"W+F"
// for a forfeit, or "Void".
func (o *Outcome) RecordResult() string {
	switch {
	case o.IsVoid:
		return "Void"
	case o.IsForfeit:
		return o.Winner.Letter() + "+F"
	}
	return o.Result
}

// Describe returns a one-line summary such as "one beat two B+10.5".
func (o *Outcome) Describe() string {
	switch {
	case o.IsVoid:
		return "void game: " + o.Detail
	case o.Winner == nil:
		return fmt.Sprintf("%s vs %s jigo", o.Black, o.White)
	case o.IsForfeit:
		return fmt.Sprintf("%s beat %s %s (forfeit: %s)",
			o.code(*o.Winner), o.code(o.Winner.Opponent()), o.RecordResult(), o.Detail)
	}
	return fmt.Sprintf("%s beat %s %s", o.code(*o.Winner), o.code(o.Winner.Opponent()), o.Result)
}

// Result is what a completed game reports back to the coordinator.
type Result struct {
	GameID   string
	GameData any
	Outcome  Outcome
	// Warnings are non-fatal problems, such as failures closing an engine.
	Warnings []string
	// LogEntries are notable events worth logging, such as forfeits.
	LogEntries []string
	// Engines holds each side's self-description (name and version).
	Engines   map[types.Colour]string
	MoveCount int
	Duration  time.Duration
}

// Record converts the result into the persisted summary form.
func (r *Result) Record(matchup string, token int, finished time.Time) types.GameRecord {
	o := r.Outcome
	rec := types.GameRecord{
		GameID:       r.GameID,
		Matchup:      matchup,
		Token:        token,
		Black:        o.Black,
		White:        o.White,
		Result:       o.RecordResult(),
		IsForfeit:    o.IsForfeit,
		IsVoid:       o.IsVoid,
		LosingPlayer: o.LosingPlayer,
		Detail:       o.Detail,
		MoveCount:    r.MoveCount,
		Warnings:     append([]string(nil), r.Warnings...),
		FinishedAt:   finished.UnixMilli(),
	}
	if o.Winner != nil {
		w := *o.Winner
		rec.Winner = &w
	}
	return rec
}
