// ============================================================================
// Ringmaster Match - one game between two GTP engines
// ============================================================================
//
// Package: internal/match
// File: job.go
//
// State machine:
//
//	LAUNCHING ─▶ HANDSHAKE ─▶ PLAYING ─▶ SCORING ─▶ CLOSING ─▶ DONE
//	    │            │           │
//	    └────────────┴───────────┴──────▶ ABORTED
//
// Failure handling:
//   - LAUNCHING/HANDSHAKE failures abort with no record.
//   - a transport failure while PLAYING aborts; if any move was recorded
//     a void record goes to VoidRecordDir, which is created if missing.
//   - an engine's failure response while PLAYING is a forfeit, which is a
//     normal result.
//   - close failures after the result is known become warnings.
//
// The normal record directory is never created here; the coordinator
// prepares it before any game starts.
//
// ============================================================================

package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/ChuLiYu/ringmaster/internal/board"
	"github.com/ChuLiYu/ringmaster/internal/gtp"
	"github.com/ChuLiYu/ringmaster/internal/sgf"
	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// Version is written into the AP property of every record.
const Version = "1.0.0"

// claimCommand is the genmove variant that may answer "claim".
const claimCommand = "gomill-genmove_ex"

// Scorer scores a finished position. It returns the winner ("" for jigo)
// and the compact result.
type Scorer interface {
	Score(b *board.Board, komi float64) (types.Colour, string)
}

// Job is one game to play. A Job is run once and then discarded.
type Job struct {
	GameID    string
	Black     Player
	White     Player
	BoardSize int
	// MoveLimit is the number of moves (passes included) after which the
	// game is declared void.
	MoveLimit int
	Komi      float64

	// RecordDir receives the finished record; empty disables it.
	RecordDir string
	// VoidRecordDir receives records of aborted games; empty disables it.
	VoidRecordDir  string
	RecordFilename string

	// GameData is returned untouched in the Result.
	GameData    any
	RecordEvent string
	RecordNote  string

	Launcher gtp.Launcher
	Store    RecordStore
	Scorer   Scorer // nil means board.AreaScorer
	Logger   *slog.Logger
	Now      func() time.Time
}

type state int

const (
	stateLaunching state = iota
	stateHandshake
	statePlaying
	stateScoring
	stateClosing
	stateDone
	stateAborted
)

func (s state) String() string {
	return [...]string{"LAUNCHING", "HANDSHAKE", "PLAYING", "SCORING", "CLOSING", "DONE", "ABORTED"}[s]
}

// side is one player's seat in a running game.
type side struct {
	player      Player
	colour      types.Colour
	channel     gtp.Channel
	closeStderr func()
	engine      string
	claim       bool
}

func (s *side) who() string { return "player " + s.player.Code }

// game holds the working state of Job.Run.
type game struct {
	job     *Job
	scorer  Scorer
	log     *slog.Logger
	state   state
	started time.Time

	sides  map[types.Colour]*side
	board  *board.Board
	record *sgf.Game
	last   sgf.NodeID
	moves  int

	warnings   []string
	logEntries []string
}

// Run plays the game. A *JobFailed error means the game has no result and
// its token should be rolled back. ctx is used for record writes only;
// once started, a game runs until it ends or an engine fails.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	g, err := j.newGame()
	if err != nil {
		return nil, &JobFailed{Err: err}
	}
	defer g.releaseStderr()

	if err := g.launch(); err != nil {
		g.abort()
		return nil, &JobFailed{Err: err}
	}

	g.setState(stateHandshake)
	if err := g.handshake(); err != nil {
		g.abort()
		return nil, &JobFailed{Err: err}
	}

	g.setState(statePlaying)
	outcome, err := g.play()
	if err != nil {
		g.abort()
		if verr := g.writeVoidRecord(ctx, err); verr != nil {
			g.log.Error("failed to write void record", "error", verr)
		}
		return nil, &JobFailed{Err: err}
	}

	g.setState(stateClosing)
	g.closeAll(true)

	g.setState(stateDone)
	if j.RecordDir != "" {
		data := g.serialise(outcome, "")
		if err := j.Store.Write(ctx, path.Join(j.RecordDir, j.RecordFilename), data); err != nil {
			return nil, &JobFailed{Err: fmt.Errorf("error writing game record: %w", err)}
		}
	}

	engines := make(map[types.Colour]string, 2)
	for c, s := range g.sides {
		engines[c] = s.engine
	}
	return &Result{
		GameID:     j.GameID,
		GameData:   j.GameData,
		Outcome:    *outcome,
		Warnings:   g.warnings,
		LogEntries: g.logEntries,
		Engines:    engines,
		MoveCount:  g.moves,
		Duration:   j.now().Sub(g.started),
	}, nil
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) newGame() (*game, error) {
	if j.Launcher == nil {
		return nil, errors.New("no engine launcher configured")
	}
	if j.Store == nil && (j.RecordDir != "" || j.VoidRecordDir != "") {
		return nil, errors.New("no record store configured")
	}
	b, err := board.New(j.BoardSize)
	if err != nil {
		return nil, err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scorer := j.Scorer
	if scorer == nil {
		scorer = board.AreaScorer{}
	}
	g := &game{
		job:     j,
		scorer:  scorer,
		log:     logger.With("game_id", j.GameID),
		started: j.now(),
		board:   b,
		record:  sgf.NewGame(j.BoardSize),
		sides: map[types.Colour]*side{
			types.Black: {player: j.Black, colour: types.Black, closeStderr: func() {}},
			types.White: {player: j.White, colour: types.White, closeStderr: func() {}},
		},
	}
	g.last = g.record.Root()
	return g, nil
}

func (g *game) setState(s state) {
	g.state = s
	g.log.Debug("game state", "state", s.String())
}

// ============================================================================
// LAUNCHING / HANDSHAKE
// ============================================================================

func (g *game) launch() error {
	g.setState(stateLaunching)
	for _, c := range []types.Colour{types.Black, types.White} {
		s := g.sides[c]
		stderr, closeStderr, err := s.player.openStderr(false)
		if err != nil {
			return err
		}
		s.closeStderr = closeStderr
		ch, err := g.job.Launcher.Launch(s.player.launchConfig(stderr))
		if err != nil {
			return causef(err, "error starting subprocess for %s: %v", s.who(), err)
		}
		s.channel = ch
	}
	return nil
}

func (g *game) handshake() error {
	for _, c := range []types.Colour{types.Black, types.White} {
		s := g.sides[c]
		version, err := g.send(s, "protocol_version")
		if err != nil {
			return err
		}
		if version != gtp.ProtocolVersion {
			return fmt.Errorf("%s reports GTP protocol version %s", s.who(), version)
		}
		for _, cmd := range setupCommands(g.job.BoardSize, g.job.Komi, s.player.StartupCommands) {
			if _, err := g.send(s, cmd.Name, cmd.Args...); err != nil {
				return err
			}
		}
	}
	for _, c := range []types.Colour{types.Black, types.White} {
		s := g.sides[c]
		desc, err := g.describeEngine(s)
		if err != nil {
			return err
		}
		s.engine = desc
		if s.player.AllowClaim {
			resp, err := g.send(s, "known_command", claimCommand)
			if err != nil && !isProtocolError(err) {
				return err
			}
			s.claim = err == nil && resp == "true"
		}
	}
	return nil
}

// describeEngine asks for name and version. Failure responses are
// tolerated; only transport failures are returned.
func (g *game) describeEngine(s *side) (string, error) {
	var parts []string
	for _, cmd := range []string{"name", "version"} {
		resp, err := g.send(s, cmd)
		if err != nil {
			if !isProtocolError(err) {
				return "", err
			}
			g.logEntries = append(g.logEntries, err.Error())
			continue
		}
		if resp = strings.TrimSpace(resp); resp != "" {
			parts = append(parts, resp)
		}
	}
	return strings.Join(parts, " "), nil
}

// send wraps Channel.Send, describing failures for the operator.
func (g *game) send(s *side, command string, args ...string) (string, error) {
	resp, err := s.channel.Send(command, args...)
	if err != nil {
		return "", describeSendError(err, gtp.FormatCommand(command, args...), s.who())
	}
	return resp, nil
}

// ============================================================================
// PLAYING / SCORING
// ============================================================================

func (g *game) play() (*Outcome, error) {
	j := g.job
	colour := types.Black
	passes := 0
	for {
		if j.MoveLimit > 0 && g.moves >= j.MoveLimit {
			return g.outcome(nil, "", "hit move limit", true), nil
		}
		mover := g.sides[colour]
		opponent := g.sides[colour.Opponent()]

		command, args := "genmove", []string{string(colour)}
		if mover.claim {
			command, args = claimCommand, []string{string(colour), "claim"}
		}
		resp, err := g.send(mover, command, args...)
		if err != nil {
			if isProtocolError(err) {
				return g.forfeit(colour, err.Error()), nil
			}
			return nil, err
		}

		resp = strings.ToLower(strings.TrimSpace(resp))
		switch {
		case resp == "resign":
			winner := colour.Opponent()
			return g.outcome(&winner, winner.Letter()+"+R", "", false), nil
		case resp == "claim" && mover.claim:
			winner := colour
			return g.outcome(&winner, winner.Letter()+"+", "", false), nil
		}

		point, err := board.ParseVertex(resp, j.BoardSize)
		if err != nil {
			return g.forfeit(colour, fmt.Sprintf("%s attempted ill-formed move %s", mover.player.Code, resp)), nil
		}
		if point != nil {
			if _, err := g.board.Play(colour, *point); err != nil {
				return g.forfeit(colour, fmt.Sprintf("%s attempted move to occupied point or suicide %s", mover.player.Code, resp)), nil
			}
			passes = 0
		} else {
			passes++
		}
		g.recordMove(colour, point)

		if _, err := g.send(opponent, "play", string(colour), board.FormatVertex(point)); err != nil {
			if isProtocolError(err) {
				return g.forfeit(opponent.colour, err.Error()), nil
			}
			return nil, err
		}

		if passes == 2 {
			g.setState(stateScoring)
			winner, result := g.scorer.Score(g.board, j.Komi)
			if winner == "" {
				return g.outcome(nil, result, "", false), nil
			}
			return g.outcome(&winner, result, "", false), nil
		}
		colour = colour.Opponent()
	}
}

func (g *game) recordMove(c types.Colour, p *board.Point) {
	g.last = g.record.Extend(g.last)
	g.record.Set(g.last, c.Letter(), board.SGFPoint(p, g.job.BoardSize))
	g.moves++
}

func (g *game) outcome(winner *types.Colour, result, detail string, void bool) *Outcome {
	return &Outcome{
		Black:  g.job.Black.Code,
		White:  g.job.White.Code,
		Winner: winner,
		Result: result,
		IsVoid: void,
		Detail: detail,
	}
}

// forfeit ends the game against loser.
func (g *game) forfeit(loser types.Colour, detail string) *Outcome {
	winner := loser.Opponent()
	o := g.outcome(&winner, "", detail, false)
	o.IsForfeit = true
	o.LosingPlayer = g.sides[loser].player.Code
	g.logEntries = append(g.logEntries, "forfeit: "+detail)
	g.log.Warn("game forfeited", "loser", o.LosingPlayer, "detail", detail)
	return o
}

// ============================================================================
// CLOSING / records
// ============================================================================

// closeAll closes every launched engine. When collect is set, failures
// become warnings; otherwise they are only logged.
func (g *game) closeAll(collect bool) {
	for _, c := range []types.Colour{types.Black, types.White} {
		s := g.sides[c]
		if s.channel == nil {
			continue
		}
		if err := s.channel.Close(); err != nil {
			msg := fmt.Sprintf("error closing %s: %v", s.who(), err)
			if collect {
				g.warnings = append(g.warnings, msg)
			}
			g.log.Warn(msg)
		}
		s.channel = nil
	}
}

func (g *game) abort() {
	g.setState(stateAborted)
	g.closeAll(false)
}

func (g *game) releaseStderr() {
	for _, s := range g.sides {
		s.closeStderr()
	}
}

// writeVoidRecord saves the moves of an aborted game, if there are any.
func (g *game) writeVoidRecord(ctx context.Context, cause error) error {
	j := g.job
	if g.moves == 0 || j.VoidRecordDir == "" {
		return nil
	}
	if err := j.Store.MakeDir(ctx, j.VoidRecordDir); err != nil {
		return err
	}
	data := g.serialise(nil, cause.Error())
	return j.Store.Write(ctx, path.Join(j.VoidRecordDir, j.RecordFilename), data)
}

// serialise builds the record. outcome is nil for an aborted game, in which
// case aborted holds the reason.
func (g *game) serialise(outcome *Outcome, aborted string) []byte {
	j := g.job
	root := g.record.Root()

	var comment []string
	if j.RecordEvent != "" {
		comment = append(comment, "Event: "+j.RecordEvent)
	}
	comment = append(comment,
		"Game id "+j.GameID,
		"Date "+g.started.Format("2006-01-02 15:04:05"))
	if outcome != nil {
		comment = append(comment, "Result "+outcome.Describe())
	} else {
		comment = append(comment, "Aborted: "+aborted)
	}
	if j.RecordNote != "" {
		comment = append(comment, j.RecordNote)
	}
	for _, c := range []types.Colour{types.Black, types.White} {
		s := g.sides[c]
		comment = append(comment, strings.TrimSpace(c.Name()+" "+s.player.Code+" "+s.engine))
	}

	g.record.Set(root, "AP", "ringmaster:"+Version)
	g.record.Set(root, "C", strings.Join(comment, "\n"))
	g.record.Set(root, "DT", g.started.Format("2006-01-02"))
	if j.RecordEvent != "" {
		g.record.Set(root, "EV", j.RecordEvent)
	}
	g.record.Set(root, "KM", FormatKomi(j.Komi))
	g.record.Set(root, "PB", j.Black.Code)
	g.record.Set(root, "PW", j.White.Code)
	if outcome != nil {
		g.record.Set(root, "RE", outcome.RecordResult())
		if g.last != root {
			g.record.Set(g.last, "C", outcome.Describe())
		}
	}
	return g.record.Serialise()
}
