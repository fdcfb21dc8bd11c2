// ============================================================================
// Ringmaster Config - competition control file
// ============================================================================
//
// Package: internal/config
// File: config.go
//
// Control file layout (YAML):
//
//	competition:
//	  name: demo                 # default: control file name without extension
//	  record_dir: demo.games     # relative paths are resolved against the
//	  void_record_dir: demo.void # directory holding the control file
//	  state_dir: .
//	  workers: 2
//	  max_game_errors: 5
//	  snapshot_interval: 30s
//	  snapshot_backups: 0
//	  board_size: 19             # matchup defaults
//	  komi: 7.5
//	  move_limit: 1000
//	players:
//	  gnugo:
//	    command: [gnugo, --mode, gtp]
//	    cwd: /tmp
//	    environ: {GNUGO_LEVEL: "3"}
//	    stderr: gnugo.log
//	    discard_stderr: false
//	    startup_gtp_commands: ["level 3"]
//	    allow_claim: false
//	matchups:
//	  - {id: g-vs-f, black: gnugo, white: fuego, number_of_games: 400}
//	logging: {level: info, format: text}
//	metrics: {enabled: true, port: 9090}
//	status:  {enabled: true, port: 50051}
//
// Unknown keys are rejected, so a misspelt setting is never silently
// ignored.
//
// ============================================================================

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/ringmaster/internal/board"
	"github.com/ChuLiYu/ringmaster/internal/match"
	"github.com/ChuLiYu/ringmaster/internal/ringmaster"
)

// Config is a parsed control file.
type Config struct {
	Competition CompetitionConfig       `yaml:"competition"`
	Players     map[string]PlayerConfig `yaml:"players"`
	Matchups    []MatchupConfig         `yaml:"matchups"`
	Logging     LoggingConfig           `yaml:"logging"`
	Metrics     EndpointConfig          `yaml:"metrics"`
	Status      EndpointConfig          `yaml:"status"`
}

// CompetitionConfig holds competition-wide settings.
type CompetitionConfig struct {
	Name             string        `yaml:"name"`
	RecordDir        string        `yaml:"record_dir"`
	VoidRecordDir    string        `yaml:"void_record_dir"`
	StateDir         string        `yaml:"state_dir"`
	Workers          int           `yaml:"workers"`
	MaxGameErrors    int           `yaml:"max_game_errors"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotBackups  int           `yaml:"snapshot_backups"`

	// Defaults for matchups that do not set their own.
	BoardSize int     `yaml:"board_size"`
	Komi      float64 `yaml:"komi"`
	MoveLimit int     `yaml:"move_limit"`
}

// PlayerConfig describes how to run one engine.
type PlayerConfig struct {
	Command            []string          `yaml:"command"`
	Cwd                string            `yaml:"cwd"`
	Environ            map[string]string `yaml:"environ"`
	Stderr             string            `yaml:"stderr"`
	DiscardStderr      bool              `yaml:"discard_stderr"`
	StartupGTPCommands []string          `yaml:"startup_gtp_commands"`
	AllowClaim         bool              `yaml:"allow_claim"`
}

// MatchupConfig is one pairing. Zero values take the competition defaults.
type MatchupConfig struct {
	ID            string   `yaml:"id"`
	Black         string   `yaml:"black"`
	White         string   `yaml:"white"`
	BoardSize     int      `yaml:"board_size"`
	Komi          *float64 `yaml:"komi"`
	MoveLimit     int      `yaml:"move_limit"`
	NumberOfGames *int     `yaml:"number_of_games"` // omitted means unlimited
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EndpointConfig enables a network endpoint.
type EndpointConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the settings used for anything a control file omits.
func Default() Config {
	return Config{
		Competition: CompetitionConfig{
			StateDir:         ".",
			Workers:          1,
			MaxGameErrors:    5,
			SnapshotInterval: 30 * time.Second,
			BoardSize:        19,
			Komi:             7.5,
			MoveLimit:        1000,
		},
		Players: map[string]PlayerConfig{},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: EndpointConfig{Port: 9090},
		Status:  EndpointConfig{Port: 50051},
	}
}

// Load reads and validates a control file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read control file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cfg.resolve(filepath.Dir(path), base)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a control file over Default. It does not resolve paths
// or validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse control file: %w", err)
	}
	return &cfg, nil
}

// resolve fills names from the control file name and makes relative
// paths relative to dir.
func (c *Config) resolve(dir, base string) {
	comp := &c.Competition
	if comp.Name == "" {
		comp.Name = base
	}
	if comp.RecordDir == "" {
		comp.RecordDir = comp.Name + ".games"
	}
	if comp.VoidRecordDir == "" {
		comp.VoidRecordDir = comp.Name + ".void"
	}
	comp.RecordDir = under(dir, comp.RecordDir)
	comp.VoidRecordDir = under(dir, comp.VoidRecordDir)
	comp.StateDir = under(dir, comp.StateDir)

	for code, p := range c.Players {
		if p.Cwd != "" {
			p.Cwd = under(dir, p.Cwd)
		}
		if p.Stderr != "" {
			p.Stderr = under(dir, p.Stderr)
		}
		c.Players[code] = p
	}
}

func under(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks values and references between sections.
func (c *Config) Validate() error {
	comp := c.Competition
	if comp.Name == "" {
		return errors.New("competition.name is required")
	}
	if comp.Workers < 1 {
		return fmt.Errorf("competition.workers must be at least 1, got %d", comp.Workers)
	}
	if comp.MaxGameErrors < 1 {
		return fmt.Errorf("competition.max_game_errors must be at least 1, got %d", comp.MaxGameErrors)
	}
	if comp.SnapshotInterval <= 0 {
		return errors.New("competition.snapshot_interval must be positive")
	}
	if comp.SnapshotBackups < 0 {
		return fmt.Errorf("competition.snapshot_backups must not be negative, got %d", comp.SnapshotBackups)
	}

	if len(c.Players) == 0 {
		return errors.New("no players defined")
	}
	for code, p := range c.Players {
		if len(p.Command) == 0 {
			return fmt.Errorf("player %s: command is required", code)
		}
		for _, line := range p.StartupGTPCommands {
			if strings.TrimSpace(line) == "" {
				return fmt.Errorf("player %s: empty startup_gtp_commands entry", code)
			}
		}
	}

	if len(c.Matchups) == 0 {
		return errors.New("no matchups defined")
	}
	seen := make(map[string]bool, len(c.Matchups))
	for i, m := range c.Matchups {
		id := c.matchupID(i)
		if seen[id] {
			return fmt.Errorf("duplicate matchup id %q", id)
		}
		seen[id] = true
		for _, code := range []string{m.Black, m.White} {
			if _, ok := c.Players[code]; !ok {
				return fmt.Errorf("matchup %s: unknown player %q", id, code)
			}
		}
		if size := c.boardSize(m); size < board.MinSize || size > board.MaxSize {
			return fmt.Errorf("matchup %s: board_size %d out of range", id, size)
		}
		if c.moveLimit(m) < 1 {
			return fmt.Errorf("matchup %s: move_limit must be positive", id)
		}
		if m.NumberOfGames != nil && *m.NumberOfGames < 0 {
			return fmt.Errorf("matchup %s: number_of_games must not be negative", id)
		}
	}

	for name, ep := range map[string]EndpointConfig{"metrics": c.Metrics, "status": c.Status} {
		if ep.Enabled && (ep.Port < 1 || ep.Port > 65535) {
			return fmt.Errorf("%s.port %d out of range", name, ep.Port)
		}
	}
	return nil
}

// matchupID returns the id of the i'th matchup; unnamed matchups are
// numbered by position.
func (c *Config) matchupID(i int) string {
	if id := c.Matchups[i].ID; id != "" {
		return id
	}
	return strconv.Itoa(i)
}

func (c *Config) boardSize(m MatchupConfig) int {
	if m.BoardSize != 0 {
		return m.BoardSize
	}
	return c.Competition.BoardSize
}

func (c *Config) moveLimit(m MatchupConfig) int {
	if m.MoveLimit != 0 {
		return m.MoveLimit
	}
	return c.Competition.MoveLimit
}

// ToRingmaster converts the control file into a ringmaster.Config.
func (c *Config) ToRingmaster() ringmaster.Config {
	comp := c.Competition
	out := ringmaster.Config{
		Name:             comp.Name,
		Players:          make(map[string]match.Player, len(c.Players)),
		RecordDir:        comp.RecordDir,
		VoidRecordDir:    comp.VoidRecordDir,
		StateDir:         comp.StateDir,
		WorkerCount:      comp.Workers,
		MaxGameErrors:    comp.MaxGameErrors,
		SnapshotInterval: comp.SnapshotInterval,
		SnapshotBackups:  comp.SnapshotBackups,
	}
	for code, p := range c.Players {
		out.Players[code] = p.toPlayer(code)
	}
	for i, m := range c.Matchups {
		komi := comp.Komi
		if m.Komi != nil {
			komi = *m.Komi
		}
		out.Matchups = append(out.Matchups, ringmaster.Matchup{
			ID:            c.matchupID(i),
			Black:         m.Black,
			White:         m.White,
			BoardSize:     c.boardSize(m),
			Komi:          komi,
			MoveLimit:     c.moveLimit(m),
			NumberOfGames: m.NumberOfGames,
		})
	}
	return out
}

func (p PlayerConfig) toPlayer(code string) match.Player {
	player := match.Player{
		Code:       code,
		Command:    append([]string(nil), p.Command...),
		Dir:        p.Cwd,
		Env:        p.Environ,
		StderrPath: p.Stderr,
		AllowClaim: p.AllowClaim,
	}
	if p.DiscardStderr {
		player.StderrPath = os.DevNull
	}
	for _, line := range p.StartupGTPCommands {
		fields := strings.Fields(line)
		player.StartupCommands = append(player.StartupCommands, match.Command{Name: fields[0], Args: fields[1:]})
	}
	return player
}
