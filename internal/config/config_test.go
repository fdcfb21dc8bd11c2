package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
competition:
  workers: 2
  snapshot_interval: 10s
  snapshot_backups: 2
  board_size: 9
players:
  gnugo:
    command: [gnugo, --mode, gtp]
    cwd: engines
    environ: {GNUGO_LEVEL: "3"}
    startup_gtp_commands: ["level 3", "clear_cache"]
  fuego:
    command: [fuego]
    discard_stderr: true
    allow_claim: true
matchups:
  - id: g-f
    black: gnugo
    white: fuego
    number_of_games: 20
  - black: fuego
    white: gnugo
    komi: 0.5
    board_size: 13
metrics:
  enabled: true
  port: 9191
`

func writeControlFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.Competition.Workers)
	assert.Equal(t, 5, cfg.Competition.MaxGameErrors)
	assert.Equal(t, 30*time.Second, cfg.Competition.SnapshotInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeControlFile(t, sample)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	comp := cfg.Competition
	assert.Equal(t, "demo", comp.Name)
	assert.Equal(t, filepath.Join(dir, "demo.games"), comp.RecordDir)
	assert.Equal(t, filepath.Join(dir, "demo.void"), comp.VoidRecordDir)
	assert.Equal(t, dir, comp.StateDir)
	assert.Equal(t, 2, comp.Workers)
	assert.Equal(t, 5, comp.MaxGameErrors, "unset values keep their default")
	assert.Equal(t, 10*time.Second, comp.SnapshotInterval)
	assert.Equal(t, filepath.Join(dir, "engines"), cfg.Players["gnugo"].Cwd)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestToRingmaster(t *testing.T) {
	cfg, err := Load(writeControlFile(t, sample))
	require.NoError(t, err)

	rc := cfg.ToRingmaster()
	assert.Equal(t, "demo", rc.Name)
	assert.Equal(t, 2, rc.WorkerCount)
	assert.Equal(t, 2, rc.SnapshotBackups)
	require.Len(t, rc.Matchups, 2)

	m := rc.Matchups[0]
	assert.Equal(t, "g-f", m.ID)
	assert.Equal(t, 9, m.BoardSize)
	assert.Equal(t, 7.5, m.Komi)
	assert.Equal(t, 1000, m.MoveLimit)
	require.NotNil(t, m.NumberOfGames)
	assert.Equal(t, 20, *m.NumberOfGames)

	m = rc.Matchups[1]
	assert.Equal(t, "1", m.ID, "unnamed matchups are numbered by position")
	assert.Equal(t, 13, m.BoardSize)
	assert.Equal(t, 0.5, m.Komi)
	assert.Nil(t, m.NumberOfGames)

	gnugo := rc.Players["gnugo"]
	assert.Equal(t, "gnugo", gnugo.Code)
	assert.Equal(t, []string{"gnugo", "--mode", "gtp"}, gnugo.Command)
	assert.Equal(t, map[string]string{"GNUGO_LEVEL": "3"}, gnugo.Env)
	require.Len(t, gnugo.StartupCommands, 2)
	assert.Equal(t, "level 3", gnugo.StartupCommands[0].String())
	assert.Equal(t, "clear_cache", gnugo.StartupCommands[1].String())

	fuego := rc.Players["fuego"]
	assert.Equal(t, os.DevNull, fuego.StderrPath)
	assert.True(t, fuego.AllowClaim)
}

func TestUnknownKeyRejected(t *testing.T) {
	_, err := Load(writeControlFile(t, sample+"\nworkers: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read control file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse([]byte(sample))
		require.NoError(t, err)
		cfg.Competition.Name = "demo"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no name", func(c *Config) { c.Competition.Name = "" }, "competition.name is required"},
		{"no workers", func(c *Config) { c.Competition.Workers = 0 }, "competition.workers"},
		{"negative backups", func(c *Config) { c.Competition.SnapshotBackups = -1 }, "competition.snapshot_backups"},
		{"no players", func(c *Config) { c.Players = nil }, "no players defined"},
		{"empty command", func(c *Config) { c.Players["fuego"] = PlayerConfig{} }, "player fuego: command is required"},
		{"no matchups", func(c *Config) { c.Matchups = nil }, "no matchups defined"},
		{"unknown player", func(c *Config) { c.Matchups[0].White = "leela" }, `matchup g-f: unknown player "leela"`},
		{"duplicate id", func(c *Config) { c.Matchups[1].ID = "g-f" }, `duplicate matchup id "g-f"`},
		{"board size", func(c *Config) { c.Matchups[0].BoardSize = 26 }, "board_size 26 out of range"},
		{"negative games", func(c *Config) { n := -1; c.Matchups[0].NumberOfGames = &n }, "number_of_games"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 0 }, "metrics.port 0 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
