package match

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

func TestAFSStoreRequiresParentDir(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "records")
	s := NewAFSStore()

	err := s.Write(ctx, filepath.Join(dir, "game.sgf"), []byte("(;)\n"))
	require.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "Write must not create directories")

	require.NoError(t, s.MakeDir(ctx, dir))
	require.NoError(t, s.MakeDir(ctx, dir), "MakeDir is idempotent")
	require.NoError(t, s.Write(ctx, filepath.Join(dir, "game.sgf"), []byte("(;)\n")))

	data, err := os.ReadFile(filepath.Join(dir, "game.sgf"))
	require.NoError(t, err)
	assert.Equal(t, "(;)\n", string(data))
}

// unreachableFS fails every existence check.
type unreachableFS struct {
	afs.Service
}

func (unreachableFS) Exists(context.Context, string, ...storage.Option) (bool, error) {
	return false, errors.New("bucket unreachable")
}

func TestAFSStoreReportsCheckErrors(t *testing.T) {
	ctx := context.Background()
	s := &AFSStore{fs: unreachableFS{Service: afs.New()}}

	err := s.MakeDir(ctx, "/records/test.void")
	require.Error(t, err)
	assert.Equal(t, "failed to check directory /records/test.void: bucket unreachable", err.Error())

	err = s.Write(ctx, "/records/test.games/x.sgf", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestMemStoreStrict(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.Lenient = false
	assert.Error(t, s.Write(ctx, "/a/b/x.sgf", nil))
	require.NoError(t, s.MakeDir(ctx, "/a/b"))
	require.NoError(t, s.Write(ctx, "/a/b/x.sgf", []byte("x")))
	assert.Equal(t, []string{"/a/b/x.sgf"}, s.Under("/a"))
	assert.Equal(t, []string{"/a/b"}, s.MadeDirs())
}

func TestOutcomeDescribe(t *testing.T) {
	black, white := types.Black, types.White
	cases := []struct {
		name    string
		outcome Outcome
		want    string
		re      string
	}{
		{"score", Outcome{Winner: &black, Result: "B+10.5"}, "one beat two B+10.5", "B+10.5"},
		{"resign", Outcome{Winner: &white, Result: "W+R"}, "two beat one W+R", "W+R"},
		{"jigo", Outcome{Result: "0"}, "one vs two jigo", "0"},
		{"void", Outcome{IsVoid: true, Detail: "hit move limit"}, "void game: hit move limit", "Void"},
		{"forfeit", Outcome{Winner: &white, IsForfeit: true, LosingPlayer: "one", Detail: "one crashed"},
			"two beat one W+F (forfeit: one crashed)", "W+F"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := tc.outcome
			o.Black, o.White = "one", "two"
			assert.Equal(t, tc.want, o.Describe())
			assert.Equal(t, tc.re, o.RecordResult())
		})
	}
}

func TestResultRecord(t *testing.T) {
	white := types.White
	r := &Result{
		GameID:    "m_3",
		Outcome:   Outcome{Black: "one", White: "two", Winner: &white, Result: "W+R"},
		Warnings:  []string{"w"},
		MoveCount: 42,
	}
	finished := time.UnixMilli(1_700_000_000_000)
	rec := r.Record("m", 3, finished)
	assert.Equal(t, "m_3", rec.GameID)
	assert.Equal(t, "m", rec.Matchup)
	assert.Equal(t, 3, rec.Token)
	assert.Equal(t, "W+R", rec.Result)
	assert.Equal(t, "two", rec.WinnerCode())
	assert.Equal(t, 42, rec.MoveCount)
	assert.Equal(t, int64(1_700_000_000_000), rec.FinishedAt)

	*r.Outcome.Winner = types.Black
	assert.Equal(t, types.White, *rec.Winner, "record owns its winner")
}
