package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

func mustPlay(t *testing.T, b *Board, c types.Colour, vertex string) int {
	t.Helper()
	p, err := ParseVertex(vertex, b.Size())
	require.NoError(t, err)
	require.NotNil(t, p)
	n, err := b.Play(c, *p)
	require.NoError(t, err)
	return n
}

func TestNewRejectsBadSizes(t *testing.T) {
	_, err := New(1)
	assert.ErrorIs(t, err, ErrBadSize)
	_, err = New(26)
	assert.ErrorIs(t, err, ErrBadSize)
	b, err := New(19)
	require.NoError(t, err)
	assert.Equal(t, 19, b.Size())
}

func TestCaptureInCorner(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	mustPlay(t, b, types.White, "A1")
	mustPlay(t, b, types.Black, "B1")
	n := mustPlay(t, b, types.Black, "A2")
	assert.Equal(t, 1, n)
	assert.Equal(t, types.Colour(""), b.Get(Point{0, 0}))
}

func TestCaptureGroup(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	mustPlay(t, b, types.White, "A1")
	mustPlay(t, b, types.White, "B1")
	mustPlay(t, b, types.Black, "C1")
	mustPlay(t, b, types.Black, "A2")
	n := mustPlay(t, b, types.Black, "B2")
	assert.Equal(t, 2, n)
}

func TestIllegalMoves(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	mustPlay(t, b, types.Black, "E5")

	_, err = b.Play(types.White, Point{4, 4})
	assert.ErrorIs(t, err, ErrOccupied)

	_, err = b.Play(types.White, Point{9, 0})
	assert.ErrorIs(t, err, ErrOffBoard)

	mustPlay(t, b, types.Black, "A2")
	mustPlay(t, b, types.Black, "B1")
	_, err = b.Play(types.White, Point{0, 0})
	assert.ErrorIs(t, err, ErrSuicide)
	assert.Equal(t, types.Colour(""), b.Get(Point{0, 0}), "suicide stone removed")
}

func TestCaptureIsNotSuicide(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	mustPlay(t, b, types.Black, "A2")
	mustPlay(t, b, types.White, "B1")
	mustPlay(t, b, types.White, "A3")
	mustPlay(t, b, types.White, "B2")
	// White A1 takes the last liberty of the black stone.
	n := mustPlay(t, b, types.White, "A1")
	assert.Equal(t, 1, n)
}

func TestAreaScoreColumns(t *testing.T) {
	b, err := New(9)
	require.NoError(t, err)
	for row := 1; row <= 9; row++ {
		mustPlay(t, b, types.Black, "E"+itoa(row))
		mustPlay(t, b, types.White, "G"+itoa(row))
	}
	// Black: 9 stones + 36 points of territory; white: 9 stones + 18.
	assert.Equal(t, 18, b.AreaScore())

	winner, result := AreaScorer{}.Score(b, 7.5)
	assert.Equal(t, types.Black, winner)
	assert.Equal(t, "B+10.5", result)

	winner, result = AreaScorer{}.Score(b, 18)
	assert.Equal(t, types.Colour(""), winner)
	assert.Equal(t, "0", result)

	winner, result = AreaScorer{}.Score(b, 20)
	assert.Equal(t, types.White, winner)
	assert.Equal(t, "W+2", result)
}

func TestAreaScoreEmptyBoardIsDameFree(t *testing.T) {
	b, err := New(5)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AreaScore())
	mustPlay(t, b, types.White, "C3")
	assert.Equal(t, -25, b.AreaScore())
}

func TestVertexConversion(t *testing.T) {
	p, err := ParseVertex("e1", 9)
	require.NoError(t, err)
	assert.Equal(t, Point{Row: 0, Col: 4}, *p)
	assert.Equal(t, "E1", FormatVertex(p))
	assert.Equal(t, "ei", SGFPoint(p, 9))

	p, err = ParseVertex("J9", 9)
	require.NoError(t, err)
	assert.Equal(t, Point{Row: 8, Col: 8}, *p)
	assert.Equal(t, "ia", SGFPoint(p, 9))

	p, err = ParseVertex("PASS", 9)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "pass", FormatVertex(nil))
	assert.Equal(t, "tt", SGFPoint(nil, 19))
	assert.Equal(t, "", SGFPoint(nil, 21))

	for _, bad := range []string{"", "I5", "Z", "A0", "A10", "K1", "A+1", "resign"} {
		_, err := ParseVertex(bad, 9)
		assert.Error(t, err, bad)
	}
}

func itoa(n int) string {
	return FormatVertex(&Point{Row: n - 1, Col: 0})[1:]
}
