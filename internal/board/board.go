// ============================================================================
// Ringmaster Board - referee position, captures and area scoring
// ============================================================================
//
// Package: internal/board
// File: board.go
//
// The referee keeps its own copy of every game so that moves reported by
// one engine can be checked before they are relayed to the other, and so
// that a finished game can be scored without trusting either engine.
//
// Only impossible moves are rejected (off board, occupied, suicide).
// Positional superko is left to the engines.
//
// ============================================================================

package board

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

const (
	MinSize = 2
	MaxSize = 25
)

var (
	ErrBadSize  = errors.New("board size out of range")
	ErrOffBoard = errors.New("point is off the board")
	ErrOccupied = errors.New("point is occupied")
	ErrSuicide  = errors.New("suicide")
)

// Point is a board intersection. Row 0 is the bottom line (GTP row 1);
// Col 0 is the left edge (GTP column A).
type Point struct {
	Row, Col int
}

// Board is a Go position. The zero Colour marks an empty point.
type Board struct {
	size int
	grid []types.Colour
}

// New returns an empty board.
func New(size int) (*Board, error) {
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	return &Board{size: size, grid: make([]types.Colour, size*size)}, nil
}

// Size returns the board size.
func (b *Board) Size() int { return b.size }

// OnBoard reports whether p lies on the board.
func (b *Board) OnBoard(p Point) bool {
	return p.Row >= 0 && p.Row < b.size && p.Col >= 0 && p.Col < b.size
}

// Get returns the colour at p, or "" if empty.
func (b *Board) Get(p Point) types.Colour {
	return b.grid[p.Row*b.size+p.Col]
}

func (b *Board) set(p Point, c types.Colour) {
	b.grid[p.Row*b.size+p.Col] = c
}

// Play places a stone and removes any captured opposing groups.
// It returns the number of stones captured.
func (b *Board) Play(c types.Colour, p Point) (int, error) {
	if !b.OnBoard(p) {
		return 0, fmt.Errorf("%w: %v", ErrOffBoard, p)
	}
	if b.Get(p) != "" {
		return 0, fmt.Errorf("%w: %v", ErrOccupied, p)
	}
	b.set(p, c)

	captured := 0
	for _, n := range b.neighbours(p) {
		if b.Get(n) != c.Opponent() {
			continue
		}
		group, libs := b.group(n)
		if libs == 0 {
			for _, s := range group {
				b.set(s, "")
			}
			captured += len(group)
		}
	}
	if captured == 0 {
		if _, libs := b.group(p); libs == 0 {
			b.set(p, "")
			return 0, fmt.Errorf("%w: %v", ErrSuicide, p)
		}
	}
	return captured, nil
}

// Copy returns an independent copy of the position.
func (b *Board) Copy() *Board {
	return &Board{size: b.size, grid: append([]types.Colour(nil), b.grid...)}
}

// AreaScore returns black's area minus white's area: stones on the board
// plus empty regions bordered by one colour only.
func (b *Board) AreaScore() int {
	score := 0
	seen := make([]bool, len(b.grid))
	for row := 0; row < b.size; row++ {
		for col := 0; col < b.size; col++ {
			p := Point{row, col}
			switch b.Get(p) {
			case types.Black:
				score++
				continue
			case types.White:
				score--
				continue
			}
			if seen[row*b.size+col] {
				continue
			}
			region, borders := b.region(p, seen)
			switch {
			case borders[types.Black] && !borders[types.White]:
				score += len(region)
			case borders[types.White] && !borders[types.Black]:
				score -= len(region)
			}
		}
	}
	return score
}

func (b *Board) neighbours(p Point) []Point {
	out := make([]Point, 0, 4)
	for _, d := range [4]Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		n := Point{p.Row + d.Row, p.Col + d.Col}
		if b.OnBoard(n) {
			out = append(out, n)
		}
	}
	return out
}

// group returns the stones connected to p and their liberty count.
func (b *Board) group(p Point) ([]Point, int) {
	c := b.Get(p)
	visited := map[Point]bool{p: true}
	liberties := map[Point]bool{}
	stack := []Point{p}
	var stones []Point
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stones = append(stones, cur)
		for _, n := range b.neighbours(cur) {
			switch b.Get(n) {
			case "":
				liberties[n] = true
			case c:
				if !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return stones, len(liberties)
}

// region flood-fills the empty region containing p and reports which
// colours border it.
func (b *Board) region(p Point, seen []bool) ([]Point, map[types.Colour]bool) {
	borders := map[types.Colour]bool{}
	seen[p.Row*b.size+p.Col] = true
	stack := []Point{p}
	var points []Point
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		points = append(points, cur)
		for _, n := range b.neighbours(cur) {
			if c := b.Get(n); c != "" {
				borders[c] = true
				continue
			}
			if i := n.Row*b.size + n.Col; !seen[i] {
				seen[i] = true
				stack = append(stack, n)
			}
		}
	}
	return points, borders
}
