package board

import (
	"fmt"
	"strconv"
	"strings"
)

// columnLetters are the GTP column labels; I is skipped.
const columnLetters = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

// ParseVertex parses a GTP vertex such as "E5" or "pass" (any case).
// A nil point means pass.
func ParseVertex(s string, size int) (*Point, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "PASS" {
		return nil, nil
	}
	if len(s) < 2 {
		return nil, fmt.Errorf("invalid vertex %q", s)
	}
	col := strings.IndexByte(columnLetters, s[0])
	row, err := strconv.Atoi(s[1:])
	if col < 0 || err != nil || s[1] == '+' || s[1] == '-' {
		return nil, fmt.Errorf("invalid vertex %q", s)
	}
	p := Point{Row: row - 1, Col: col}
	if p.Row < 0 || p.Row >= size || p.Col >= size {
		return nil, fmt.Errorf("%w: %q", ErrOffBoard, s)
	}
	return &p, nil
}

// FormatVertex renders a point in GTP form; nil renders as "pass".
func FormatVertex(p *Point) string {
	if p == nil {
		return "pass"
	}
	return string(columnLetters[p.Col]) + strconv.Itoa(p.Row+1)
}

// SGFPoint renders a point as an SGF coordinate pair. Passes are "tt" on
// boards up to 19x19 and empty on larger boards.
func SGFPoint(p *Point, size int) string {
	if p == nil {
		if size <= 19 {
			return "tt"
		}
		return ""
	}
	return string([]byte{byte('a' + p.Col), byte('a' + size - 1 - p.Row)})
}
