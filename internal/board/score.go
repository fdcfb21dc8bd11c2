package board

import (
	"strconv"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// AreaScorer scores finished games by area counting.
type AreaScorer struct{}

// Score returns the winner ("" for jigo) and the result in compact
// notation: "B+10.5", "W+3" or "0".
func (AreaScorer) Score(b *Board, komi float64) (types.Colour, string) {
	margin := float64(b.AreaScore()) - komi
	switch {
	case margin > 0:
		return types.Black, "B+" + formatMargin(margin)
	case margin < 0:
		return types.White, "W+" + formatMargin(-margin)
	}
	return "", "0"
}

func formatMargin(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}
