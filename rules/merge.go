package rules

import (
	"errors"

	"github.com/brensch/numberflow/game"
)

// ErrPartialMerge is returned when a merge is attempted but the piece does
// not land entirely on cells of its own value.
var ErrPartialMerge = errors.New("merge requires full equal-value coverage")

// Merge consumes the piece p (already in its destination pose) into the
// settled cells it covers. Every covered cell becomes p.Value*2 under one
// fresh lineage and the score is credited once per cell.
//
// Nothing is written unless the whole footprint qualifies.
func Merge(s *game.RoundState, p game.Piece) (int, error) {
	if Validate(s.Grid, p) != WouldMerge {
		return 0, ErrPartialMerge
	}
	value := p.Value * 2
	lineage := s.MintLineage()
	cells := p.Cells()
	for _, c := range cells {
		s.Grid.Set(c, game.Cell{Value: value, Lineage: lineage})
		s.AddScore(value)
	}
	return len(cells), nil
}
