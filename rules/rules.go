// Package rules implements the NumberFlow transition rules: pose
// validation, merge resolution, placement, settlement and terminal checks.
//
// Functions that change state work on a *game.RoundState the caller already
// owns (a fresh clone). They never clone on their own so a whole transition
// pipeline pays for a single copy.
package rules

import (
	"fmt"

	"github.com/brensch/numberflow/game"
)

// Verdict is the outcome of validating a candidate pose.
type Verdict int

const (
	Legal Verdict = iota
	BlockedByBoundary
	BlockedByWall
	BlockedByMismatch
	BlockedByPiece
	WouldMerge
)

func (v Verdict) String() string {
	switch v {
	case Legal:
		return "legal"
	case BlockedByBoundary:
		return "blocked_by_boundary"
	case BlockedByWall:
		return "blocked_by_wall"
	case BlockedByMismatch:
		return "blocked_by_mismatch"
	case BlockedByPiece:
		return "blocked_by_piece"
	case WouldMerge:
		return "would_merge"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Blocked reports whether the pose cannot be taken and cannot merge.
func (v Verdict) Blocked() bool {
	return v != Legal && v != WouldMerge
}

// OnOwnHalf reports whether column x is allowed for side. The centerline
// column belongs to both sides.
func OnOwnHalf(g *game.Grid, side game.Side, x int) bool {
	cx := g.CenterX()
	if side == game.RightSide {
		return x >= cx
	}
	return x <= cx
}

// Validate classifies the candidate pose p against the grid.
//
// Bounds and the centerline are checked cell by cell in raster order and
// win over collisions. Collisions merge only when every covered cell is
// occupied by the piece's own value; anything else is a mismatch.
func Validate(g *game.Grid, p game.Piece) Verdict {
	cells := p.Cells()
	collided := 0
	matched := true
	for _, c := range cells {
		if !g.In(c) {
			return BlockedByBoundary
		}
		if !OnOwnHalf(g, p.Side, c.X) {
			return BlockedByWall
		}
		cell := g.At(c)
		if cell.Empty() {
			continue
		}
		collided++
		if cell.Value != p.Value {
			matched = false
		}
	}
	if collided == 0 {
		return Legal
	}
	if matched && collided == len(cells) {
		return WouldMerge
	}
	return BlockedByMismatch
}

// ValidateAgainst is Validate plus a check that the pose does not overlap
// another active piece. Pieces can only meet on the centerline column.
func ValidateAgainst(g *game.Grid, p game.Piece, other *game.Piece) Verdict {
	v := Validate(g, p)
	if v == BlockedByBoundary || v == BlockedByWall {
		return v
	}
	if other != nil && overlaps(p, *other) {
		return BlockedByPiece
	}
	return v
}

func overlaps(a, b game.Piece) bool {
	for _, c := range a.Cells() {
		if b.Covers(c) {
			return true
		}
	}
	return false
}

// Rotate returns the piece turned counter-clockwise about its origin when
// every rotated cell is in bounds, on the side's half, unoccupied and clear
// of the other piece. Otherwise ok is false and p is returned unchanged.
func Rotate(g *game.Grid, p game.Piece, other *game.Piece) (game.Piece, bool) {
	r := p.Rotated()
	if ValidateAgainst(g, r, other) != Legal {
		return p, false
	}
	return r, true
}

// Place writes the piece into the grid in its current pose. All placed
// cells share the piece ID as lineage.
func Place(s *game.RoundState, p game.Piece) {
	for _, c := range p.Cells() {
		s.Grid.Set(c, game.Cell{Value: p.Value, Lineage: p.ID})
	}
}

// IsPowerOfTwo reports whether v is a positive power of two.
func IsPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
