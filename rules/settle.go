package rules

import "github.com/brensch/numberflow/game"

// Settlement summarizes one run of Settle.
type Settlement struct {
	Passes int // sweeps run, including the final one that found nothing
	Merges int
	Gained int // score added
}

// Settle merges adjacent equal settled cells until a full pass finds none.
//
// Each pass first sweeps every row outward from the centerline: on the left
// half the pair (x, x+1) is checked for x = cx-1 down to 0, on the right
// half (x, x-1) for x = cx+1 up to width-1. The cell nearer the center takes
// the doubled value and the outer one is cleared. The center cell is then
// checked against its left, right, up and down neighbours and absorbs the
// first match.
//
// A cell produced during a pass is ignored for the rest of that pass, so a
// run of three equal cells merges its center-most pair first and never
// collapses in one step. Every merge removes one occupied cell, which bounds
// the number of passes by the cell count.
func Settle(s *game.RoundState) Settlement {
	var out Settlement
	g := s.Grid
	if g == nil || g.Width == 0 || g.Height == 0 {
		return out
	}
	limit := g.Width*g.Height + 1
	fresh := make([]bool, len(g.Cells))
	for out.Passes < limit {
		out.Passes++
		for i := range fresh {
			fresh[i] = false
		}
		merged := settlePass(s, fresh, &out)
		if merged == 0 {
			break
		}
	}
	return out
}

func settlePass(s *game.RoundState, fresh []bool, out *Settlement) int {
	g := s.Grid
	cx := g.CenterX()
	merges := 0

	absorb := func(into, from game.Point) bool {
		a, b := g.At(into), g.At(from)
		if a.Empty() || b.Empty() || a.Value != b.Value || a.Lineage == b.Lineage {
			return false
		}
		ia, ib := into.Y*g.Width+into.X, from.Y*g.Width+from.X
		if fresh[ia] || fresh[ib] {
			return false
		}
		value := a.Value * 2
		g.Set(into, game.Cell{Value: value, Lineage: s.MintLineage()})
		g.Clear(from)
		fresh[ia] = true
		s.AddScore(value)
		out.Merges++
		out.Gained += value
		merges++
		return true
	}

	for y := 0; y < g.Height; y++ {
		for x := cx - 1; x >= 0; x-- {
			absorb(game.Point{X: x + 1, Y: y}, game.Point{X: x, Y: y})
		}
		for x := cx + 1; x < g.Width; x++ {
			absorb(game.Point{X: x - 1, Y: y}, game.Point{X: x, Y: y})
		}
	}

	center := g.Center()
	if !g.At(center).Empty() {
		for _, n := range []game.Point{
			center.Add(-1, 0),
			center.Add(1, 0),
			center.Add(0, -1),
			center.Add(0, 1),
		} {
			if !g.In(n) {
				continue
			}
			if absorb(center, n) {
				break
			}
		}
	}
	return merges
}

// IsStable reports whether Settle would find nothing to merge.
func IsStable(g *game.Grid) bool {
	probe := &game.RoundState{Grid: g.Clone(), NextLineage: 1}
	return Settle(probe).Merges == 0
}
