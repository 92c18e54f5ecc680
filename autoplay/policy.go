// Package autoplay plays NumberFlow rounds without a human: a policy picks
// the commands for each side before every tick, and a pool of workers runs
// rounds in parallel while traces and summaries stream to the store.
package autoplay

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/rules"
)

// Policy chooses the commands to send for side before the next tick.
type Policy interface {
	Name() string
	Decide(s *game.RoundState, side game.Side) []round.Command
}

// NewPolicy builds a policy by name. rng is only used by the random policy.
func NewPolicy(name string, target int, rng *rand.Rand) (Policy, error) {
	switch name {
	case "greedy", "":
		return Greedy{Target: target}, nil
	case "random":
		return &Random{rng: rng}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// Greedy tries every rotation and row for the active piece, slides it to
// where it would land, and scores the outcome one settlement deep. It
// prefers merges, then landings closer to the centerline, and never picks a
// landing that loses if any other option exists.
type Greedy struct {
	Target int
}

func (Greedy) Name() string { return "greedy" }

type plan struct {
	rotations int
	row       int
	score     float64
}

func (g Greedy) Decide(s *game.RoundState, side game.Side) []round.Command {
	p := s.Piece(side)
	if p == nil {
		return nil
	}
	best := plan{score: math.Inf(-1), row: p.Pos.Y}
	for rot := 0; rot < 4; rot++ {
		for row := 0; row < s.Grid.Height; row++ {
			score, ok := g.evaluate(s, side, rot, row)
			if !ok {
				continue
			}
			// Fewer keystrokes break ties.
			score -= 0.01 * float64(rot+abs(row-p.Pos.Y))
			if score > best.score {
				best = plan{rotations: rot, row: row, score: score}
			}
		}
	}
	if math.IsInf(best.score, -1) {
		return nil
	}

	var cmds []round.Command
	for i := 0; i < best.rotations; i++ {
		cmds = append(cmds, round.RotateCommand(side))
	}
	// Rotations do not move the origin, so the row delta is unchanged.
	dir := game.Down
	if best.row < p.Pos.Y {
		dir = game.Up
	}
	for i := 0; i < abs(best.row-p.Pos.Y); i++ {
		cmds = append(cmds, round.MoveCommand(side, dir))
	}
	return cmds
}

// evaluate plays out one candidate on a scratch copy of the state.
func (g Greedy) evaluate(s *game.RoundState, side game.Side, rotations, row int) (float64, bool) {
	p := *s.Piece(side)
	other := s.Piece(side.Opposite())
	for i := 0; i < rotations; i++ {
		r, ok := rules.Rotate(s.Grid, p, other)
		if !ok {
			return 0, false
		}
		p = r
	}
	for p.Pos.Y != row {
		dy := 1
		if row < p.Pos.Y {
			dy = -1
		}
		cand := p.Moved(0, dy)
		if rules.ValidateAgainst(s.Grid, cand, other) != rules.Legal {
			return 0, false
		}
		p = cand
	}

	var (
		next    game.Piece
		verdict rules.Verdict
	)
	for {
		next = p.Moved(side.Forward(), 0)
		verdict = rules.ValidateAgainst(s.Grid, next, other)
		if verdict != rules.Legal {
			break
		}
		p = next
	}

	scratch := s.Clone()
	before := scratch.Score
	if verdict == rules.WouldMerge {
		if _, err := rules.Merge(scratch, next); err != nil {
			return 0, false
		}
	} else {
		rules.Place(scratch, p)
	}
	rules.Settle(scratch)

	switch rules.Evaluate(scratch.Grid, g.Target, game.Running) {
	case game.Won:
		return 1e9, true
	case game.Lost:
		return -1e9, true
	}

	gained := float64(scratch.Score - before)
	// Depth is how far from the spawn edge the piece ended up.
	depth := p.Pos.X
	if side == game.RightSide {
		depth = s.Grid.Width - 1 - (p.Pos.X + p.Shape.Width() - 1)
	}
	return gained*10 + float64(depth) + float64(occupiedNeighbours(scratch.Grid, p)), true
}

// occupiedNeighbours counts distinct settled cells touching the piece's
// footprint, rewarding compact stacks.
func occupiedNeighbours(g *game.Grid, p game.Piece) int {
	seen := map[game.Point]bool{}
	for _, c := range p.Cells() {
		for _, n := range []game.Point{c.Add(-1, 0), c.Add(1, 0), c.Add(0, -1), c.Add(0, 1)} {
			if !p.Covers(n) && g.Occupied(n) {
				seen[n] = true
			}
		}
	}
	return len(seen)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Random presses a random key for each side now and then.
type Random struct {
	rng *rand.Rand
}

func (*Random) Name() string { return "random" }

func (r *Random) Decide(s *game.RoundState, side game.Side) []round.Command {
	if s.Piece(side) == nil || r.rng.Float64() < 0.5 {
		return nil
	}
	switch r.rng.Intn(4) {
	case 0:
		return []round.Command{round.RotateCommand(side)}
	case 1:
		return []round.Command{round.MoveCommand(side, game.Up)}
	case 2:
		return []round.Command{round.MoveCommand(side, game.Down)}
	default:
		fwd := game.Right
		if side == game.RightSide {
			fwd = game.Left
		}
		return []round.Command{round.MoveCommand(side, fwd)}
	}
}
