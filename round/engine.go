// Package round drives a NumberFlow round: it owns the phase machine and
// composes the rules package into the tick and command pipelines.
//
// The Engine holds no round state. Every command takes the current
// *game.RoundState and returns a Result whose State is either a fresh copy
// (accepted) or the very same pointer (rejected or illegal), so callers can
// keep earlier snapshots around safely.
package round

import (
	"fmt"
	"log/slog"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/rules"
)

type Engine struct {
	cfg Config
	src rules.Source
	log *slog.Logger
}

// New validates cfg and returns an engine drawing spawns from src. A nil
// logger discards everything.
func New(cfg Config, src rules.Source, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{cfg: cfg, src: src, log: logger}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// NewRound returns an idle round sized for the engine's config.
func (e *Engine) NewRound() *game.RoundState {
	s := game.NewRoundState(e.cfg.Width, e.cfg.Height)
	s.TickPace = e.cfg.Pace(1)
	return s
}

// Start begins a fresh round. It is accepted in every phase.
func (e *Engine) Start(s *game.RoundState) (Result, error) {
	next := e.NewRound()
	next.Phase = game.Running
	if s != nil {
		e.log.Debug("round restarted", "previous_phase", s.Phase.String(), "previous_score", s.Score)
	}
	return Result{State: next, Events: []Event{{Kind: EventStart}}}, nil
}

// Tick advances the clock by one step: each side, left first, either
// spawns into an empty slot or moves its piece one column toward the
// centerline. Blocked pieces are placed, equal landings merge. The grid is
// then settled and the terminal conditions checked.
func (e *Engine) Tick(s *game.RoundState) (Result, error) {
	if phase := phaseOf(s); phase != game.Running {
		return Result{State: s}, illegal("tick", phase)
	}
	next := s.Clone()
	next.Ticks++
	res := Result{State: next}

	blocked := false
	for _, side := range game.Sides {
		if !e.stepSide(next, side, &res) {
			blocked = true
		}
	}

	// A blocked spawn loses only if settling did not win the round.
	e.settle(next, &res)
	if blocked && next.Phase == game.Running {
		next.Phase = game.Lost
		res.Events = append(res.Events, Event{Kind: EventLost})
	}
	e.log.Debug("tick",
		"tick", next.Ticks,
		"score", next.Score,
		"merges", res.Settlement.Merges,
		"phase", next.Phase.String(),
	)
	return res, nil
}

// stepSide reports false when side needed a spawn and the spawn pose was
// not free.
func (e *Engine) stepSide(s *game.RoundState, side game.Side, res *Result) bool {
	other := s.Piece(side.Opposite())
	p := s.Piece(side)
	if p == nil {
		spawned := e.cfg.Spawn.Spawn(e.src, s.Grid, side, s.PieceCount)
		spawned.ID = s.MintLineage()
		s.PieceCount++
		if v := rules.ValidateAgainst(s.Grid, spawned, other); v != rules.Legal {
			e.log.Debug("spawn blocked", "side", side.String(), "tick", s.Ticks, "verdict", v.String())
			res.Events = append(res.Events, pieceEvent(EventSpawnBlocked, spawned))
			return false
		}
		s.Pieces[side] = &spawned
		res.Events = append(res.Events, pieceEvent(EventSpawn, spawned))
		return true
	}

	cand := p.Moved(side.Forward(), 0)
	switch v := rules.ValidateAgainst(s.Grid, cand, other); v {
	case rules.Legal:
		s.Pieces[side] = &cand
		res.Events = append(res.Events, pieceEvent(EventAdvance, cand))
	case rules.WouldMerge:
		e.merge(s, cand, res)
	default:
		rules.Place(s, *p)
		s.Pieces[side] = nil
		res.Events = append(res.Events, pieceEvent(EventPlace, *p))
	}
	return true
}

func (e *Engine) merge(s *game.RoundState, p game.Piece, res *Result) {
	if _, err := rules.Merge(s, p); err != nil {
		// Only reachable if the caller skipped validation; keep the piece.
		e.log.Warn("merge refused", "side", p.Side.String(), "err", err)
		return
	}
	s.Pieces[p.Side] = nil
	ev := pieceEvent(EventMerge, p)
	ev.Value = p.Value * 2
	res.Events = append(res.Events, ev)
}

// settle runs settlement to a fixed point and applies the terminal check.
func (e *Engine) settle(s *game.RoundState, res *Result) {
	st := rules.Settle(s)
	res.Settlement.Passes += st.Passes
	res.Settlement.Merges += st.Merges
	res.Settlement.Gained += st.Gained
	if st.Merges > 0 {
		res.Events = append(res.Events, Event{Kind: EventSettle, Cells: st.Merges, Value: st.Gained})
	}
	switch s.Phase = rules.Evaluate(s.Grid, e.cfg.Target, s.Phase); s.Phase {
	case game.Won:
		res.Events = append(res.Events, Event{Kind: EventWon, Value: e.cfg.Target})
	case game.Lost:
		res.Events = append(res.Events, Event{Kind: EventLost})
	}
}

// Move shifts side's piece one cell in dir. Moving away from the centerline
// is always refused. Blocked poses are refused with the piece left in
// place; an equal landing merges and settles immediately.
func (e *Engine) Move(s *game.RoundState, side game.Side, dir game.Direction) (Result, error) {
	p, err := e.active(s, "move", side)
	if err != nil {
		return Result{State: s}, err
	}
	dx, dy := dir.Delta()
	if dx != 0 && dx != side.Forward() {
		return Result{State: s, Verdict: rules.BlockedByWall, Rejection: "backward"}, nil
	}
	cand := p.Moved(dx, dy)
	v := rules.ValidateAgainst(s.Grid, cand, s.Piece(side.Opposite()))
	switch v {
	case rules.Legal:
		next := s.Clone()
		next.Pieces[side] = &cand
		return Result{State: next, Verdict: v, Events: []Event{pieceEvent(EventMove, cand)}}, nil
	case rules.WouldMerge:
		next := s.Clone()
		res := Result{State: next, Verdict: v}
		e.merge(next, cand, &res)
		e.settle(next, &res)
		return res, nil
	default:
		return Result{State: s, Verdict: v, Rejection: v.String()}, nil
	}
}

// Rotate turns side's piece counter-clockwise when the new pose is free.
func (e *Engine) Rotate(s *game.RoundState, side game.Side) (Result, error) {
	p, err := e.active(s, "rotate", side)
	if err != nil {
		return Result{State: s}, err
	}
	r, ok := rules.Rotate(s.Grid, *p, s.Piece(side.Opposite()))
	if !ok {
		v := rules.ValidateAgainst(s.Grid, p.Rotated(), s.Piece(side.Opposite()))
		if v == rules.WouldMerge {
			v = rules.BlockedByMismatch
		}
		return Result{State: s, Verdict: v, Rejection: v.String()}, nil
	}
	next := s.Clone()
	next.Pieces[side] = &r
	return Result{State: next, Verdict: rules.Legal, Events: []Event{pieceEvent(EventRotate, r)}}, nil
}

func (e *Engine) active(s *game.RoundState, op string, side game.Side) (*game.Piece, error) {
	if phase := phaseOf(s); phase != game.Running {
		return nil, illegal(op, phase)
	}
	p := s.Piece(side)
	if p == nil {
		return nil, &TransitionError{Op: op, Phase: s.Phase, Reason: "no active " + side.String() + " piece"}
	}
	return p, nil
}

func (e *Engine) Pause(s *game.RoundState) (Result, error) {
	if phase := phaseOf(s); phase != game.Running {
		return Result{State: s}, illegal("pause", phase)
	}
	next := s.Clone()
	next.Phase = game.Paused
	return Result{State: next, Events: []Event{{Kind: EventPause}}}, nil
}

func (e *Engine) Resume(s *game.RoundState) (Result, error) {
	if phase := phaseOf(s); phase != game.Paused {
		return Result{State: s}, illegal("resume", phase)
	}
	next := s.Clone()
	next.Phase = game.Running
	return Result{State: next, Events: []Event{{Kind: EventResume}}}, nil
}

// Accelerate raises the speed level by one and shortens the tick pace.
// At the top speed the command is refused.
func (e *Engine) Accelerate(s *game.RoundState) (Result, error) {
	if phase := phaseOf(s); phase != game.Running {
		return Result{State: s}, illegal("accelerate", phase)
	}
	if s.SpeedLevel >= e.cfg.MaxSpeed {
		return Result{State: s, Rejection: "max speed"}, nil
	}
	next := s.Clone()
	next.SpeedLevel++
	next.TickPace = e.cfg.Pace(next.SpeedLevel)
	e.log.Debug("speed up", "level", next.SpeedLevel, "pace", next.TickPace)
	return Result{State: next, Events: []Event{{Kind: EventAccelerate, Value: next.SpeedLevel}}}, nil
}

// phaseOf treats a missing round as idle.
func phaseOf(s *game.RoundState) game.Phase {
	if s == nil {
		return game.Idle
	}
	return s.Phase
}
