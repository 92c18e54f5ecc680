// Package game defines the core state types for NumberFlow rounds.
//
// These types hold everything a transition needs: the settled grid, the two
// active pieces, and the scoring counters. RoundState is designed to be
// cheaply clonable so every transition can hand out a fresh snapshot while
// callers keep the previous one.
package game

import (
	"fmt"
	"time"
)

// Phase is the round lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Running
	Paused
	Won
	Lost
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Won:
		return "won"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether the phase is Won or Lost.
func (p Phase) Terminal() bool { return p == Won || p == Lost }

// RoundState is the complete state of one round.
// Pieces is indexed by Side; a nil entry means that slot is empty.
type RoundState struct {
	Grid    *Grid
	Pieces  [2]*Piece
	Score   int
	Highest int
	Phase   Phase

	SpeedLevel int
	TickPace   time.Duration

	// PieceCount drives spawn difficulty; it grows with every spawn.
	PieceCount int
	Ticks      int

	// NextLineage is the next unused lineage token. Pieces take their ID
	// from it and every merge mints a new one.
	NextLineage uint64
}

// NewRoundState returns an idle round on an empty grid.
func NewRoundState(width, height int) *RoundState {
	return &RoundState{
		Grid:        NewGrid(width, height),
		Phase:       Idle,
		SpeedLevel:  1,
		NextLineage: 1,
	}
}

// Piece returns the active piece for side, or nil.
func (s *RoundState) Piece(side Side) *Piece {
	if side != LeftSide && side != RightSide {
		return nil
	}
	return s.Pieces[side]
}

// MintLineage returns a fresh lineage token.
func (s *RoundState) MintLineage() uint64 {
	if s.NextLineage == 0 {
		s.NextLineage = 1
	}
	id := s.NextLineage
	s.NextLineage++
	return id
}

// AddScore credits a merge that produced value.
func (s *RoundState) AddScore(value int) {
	s.Score += value
	if value > s.Highest {
		s.Highest = value
	}
}

func (s *RoundState) IsRunning() bool { return s.Phase == Running }
func (s *RoundState) IsPaused() bool  { return s.Phase == Paused }
func (s *RoundState) IsWon() bool     { return s.Phase == Won }
func (s *RoundState) IsLost() bool    { return s.Phase == Lost }

// Clone performs a deep copy of the round state.
func (s *RoundState) Clone() *RoundState {
	if s == nil {
		return nil
	}
	out := *s
	out.Grid = s.Grid.Clone()
	for i := range s.Pieces {
		out.Pieces[i] = s.Pieces[i].Clone()
	}
	return &out
}
