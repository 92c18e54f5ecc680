package round

import (
	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/rules"
)

type EventKind string

const (
	EventStart        EventKind = "start"
	EventSpawn        EventKind = "spawn"
	EventSpawnBlocked EventKind = "spawn_blocked"
	EventAdvance      EventKind = "advance"
	EventMove         EventKind = "move"
	EventRotate       EventKind = "rotate"
	EventMerge        EventKind = "merge"
	EventPlace        EventKind = "place"
	EventSettle       EventKind = "settle"
	EventPause        EventKind = "pause"
	EventResume       EventKind = "resume"
	EventAccelerate   EventKind = "accelerate"
	EventWon          EventKind = "won"
	EventLost         EventKind = "lost"
)

// Event is one observable step inside a transition, in the order it happened.
type Event struct {
	Kind    EventKind `json:"kind"`
	Side    string    `json:"side,omitempty"`
	PieceID uint64    `json:"piece_id,omitempty"`
	Shape   string    `json:"shape,omitempty"`
	Value   int       `json:"value,omitempty"`
	Cells   int       `json:"cells,omitempty"`
}

func pieceEvent(kind EventKind, p game.Piece) Event {
	return Event{
		Kind:    kind,
		Side:    p.Side.String(),
		PieceID: p.ID,
		Shape:   p.ShapeName,
		Value:   p.Value,
		Cells:   len(p.Cells()),
	}
}

// Result is what every command returns. State is the state to keep using:
// a new value after an accepted command, the input state otherwise.
type Result struct {
	State      *game.RoundState
	Events     []Event
	Settlement rules.Settlement

	// Verdict is the validator outcome for moves, rotations and tick advances.
	Verdict rules.Verdict
	// Rejection is set when the command was refused without changing state.
	Rejection string
}

// Rejected reports whether the command was refused without changing state.
func (r Result) Rejected() bool { return r.Rejection != "" }

// Count returns how many events of kind the result carries.
func (r Result) Count(kind EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
