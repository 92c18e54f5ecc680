package game

// PieceView is the read-only pose of an active piece.
type PieceView struct {
	ID    uint64   `json:"id"`
	Side  string   `json:"side"`
	Shape string   `json:"shape"`
	Mask  [][]bool `json:"mask"`
	Value int      `json:"value"`
	X     int      `json:"x"`
	Y     int      `json:"y"`
}

// Snapshot is the query surface handed to renderers and remote clients.
// It shares no memory with the state it was taken from.
type Snapshot struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Grid       [][]int    `json:"grid"`
	Left       *PieceView `json:"left,omitempty"`
	Right      *PieceView `json:"right,omitempty"`
	Score      int        `json:"score"`
	Highest    int        `json:"highest"`
	Phase      string     `json:"phase"`
	Running    bool       `json:"running"`
	Paused     bool       `json:"paused"`
	Won        bool       `json:"won"`
	Lost       bool       `json:"lost"`
	SpeedLevel int        `json:"speed_level"`
	PaceMs     int64      `json:"pace_ms"`
	Ticks      int        `json:"ticks"`
	Pieces     int        `json:"pieces"`
}

// Snapshot builds the read-only view of s.
func (s *RoundState) Snapshot() Snapshot {
	out := Snapshot{
		Score:      s.Score,
		Highest:    s.Highest,
		Phase:      s.Phase.String(),
		Running:    s.Phase == Running,
		Paused:     s.Phase == Paused,
		Won:        s.Phase == Won,
		Lost:       s.Phase == Lost,
		SpeedLevel: s.SpeedLevel,
		PaceMs:     s.TickPace.Milliseconds(),
		Ticks:      s.Ticks,
		Pieces:     s.PieceCount,
	}
	if s.Grid != nil {
		out.Width = s.Grid.Width
		out.Height = s.Grid.Height
		out.Grid = s.Grid.Values()
	}
	out.Left = pieceView(s.Pieces[LeftSide])
	out.Right = pieceView(s.Pieces[RightSide])
	return out
}

func pieceView(p *Piece) *PieceView {
	if p == nil {
		return nil
	}
	return &PieceView{
		ID:    p.ID,
		Side:  p.Side.String(),
		Shape: p.ShapeName,
		Mask:  p.Shape.Clone(),
		Value: p.Value,
		X:     p.Pos.X,
		Y:     p.Pos.Y,
	}
}

// ValueAt returns what a renderer should show at pt: the settled cell if any,
// otherwise the value of an active piece covering pt, otherwise 0.
func (s *RoundState) ValueAt(pt Point) (value int, fromPiece bool) {
	if c := s.Grid.At(pt); !c.Empty() {
		return c.Value, false
	}
	for _, p := range s.Pieces {
		if p != nil && p.Covers(pt) {
			return p.Value, true
		}
	}
	return 0, false
}
