package game

import "fmt"

// Side identifies which spawner owns a piece.
type Side int

const (
	LeftSide Side = iota
	RightSide
)

// Sides lists both spawners in processing order.
var Sides = [2]Side{LeftSide, RightSide}

func (s Side) String() string {
	switch s {
	case LeftSide:
		return "left"
	case RightSide:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide accepts "left"/"l" and "right"/"r".
func ParseSide(v string) (Side, error) {
	switch v {
	case "left", "l", "LEFT":
		return LeftSide, nil
	case "right", "r", "RIGHT":
		return RightSide, nil
	}
	return 0, fmt.Errorf("unknown side %q", v)
}

// Forward is the x step that moves a piece of this side toward the centerline.
func (s Side) Forward() int {
	if s == RightSide {
		return -1
	}
	return 1
}

// Opposite returns the other spawner.
func (s Side) Opposite() Side {
	if s == RightSide {
		return LeftSide
	}
	return RightSide
}

// Direction is a commanded move.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts the lower-case direction names.
func ParseDirection(v string) (Direction, error) {
	switch v {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", v)
}

// Delta returns the (dx, dy) step of the direction.
func (d Direction) Delta() (int, int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// Piece is a transient shape owned by one side. Pos is the mask origin.
type Piece struct {
	ID        uint64
	Side      Side
	ShapeName string
	Shape     Shape
	Value     int
	Pos       Point
}

// Cells returns the absolute grid positions the piece covers.
func (p Piece) Cells() []Point {
	offsets := p.Shape.Offsets()
	for i := range offsets {
		offsets[i] = offsets[i].Add(p.Pos.X, p.Pos.Y)
	}
	return offsets
}

// Covers reports whether the piece covers pt.
func (p Piece) Covers(pt Point) bool {
	r, c := pt.Y-p.Pos.Y, pt.X-p.Pos.X
	if r < 0 || r >= p.Shape.Height() || c < 0 || c >= len(p.Shape[r]) {
		return false
	}
	return p.Shape[r][c]
}

// Moved returns a copy translated by (dx, dy). The mask is shared; masks
// are never written after construction.
func (p Piece) Moved(dx, dy int) Piece {
	p.Pos = p.Pos.Add(dx, dy)
	return p
}

// Rotated returns a copy with the mask turned counter-clockwise about the origin.
func (p Piece) Rotated() Piece {
	p.Shape = p.Shape.Rotate()
	return p
}

// Clone performs a deep copy of the piece.
func (p *Piece) Clone() *Piece {
	if p == nil {
		return nil
	}
	out := *p
	out.Shape = p.Shape.Clone()
	return &out
}
