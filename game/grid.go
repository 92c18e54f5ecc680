package game

// Point is a grid coordinate. (0,0) is the top-left cell; x grows to the
// right and y grows downward.
type Point struct {
	X int
	Y int
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Cell is one grid slot. A zero Value means the slot is empty.
//
// Lineage identifies where the cell came from: every cell placed from the
// same piece shares the piece ID, and every merge mints a fresh token.
// Cells that share a lineage never merge with each other.
type Cell struct {
	Value   int    `json:"value"`
	Lineage uint64 `json:"lineage"`
}

// Empty reports whether the cell holds nothing.
func (c Cell) Empty() bool { return c.Value == 0 }

// Grid is a fixed-size, row-major store of settled cells.
//
// Grids are treated as values: transitions clone before writing so that
// snapshots handed out earlier never change underneath their holders.
type Grid struct {
	Width  int
	Height int
	Cells  []Cell
}

// NewGrid returns an empty grid of the given dimensions.
func NewGrid(width, height int) *Grid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Grid{
		Width:  width,
		Height: height,
		Cells:  make([]Cell, width*height),
	}
}

// Center returns the unique middle cell. Dimensions are expected to be odd.
func (g *Grid) Center() Point {
	return Point{X: g.Width / 2, Y: g.Height / 2}
}

// CenterX is the column of the centerline.
func (g *Grid) CenterX() int { return g.Width / 2 }

// In reports whether p lies inside the grid.
func (g *Grid) In(p Point) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

// At returns the cell at p. Out-of-bounds points read as empty.
func (g *Grid) At(p Point) Cell {
	if !g.In(p) {
		return Cell{}
	}
	return g.Cells[p.Y*g.Width+p.X]
}

// Occupied reports whether p holds a settled cell.
func (g *Grid) Occupied(p Point) bool {
	return !g.At(p).Empty()
}

// Set replaces the cell at p. Writes outside the grid are ignored.
// Only call this on a grid you own (a fresh clone).
func (g *Grid) Set(p Point, c Cell) {
	if !g.In(p) {
		return
	}
	g.Cells[p.Y*g.Width+p.X] = c
}

// Clear empties the cell at p.
func (g *Grid) Clear(p Point) {
	g.Set(p, Cell{})
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.Cells {
		if !c.Empty() {
			n++
		}
	}
	return n
}

// ColumnOccupied reports whether any cell in column x is occupied.
func (g *Grid) ColumnOccupied(x int) bool {
	if x < 0 || x >= g.Width {
		return false
	}
	for y := 0; y < g.Height; y++ {
		if !g.Cells[y*g.Width+x].Empty() {
			return true
		}
	}
	return false
}

// Values returns the grid as rows of plain values (0 for empty).
func (g *Grid) Values() [][]int {
	out := make([][]int, g.Height)
	for y := 0; y < g.Height; y++ {
		row := make([]int, g.Width)
		for x := 0; x < g.Width; x++ {
			row[x] = g.Cells[y*g.Width+x].Value
		}
		out[y] = row
	}
	return out
}

// Clone performs a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	out := &Grid{Width: g.Width, Height: g.Height}
	if len(g.Cells) > 0 {
		out.Cells = make([]Cell, len(g.Cells))
		copy(out.Cells, g.Cells)
	}
	return out
}

// Equal reports whether two grids hold identical cells.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.Width != o.Width || g.Height != o.Height || len(g.Cells) != len(o.Cells) {
		return false
	}
	for i := range g.Cells {
		if g.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}
