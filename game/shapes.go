package game

import "sort"

// Shape is a boolean mask inside its bounding box, indexed [row][col].
type Shape [][]bool

// Shape names used by the spawn tiers and in config files.
const (
	ShapeSingle     = "SINGLE"
	ShapeDominoH    = "DOMINO_H"
	ShapeDominoV    = "DOMINO_V"
	ShapeLSmall     = "L_SMALL"
	ShapeLSmallFlip = "L_SMALL_FLIP"
	ShapeZMini      = "Z_MINI"
	ShapeSMini      = "S_MINI"
	ShapeLine3      = "LINE_3"
	ShapeLine3V     = "LINE_3_V"
	ShapeTUp        = "T_UP"
)

// Shapes is the catalog of spawnable masks. None of them can place two of
// its own cells where settlement would merge them, and the shared lineage
// guards against it anyway.
var Shapes = map[string]Shape{
	ShapeSingle:  mask("1"),
	ShapeDominoH: mask("11"),
	ShapeDominoV: mask("1", "1"),
	ShapeLSmall: mask(
		"10",
		"11",
	),
	ShapeLSmallFlip: mask(
		"01",
		"11",
	),
	ShapeZMini: mask(
		"110",
		"011",
	),
	ShapeSMini: mask(
		"011",
		"110",
	),
	ShapeLine3:  mask("111"),
	ShapeLine3V: mask("1", "1", "1"),
	ShapeTUp: mask(
		"010",
		"111",
	),
}

// ShapeNames returns the catalog keys in a stable order.
func ShapeNames() []string {
	names := make([]string, 0, len(Shapes))
	for name := range Shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mask(rows ...string) Shape {
	out := make(Shape, len(rows))
	for r, row := range rows {
		out[r] = make([]bool, len(row))
		for c := 0; c < len(row); c++ {
			out[r][c] = row[c] == '1'
		}
	}
	return out
}

// Height is the number of mask rows.
func (s Shape) Height() int { return len(s) }

// Width is the number of mask columns.
func (s Shape) Width() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Offsets returns the filled cells relative to the mask origin, in raster order.
func (s Shape) Offsets() []Point {
	out := make([]Point, 0, 4)
	for r := range s {
		for c := range s[r] {
			if s[r][c] {
				out = append(out, Point{X: c, Y: r})
			}
		}
	}
	return out
}

// Size is the number of filled cells.
func (s Shape) Size() int {
	n := 0
	for r := range s {
		for c := range s[r] {
			if s[r][c] {
				n++
			}
		}
	}
	return n
}

// Rotate returns the mask turned a quarter counter-clockwise
// (transpose, then reverse the row order).
func (s Shape) Rotate() Shape {
	h, w := s.Height(), s.Width()
	if h == 0 || w == 0 {
		return Shape{}
	}
	out := make(Shape, w)
	for c := 0; c < w; c++ {
		row := make([]bool, h)
		for r := 0; r < h; r++ {
			row[r] = s[r][c]
		}
		out[w-1-c] = row
	}
	return out
}

// Clone performs a deep copy of the mask.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	for r := range s {
		out[r] = append([]bool(nil), s[r]...)
	}
	return out
}
