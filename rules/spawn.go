package rules

import (
	"fmt"
	"math"

	"github.com/brensch/numberflow/game"
)

// Source is the randomness the spawner draws from. *rand.Rand satisfies it.
//
// Callers choose:
// - a time-seeded source for real play, or
// - a fixed seed (or a scripted source) for tests and reproducible runs.
type Source interface {
	Intn(n int) int
	Float64() float64
}

// SpawnTier unlocks extra shapes once the adjusted piece count reaches
// Threshold. Each spawn rolls Chance independently for every unlocked tier.
type SpawnTier struct {
	Threshold int      `yaml:"threshold" json:"threshold"`
	Chance    float64  `yaml:"chance" json:"chance"`
	Shapes    []string `yaml:"shapes" json:"shapes"`
}

// SpawnPolicy controls which shapes and values the spawners produce.
type SpawnPolicy struct {
	Base  []string    `yaml:"base" json:"base"`
	Tiers []SpawnTier `yaml:"tiers" json:"tiers"`

	// RightOffset is added to the piece count for the right spawner so the
	// two sides do not unlock tiers in lockstep.
	RightOffset int `yaml:"right_offset" json:"right_offset"`

	// After BiasAfter pieces each side gains one extra shape.
	BiasAfter int    `yaml:"bias_after" json:"bias_after"`
	LeftBias  string `yaml:"left_bias" json:"left_bias"`
	RightBias string `yaml:"right_bias" json:"right_bias"`

	// Below EasyUntil pieces every pool gets one more EasyShape.
	EasyUntil int    `yaml:"easy_until" json:"easy_until"`
	EasyShape string `yaml:"easy_shape" json:"easy_shape"`

	// Value levels: the top level is min(MaxLevel, 1 + adjusted/LevelEvery)
	// and the drawn level is ceil(r^2 * top), so low powers dominate.
	LevelEvery int `yaml:"level_every" json:"level_every"`
	MaxLevel   int `yaml:"max_level" json:"max_level"`
}

// DefaultSpawnPolicy is the standard NumberFlow pacing.
var DefaultSpawnPolicy = SpawnPolicy{
	Base: []string{game.ShapeSingle},
	Tiers: []SpawnTier{
		{Threshold: 8, Chance: 0.8, Shapes: []string{game.ShapeDominoH, game.ShapeDominoV}},
		{Threshold: 20, Chance: 0.7, Shapes: []string{game.ShapeLSmall, game.ShapeLSmallFlip}},
		{Threshold: 35, Chance: 0.6, Shapes: []string{game.ShapeZMini, game.ShapeSMini}},
		{Threshold: 50, Chance: 0.5, Shapes: []string{game.ShapeLine3, game.ShapeLine3V}},
		{Threshold: 70, Chance: 0.4, Shapes: []string{game.ShapeTUp}},
	},
	RightOffset: 5,
	BiasAfter:   15,
	LeftBias:    game.ShapeDominoH,
	RightBias:   game.ShapeDominoV,
	EasyUntil:   30,
	EasyShape:   game.ShapeSingle,
	LevelEvery:  30,
	MaxLevel:    11,
}

// Clone returns a copy that shares no slices with p.
func (p SpawnPolicy) Clone() SpawnPolicy {
	out := p
	out.Base = append([]string(nil), p.Base...)
	out.Tiers = make([]SpawnTier, len(p.Tiers))
	for i, t := range p.Tiers {
		t.Shapes = append([]string(nil), t.Shapes...)
		out.Tiers[i] = t
	}
	return out
}

// Validate checks that every named shape exists and the numbers make sense.
func (p SpawnPolicy) Validate() error {
	if len(p.Base) == 0 {
		return fmt.Errorf("spawn policy: base pool is empty")
	}
	check := func(name string) error {
		if name == "" {
			return nil
		}
		if _, ok := game.Shapes[name]; !ok {
			return fmt.Errorf("spawn policy: unknown shape %q", name)
		}
		return nil
	}
	for _, name := range p.Base {
		if name == "" {
			return fmt.Errorf("spawn policy: empty base shape name")
		}
		if err := check(name); err != nil {
			return err
		}
	}
	for i, t := range p.Tiers {
		if t.Chance < 0 || t.Chance > 1 {
			return fmt.Errorf("spawn policy: tier %d chance %.2f outside [0,1]", i, t.Chance)
		}
		for _, name := range t.Shapes {
			if err := check(name); err != nil {
				return err
			}
		}
	}
	for _, name := range []string{p.LeftBias, p.RightBias, p.EasyShape} {
		if err := check(name); err != nil {
			return err
		}
	}
	if p.LevelEvery <= 0 {
		return fmt.Errorf("spawn policy: level_every must be positive")
	}
	if p.MaxLevel < 1 {
		return fmt.Errorf("spawn policy: max_level must be at least 1")
	}
	return nil
}

// Pool builds the weighted shape pool for a spawn. Tier rolls consume one
// Float64 each, in tier order, only for tiers that are unlocked.
func (p SpawnPolicy) Pool(src Source, side game.Side, count int) []string {
	adjusted := p.adjusted(side, count)
	pool := append([]string(nil), p.Base...)
	for _, t := range p.Tiers {
		if adjusted >= t.Threshold && src.Float64() < t.Chance {
			pool = append(pool, t.Shapes...)
		}
	}
	if count > p.BiasAfter {
		if side == game.LeftSide && p.LeftBias != "" {
			pool = append(pool, p.LeftBias)
		} else if side == game.RightSide && p.RightBias != "" {
			pool = append(pool, p.RightBias)
		}
	}
	if count < p.EasyUntil && p.EasyShape != "" {
		pool = append(pool, p.EasyShape)
	}
	return pool
}

// Level draws the power of two exponent for a spawn, at least 1.
func (p SpawnPolicy) Level(src Source, side game.Side, count int) int {
	top := 1 + p.adjusted(side, count)/p.LevelEvery
	if top > p.MaxLevel {
		top = p.MaxLevel
	}
	r := src.Float64()
	level := int(math.Ceil(r * r * float64(top)))
	if level < 1 {
		level = 1
	}
	return level
}

func (p SpawnPolicy) adjusted(side game.Side, count int) int {
	if side == game.RightSide {
		return count + p.RightOffset
	}
	return count
}

// Spawn creates the next piece for side. Left pieces start flush with the
// left edge and right pieces flush with the right edge; the row is uniform
// over every row the mask fits in. The caller assigns the ID.
func (p SpawnPolicy) Spawn(src Source, g *game.Grid, side game.Side, count int) game.Piece {
	pool := p.Pool(src, side, count)
	name := pool[src.Intn(len(pool))]
	shape := game.Shapes[name].Clone()
	level := p.Level(src, side, count)

	rows := g.Height - shape.Height() + 1
	y := 0
	if rows > 1 {
		y = src.Intn(rows)
	}
	x := 0
	if side == game.RightSide {
		x = g.Width - shape.Width()
	}
	return game.Piece{
		Side:      side,
		ShapeName: name,
		Shape:     shape,
		Value:     1 << level,
		Pos:       game.Point{X: x, Y: y},
	}
}
