package round

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/rules"
)

type fixedSource struct{}

func (fixedSource) Intn(n int) int     { return 0 }
func (fixedSource) Float64() float64 { return 0 }

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, rand.New(rand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func started(t *testing.T, e *Engine) *game.RoundState {
	t.Helper()
	res, err := e.Start(nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res.State
}

func put(s *game.RoundState, x, y, value int, lineage uint64) {
	s.Grid.Set(game.Point{X: x, Y: y}, game.Cell{Value: value, Lineage: lineage})
}

func single(id uint64, side game.Side, x, y, value int) *game.Piece {
	return &game.Piece{
		ID:        id,
		Side:      side,
		ShapeName: game.ShapeSingle,
		Shape:     game.Shapes[game.ShapeSingle].Clone(),
		Value:     value,
		Pos:       game.Point{X: x, Y: y},
	}
}

// dumpState renders settled cells as numbers and active pieces as L/R.
func dumpState(s *game.RoundState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "phase=%s score=%d ticks=%d\n", s.Phase, s.Score, s.Ticks)
	for y := 0; y < s.Grid.Height; y++ {
		for x := 0; x < s.Grid.Width; x++ {
			pt := game.Point{X: x, Y: y}
			switch {
			case s.Pieces[game.LeftSide] != nil && s.Pieces[game.LeftSide].Covers(pt):
				b.WriteString("    L")
			case s.Pieces[game.RightSide] != nil && s.Pieces[game.RightSide].Covers(pt):
				b.WriteString("    R")
			case s.Grid.Occupied(pt):
				fmt.Fprintf(&b, "%5d", s.Grid.At(pt).Value)
			default:
				b.WriteString("    .")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cases := map[string]func(*Config){
		"even width":     func(c *Config) { c.Width = 18 },
		"tiny height":    func(c *Config) { c.Height = 1 },
		"odd target":     func(c *Config) { c.Target = 1000 },
		"pace underflow": func(c *Config) { c.PaceStep = time.Second },
		"bad spawn":      func(c *Config) { c.Spawn.Base = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate=%v want ErrInvalidConfig", err)
			}
			if _, err := New(cfg, fixedSource{}, nil); err == nil {
				t.Fatalf("New accepted invalid config")
			}
		})
	}
}

func TestPace(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		level int
		want  time.Duration
	}{
		{0, 1200 * time.Millisecond},
		{1, 1200 * time.Millisecond},
		{2, 1125 * time.Millisecond},
		{10, 525 * time.Millisecond},
		{11, 525 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := cfg.Pace(tc.level); got != tc.want {
			t.Errorf("Pace(%d)=%s want %s", tc.level, got, tc.want)
		}
	}
}

func TestStart_FromAnyPhase(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	for _, phase := range []game.Phase{game.Idle, game.Running, game.Paused, game.Won, game.Lost} {
		s := e.NewRound()
		s.Phase = phase
		s.Score = 99
		put(s, 3, 3, 8, 1)
		res, err := e.Start(s)
		if err != nil {
			t.Fatalf("Start from %s: %v", phase, err)
		}
		n := res.State
		if n.Phase != game.Running || n.Score != 0 || n.Grid.Count() != 0 || n.SpeedLevel != 1 {
			t.Fatalf("Start from %s left %s", phase, dumpState(n))
		}
		if n.Pieces[game.LeftSide] != nil || n.Pieces[game.RightSide] != nil {
			t.Fatalf("Start from %s kept pieces", phase)
		}
		if s.Score != 99 {
			t.Fatalf("Start mutated the previous state")
		}
	}
}

func TestTick_SpawnsBothSides(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	t.Logf("after first tick:\n%s", dumpState(n))

	l, r := n.Pieces[game.LeftSide], n.Pieces[game.RightSide]
	if l == nil || r == nil {
		t.Fatalf("expected both pieces after first tick")
	}
	if l.Pos.X != 0 || r.Pos.X != n.Grid.Width-r.Shape.Width() {
		t.Fatalf("spawn columns left=%d right=%d", l.Pos.X, r.Pos.X)
	}
	if l.ID == r.ID || n.PieceCount != 2 || n.Ticks != 1 {
		t.Fatalf("ids %d/%d count=%d ticks=%d", l.ID, r.ID, n.PieceCount, n.Ticks)
	}
	if res.Count(EventSpawn) != 2 {
		t.Fatalf("spawn events=%d want 2", res.Count(EventSpawn))
	}
	if s.Pieces[game.LeftSide] != nil || s.Ticks != 0 {
		t.Fatalf("Tick mutated its input")
	}

	res, err = e.Tick(n)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if got := res.State.Pieces[game.LeftSide].Pos.X; got != 1 {
		t.Fatalf("left piece x=%d want 1", got)
	}
	if got := res.State.Pieces[game.RightSide].Pos.X; got != r.Pos.X-1 {
		t.Fatalf("right piece x=%d want %d", got, r.Pos.X-1)
	}
}

func TestTick_PlacesBlockedPiece(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, 5, 2, 2)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 7, 2)
	put(s, 6, 2, 8, s.MintLineage())

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	if n.Pieces[game.LeftSide] != nil {
		t.Fatalf("blocked piece still active")
	}
	if got := n.Grid.At(game.Point{X: 5, Y: 2}); got.Value != 2 || got.Lineage != s.Pieces[game.LeftSide].ID {
		t.Fatalf("placed cell=%+v", got)
	}
	if res.Count(EventPlace) != 1 {
		t.Fatalf("place events=%d", res.Count(EventPlace))
	}
}

func TestTick_PieceStopsAtCenterline(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, 9, 0, 2)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 7, 4)

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.State.Grid.At(game.Point{X: 9, Y: 0}).Value != 2 || res.State.Pieces[game.LeftSide] != nil {
		t.Fatalf("left piece should be placed on the centerline:\n%s", dumpState(res.State))
	}
}

func TestScenarioA_AdjacentTwosMerge(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	rules.Place(s, *single(s.MintLineage(), game.LeftSide, 6, 3, 2))
	rules.Place(s, *single(s.MintLineage(), game.LeftSide, 7, 3, 2))
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, 2, 7, 8)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 7, 8)
	before := s.Score

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	t.Logf("scenario A:\n%s", dumpState(n))
	if n.Grid.Count() != 1 || n.Grid.At(game.Point{X: 7, Y: 3}).Value != 4 {
		t.Fatalf("expected one 4 at (7,3)")
	}
	if n.Score-before != 4 || res.Settlement.Merges != 1 {
		t.Fatalf("score gained %d merges %d", n.Score-before, res.Settlement.Merges)
	}
}

func TestScenarioB_MergeIntoCenter(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	c := s.Grid.Center()
	put(s, c.X, c.Y, 4, s.MintLineage())
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, c.X-1, c.Y, 4)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 0, 2)

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	if n.Pieces[game.LeftSide] != nil {
		t.Fatalf("merged piece still active")
	}
	if n.Grid.At(c).Value != 8 || n.Grid.Count() != 1 {
		t.Fatalf("center=%d count=%d\n%s", n.Grid.At(c).Value, n.Grid.Count(), dumpState(n))
	}
	if n.Score != 8 || n.Highest != 8 || res.Count(EventMerge) != 1 {
		t.Fatalf("score=%d highest=%d merges=%d", n.Score, n.Highest, res.Count(EventMerge))
	}
}

func TestScenarioC_LeftColumnLoses(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	put(s, 0, 3, 2, s.MintLineage())
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, 4, 6, 8)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 0, 2)

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.State.Phase != game.Lost || res.State.IsWon() {
		t.Fatalf("phase=%s want lost", res.State.Phase)
	}
	if _, err := e.Tick(res.State); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("tick after loss err=%v", err)
	}
}

func TestScenarioD_CenterReachesTarget(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	c := s.Grid.Center()
	put(s, c.X, c.Y, 1024, s.MintLineage())
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, c.X-1, c.Y, 1024)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 0, 2)

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	if !n.IsWon() || n.IsRunning() || res.Count(EventWon) != 1 {
		t.Fatalf("phase=%s events=%+v", n.Phase, res.Events)
	}

	after, err := e.Tick(n)
	var te *TransitionError
	if !errors.As(err, &te) || te.Op != "tick" || te.Phase != game.Won {
		t.Fatalf("tick after win err=%v", err)
	}
	if after.State != n {
		t.Fatalf("illegal tick returned a different state")
	}
}

func TestTick_WinBeatsSimultaneousLoss(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	c := s.Grid.Center()
	put(s, c.X, c.Y, 1024, s.MintLineage())
	put(s, 18, 8, 2, s.MintLineage())
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, c.X-1, c.Y, 1024)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 15, 0, 2)

	res, _ := e.Tick(s)
	if res.State.Phase != game.Won {
		t.Fatalf("phase=%s want won", res.State.Phase)
	}
}

// dominoEngine spawns a horizontal domino of value 2 in the top row on
// every tick that needs one.
func dominoEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Spawn = rules.SpawnPolicy{
		Base:       []string{game.ShapeDominoH},
		LevelEvery: 30,
		MaxLevel:   11,
	}
	e, err := New(cfg, fixedSource{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestTick_BlockedSpawnLoses(t *testing.T) {
	e := dominoEngine(t)
	s := started(t, e)
	for y := 0; y < s.Grid.Height; y++ {
		put(s, 1, y, 4, s.MintLineage())
	}
	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.State.Phase != game.Lost || res.Count(EventSpawnBlocked) != 1 {
		t.Fatalf("phase=%s events=%+v", res.State.Phase, res.Events)
	}
	if res.State.Pieces[game.LeftSide] != nil {
		t.Fatalf("blocked spawn became active")
	}
}

func TestTick_WinBeatsBlockedSpawn(t *testing.T) {
	e := dominoEngine(t)
	s := started(t, e)
	c := s.Grid.Center()
	put(s, c.X, c.Y, 1024, s.MintLineage())
	put(s, 17, 0, 4, s.MintLineage())
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, c.X-1, c.Y, 1024)

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	if n.Phase != game.Won || n.Grid.At(c).Value != 2048 {
		t.Fatalf("phase=%s events=%+v\n%s", n.Phase, res.Events, dumpState(n))
	}
	if res.Count(EventSpawnBlocked) != 1 || res.Count(EventWon) != 1 || res.Count(EventLost) != 0 {
		t.Fatalf("events=%+v", res.Events)
	}
}

func TestTick_BlockedSpawnStillSettles(t *testing.T) {
	e := dominoEngine(t)
	s := started(t, e)
	put(s, 17, 0, 4, s.MintLineage())
	put(s, 4, 6, 4, s.MintLineage())
	put(s, 6, 6, 8, s.MintLineage())
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, 5, 6, 4)

	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := res.State
	t.Logf("blocked spawn tick:\n%s", dumpState(n))
	if n.Phase != game.Lost || res.Count(EventLost) != 1 {
		t.Fatalf("phase=%s events=%+v", n.Phase, res.Events)
	}
	if !rules.IsStable(n.Grid) {
		t.Fatalf("lost state left unsettled")
	}
	// The placed 4 joins its neighbour, then the new 8 joins the old one.
	if n.Grid.At(game.Point{X: 6, Y: 6}).Value != 16 || n.Grid.Occupied(game.Point{X: 5, Y: 6}) {
		t.Fatalf("row 6 not merged")
	}
	if n.Score != 24 || res.Settlement.Merges != 2 {
		t.Fatalf("score=%d merges=%d", n.Score, res.Settlement.Merges)
	}
}

func TestTick_PiecesMeetOnCenterline(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	cx := s.Grid.CenterX()
	left := single(s.MintLineage(), game.LeftSide, cx-1, 2, 2)
	right := single(s.MintLineage(), game.RightSide, cx+1, 2, 4)
	s.Pieces[game.LeftSide] = left
	s.Pieces[game.RightSide] = right

	// Left moves first and takes the centerline; right is stopped by it.
	res, err := e.Tick(s)
	if err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	n := res.State
	if l := n.Pieces[game.LeftSide]; l == nil || l.Pos.X != cx {
		t.Fatalf("left piece did not reach the centerline:\n%s", dumpState(n))
	}
	if n.Pieces[game.RightSide] != nil || n.Grid.At(game.Point{X: cx + 1, Y: 2}).Lineage != right.ID {
		t.Fatalf("right piece not placed beside the centerline:\n%s", dumpState(n))
	}
	if len(res.Events) < 2 || res.Events[0].Kind != EventAdvance || res.Events[1].Kind != EventPlace {
		t.Fatalf("events=%+v", res.Events)
	}

	// Next tick the left piece cannot cross and is placed where it stands.
	res, err = e.Tick(n)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	n = res.State
	if n.Pieces[game.LeftSide] != nil || n.Grid.At(game.Point{X: cx, Y: 2}).Lineage != left.ID {
		t.Fatalf("left piece not placed on the centerline:\n%s", dumpState(n))
	}
	if res.Events[0].Kind != EventPlace || res.Events[0].Side != "left" {
		t.Fatalf("events=%+v", res.Events)
	}
	if !n.IsRunning() {
		t.Fatalf("phase=%s", n.Phase)
	}
}

func TestCommands_NilStateIsIdle(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	for _, cmd := range []Command{
		{Op: OpTick},
		{Op: OpPause},
		{Op: OpResume},
		{Op: OpAccelerate},
		MoveCommand(game.LeftSide, game.Down),
		RotateCommand(game.RightSide),
	} {
		res, err := e.Apply(nil, cmd)
		var te *TransitionError
		if !errors.As(err, &te) || te.Phase != game.Idle {
			t.Fatalf("%s on nil state: err=%v", cmd, err)
		}
		if res.State != nil {
			t.Fatalf("%s on nil state returned a state", cmd)
		}
	}
}

func TestMove(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	s.Pieces[game.LeftSide] = single(s.MintLineage(), game.LeftSide, 4, 4, 2)
	s.Pieces[game.RightSide] = single(s.MintLineage(), game.RightSide, 14, 4, 2)
	put(s, 4, 3, 8, s.MintLineage())
	put(s, 4, 5, 2, s.MintLineage())

	t.Run("backward refused", func(t *testing.T) {
		for _, tc := range []struct {
			side game.Side
			dir  game.Direction
		}{{game.LeftSide, game.Left}, {game.RightSide, game.Right}} {
			res, err := e.Move(s, tc.side, tc.dir)
			if err != nil || !res.Rejected() || res.State != s {
				t.Fatalf("%s %s: err=%v rejected=%v", tc.side, tc.dir, err, res.Rejected())
			}
		}
	})

	t.Run("forward and vertical", func(t *testing.T) {
		res, err := e.Move(s, game.RightSide, game.Left)
		if err != nil || res.Rejected() {
			t.Fatalf("right forward: err=%v rejection=%q", err, res.Rejection)
		}
		if res.State.Pieces[game.RightSide].Pos.X != 13 || s.Pieces[game.RightSide].Pos.X != 14 {
			t.Fatalf("move not copy-on-write")
		}
		res, err = e.Move(s, game.RightSide, game.Up)
		if err != nil || res.State.Pieces[game.RightSide].Pos.Y != 3 {
			t.Fatalf("right up: err=%v", err)
		}
	})

	t.Run("blocked keeps piece", func(t *testing.T) {
		res, err := e.Move(s, game.LeftSide, game.Up)
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		if !res.Rejected() || res.Verdict != rules.BlockedByMismatch || res.State != s {
			t.Fatalf("verdict=%s rejection=%q", res.Verdict, res.Rejection)
		}
	})

	t.Run("equal landing merges", func(t *testing.T) {
		res, err := e.Move(s, game.LeftSide, game.Down)
		if err != nil || res.Verdict != rules.WouldMerge {
			t.Fatalf("err=%v verdict=%s", err, res.Verdict)
		}
		n := res.State
		if n.Pieces[game.LeftSide] != nil || n.Grid.At(game.Point{X: 4, Y: 5}).Value != 4 || n.Score != 4 {
			t.Fatalf("merge result:\n%s", dumpState(n))
		}
	})

	t.Run("no active piece", func(t *testing.T) {
		empty := started(t, e)
		if _, err := e.Move(empty, game.LeftSide, game.Right); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("err=%v want ErrIllegalTransition", err)
		}
	})

	t.Run("paused", func(t *testing.T) {
		p, _ := e.Pause(s)
		if _, err := e.Move(p.State, game.LeftSide, game.Right); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("err=%v want ErrIllegalTransition", err)
		}
	})
}

func TestRotate(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	s.Pieces[game.LeftSide] = &game.Piece{
		ID: s.MintLineage(), Side: game.LeftSide, ShapeName: game.ShapeDominoV,
		Shape: game.Shapes[game.ShapeDominoV].Clone(), Value: 2, Pos: game.Point{X: 3, Y: 3},
	}
	s.Pieces[game.RightSide] = &game.Piece{
		ID: s.MintLineage(), Side: game.RightSide, ShapeName: game.ShapeDominoV,
		Shape: game.Shapes[game.ShapeDominoV].Clone(), Value: 2, Pos: game.Point{X: 18, Y: 3},
	}

	res, err := e.Rotate(s, game.LeftSide)
	if err != nil || res.Rejected() {
		t.Fatalf("rotate left: err=%v rejection=%q", err, res.Rejection)
	}
	if got := res.State.Pieces[game.LeftSide].Shape.Width(); got != 2 {
		t.Fatalf("rotated width=%d want 2", got)
	}

	// Rotating at the right edge would push the second cell out of bounds.
	res, err = e.Rotate(s, game.RightSide)
	if err != nil || !res.Rejected() || res.Verdict != rules.BlockedByBoundary {
		t.Fatalf("rotate right: err=%v verdict=%s", err, res.Verdict)
	}
}

func TestPauseResume(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	if _, err := e.Resume(s); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("resume while running err=%v", err)
	}
	p, err := e.Pause(s)
	if err != nil || !p.State.IsPaused() {
		t.Fatalf("pause: err=%v phase=%s", err, p.State.Phase)
	}
	if _, err := e.Tick(p.State); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("tick while paused err=%v", err)
	}
	if _, err := e.Pause(p.State); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("double pause err=%v", err)
	}
	r, err := e.Resume(p.State)
	if err != nil || !r.State.IsRunning() {
		t.Fatalf("resume: err=%v", err)
	}
	if !r.State.Grid.Equal(s.Grid) || r.State.Ticks != s.Ticks {
		t.Fatalf("pause/resume changed the round")
	}
}

func TestAccelerate(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	s := started(t, e)
	if s.TickPace != 1200*time.Millisecond {
		t.Fatalf("initial pace=%s", s.TickPace)
	}
	for i := 2; i <= 10; i++ {
		res, err := e.Accelerate(s)
		if err != nil || res.Rejected() {
			t.Fatalf("accelerate to %d: err=%v", i, err)
		}
		s = res.State
		if s.SpeedLevel != i || s.TickPace != e.Config().Pace(i) {
			t.Fatalf("level=%d pace=%s", s.SpeedLevel, s.TickPace)
		}
	}
	res, err := e.Accelerate(s)
	if err != nil || !res.Rejected() || res.State.SpeedLevel != 10 {
		t.Fatalf("accelerate past max: err=%v level=%d", err, res.State.SpeedLevel)
	}
	if _, err := e.Accelerate(e.NewRound()); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("accelerate while idle err=%v", err)
	}
}

// TestRandomWalkInvariants drives rounds with random commands and checks
// the invariants that must hold in every reachable state.
func TestRandomWalkInvariants(t *testing.T) {
	dirs := []game.Direction{game.Up, game.Down, game.Left, game.Right}
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		e, err := New(DefaultConfig(), rand.New(rand.NewSource(seed*31)), nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		s := started(t, e)
		for step := 0; step < 400 && !s.Phase.Terminal(); step++ {
			prev := s.Clone()
			side := game.Sides[rng.Intn(2)]
			var res Result
			switch rng.Intn(4) {
			case 0, 1:
				res, err = e.Tick(s)
			case 2:
				res, err = e.Move(s, side, dirs[rng.Intn(len(dirs))])
			default:
				res, err = e.Rotate(s, side)
			}
			if err != nil && !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("seed %d step %d: %v", seed, step, err)
			}
			if !s.Grid.Equal(prev.Grid) || s.Score != prev.Score {
				t.Fatalf("seed %d step %d: command mutated its input", seed, step)
			}
			s = res.State
			checkInvariants(t, e, s)
		}
	}
}

func checkInvariants(t *testing.T, e *Engine, s *game.RoundState) {
	t.Helper()
	for i, c := range s.Grid.Cells {
		if !c.Empty() && (c.Value < 2 || !rules.IsPowerOfTwo(c.Value)) {
			t.Fatalf("cell %d holds %d\n%s", i, c.Value, dumpState(s))
		}
	}
	for _, side := range game.Sides {
		p := s.Pieces[side]
		if p == nil {
			continue
		}
		if p.Side != side {
			t.Fatalf("%s slot holds a %s piece", side, p.Side)
		}
		if !rules.IsPowerOfTwo(p.Value) || p.Value < 2 {
			t.Fatalf("%s piece value %d", side, p.Value)
		}
		for _, c := range p.Cells() {
			if !s.Grid.In(c) || !rules.OnOwnHalf(s.Grid, side, c.X) {
				t.Fatalf("%s piece out of its half at %+v\n%s", side, c, dumpState(s))
			}
			if s.Grid.Occupied(c) {
				t.Fatalf("%s piece overlaps a settled cell at %+v\n%s", side, c, dumpState(s))
			}
			if o := s.Pieces[side.Opposite()]; o != nil && o.Covers(c) {
				t.Fatalf("pieces overlap at %+v", c)
			}
		}
	}
	if s.Phase == game.Running && !rules.IsStable(s.Grid) {
		t.Fatalf("running state left unsettled\n%s", dumpState(s))
	}
	if s.Phase == game.Running && rules.Evaluate(s.Grid, e.Config().Target, s.Phase) != game.Running {
		t.Fatalf("terminal grid still running\n%s", dumpState(s))
	}
}
