package tui

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/store"
)

func newModel(t *testing.T) Model {
	t.Helper()
	e, err := round.New(round.DefaultConfig(), rand.New(rand.NewSource(9)), nil)
	if err != nil {
		t.Fatalf("round.New: %v", err)
	}
	return NewModel(e, time.Minute, nil)
}

func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func tickOnce(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tickMsg{gen: m.gen})
	return next.(Model)
}

func TestKeyCommand(t *testing.T) {
	cases := []struct {
		key  string
		want round.Command
	}{
		{"w", round.MoveCommand(game.LeftSide, game.Up)},
		{"s", round.MoveCommand(game.LeftSide, game.Down)},
		{"a", round.MoveCommand(game.LeftSide, game.Left)},
		{"d", round.MoveCommand(game.LeftSide, game.Right)},
		{"e", round.RotateCommand(game.LeftSide)},
		{"up", round.MoveCommand(game.RightSide, game.Up)},
		{"down", round.MoveCommand(game.RightSide, game.Down)},
		{"left", round.MoveCommand(game.RightSide, game.Left)},
		{"right", round.MoveCommand(game.RightSide, game.Right)},
		{" ", round.RotateCommand(game.RightSide)},
	}
	for _, tc := range cases {
		got, ok := keyCommand(tc.key)
		if !ok || got != tc.want {
			t.Errorf("keyCommand(%q)=%v,%v want %v", tc.key, got, ok, tc.want)
		}
	}
	if _, ok := keyCommand("x"); ok {
		t.Errorf("x mapped to a command")
	}
}

func TestEnterStartsAndTicksAdvance(t *testing.T) {
	m := newModel(t)
	if m.State().Phase != game.Idle {
		t.Fatalf("phase=%v", m.State().Phase)
	}
	if !strings.Contains(m.View(), "Press Enter to start") {
		t.Fatalf("idle view missing prompt")
	}

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.State().IsRunning() || cmd == nil {
		t.Fatalf("enter did not start: phase=%v cmd=%v", m.State().Phase, cmd)
	}

	m = tickOnce(t, m)
	m = tickOnce(t, m)
	if m.State().Ticks != 2 {
		t.Fatalf("ticks=%d", m.State().Ticks)
	}
	if m.State().Piece(game.LeftSide) == nil {
		t.Fatalf("no left piece after two ticks")
	}

	// Enter while running does nothing.
	before := m.State()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.State() != before {
		t.Fatalf("enter restarted a running round")
	}
}

func TestStaleTickIgnored(t *testing.T) {
	m := newModel(t)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	stale := tickMsg{gen: m.gen}

	m, _ = press(t, m, runes("p"))
	if !m.State().IsPaused() {
		t.Fatalf("p did not pause")
	}
	next, cmd := m.Update(stale)
	m = next.(Model)
	if m.State().Ticks != 0 || cmd != nil {
		t.Fatalf("tick applied while paused")
	}

	m, cmd = press(t, m, runes("P"))
	if !m.State().IsRunning() || cmd == nil {
		t.Fatalf("P did not resume")
	}
	next, _ = m.Update(stale)
	m = next.(Model)
	if m.State().Ticks != 0 {
		t.Fatalf("tick from before the pause was applied")
	}
	m = tickOnce(t, m)
	if m.State().Ticks != 1 {
		t.Fatalf("ticks=%d", m.State().Ticks)
	}
}

func TestMoveKeysReachEngine(t *testing.T) {
	m := newModel(t)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = tickOnce(t, m)

	p := m.State().Piece(game.LeftSide)
	if p == nil {
		t.Fatalf("no left piece")
	}
	// Step away from whichever edge the piece touches.
	key, want := runes("s"), p.Pos.Y+1
	if p.Pos.Y+p.Shape.Height() >= m.State().Grid.Height {
		key, want = runes("W"), p.Pos.Y-1
	}
	m, _ = press(t, m, key)
	if got := m.State().Piece(game.LeftSide).Pos.Y; got != want {
		t.Fatalf("left piece y=%d want %d", got, want)
	}

	// Moves are ignored while paused.
	m, _ = press(t, m, runes("p"))
	before := m.State()
	m, _ = press(t, m, key)
	if m.State() != before {
		t.Fatalf("move applied while paused")
	}
}

func TestSpeedUpAfterRunningTime(t *testing.T) {
	e, err := round.New(round.DefaultConfig(), rand.New(rand.NewSource(9)), nil)
	if err != nil {
		t.Fatalf("round.New: %v", err)
	}
	// One tick at level 1 is 1200ms of running time.
	m := NewModel(e, 1200*time.Millisecond, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	gen := m.gen
	m = tickOnce(t, m)
	if m.State().SpeedLevel != 2 || m.gen == gen {
		t.Fatalf("speed=%d gen=%d", m.State().SpeedLevel, m.gen)
	}
	if m.lastEvent != "SPEED UP" {
		t.Fatalf("lastEvent=%q", m.lastEvent)
	}
}

func TestFinishedRoundIsRecorded(t *testing.T) {
	results, err := store.OpenResults(":memory:")
	if err != nil {
		t.Fatalf("OpenResults: %v", err)
	}
	defer results.Close()

	e, err := round.New(round.DefaultConfig(), rand.New(rand.NewSource(9)), nil)
	if err != nil {
		t.Fatalf("round.New: %v", err)
	}
	m := NewModel(e, 0, results)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	// Fill column 0 so the next settle ends the round.
	s := m.state.Clone()
	s.Grid.Set(game.Point{X: 0, Y: 4}, game.Cell{Value: 2, Lineage: s.MintLineage()})
	m.state = s

	next, cmd := m.Update(tickMsg{gen: m.gen})
	m = next.(Model)
	if !m.State().IsLost() {
		t.Fatalf("phase=%v", m.State().Phase)
	}
	if cmd == nil {
		t.Fatalf("no record command for a finished round")
	}
	msg, ok := cmd().(recordedMsg)
	if !ok || msg.err != nil {
		t.Fatalf("record msg=%+v", msg)
	}
	st, err := results.Stats(t.Context())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Rounds != 1 || st.Lost != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if !strings.Contains(m.View(), "Game over") {
		t.Fatalf("lost view missing banner")
	}
}

func TestPalette(t *testing.T) {
	if CellColor(2048) != lipgloss.Color("#FFD700") {
		t.Fatalf("2048 colour=%v", CellColor(2048))
	}
	if CellColor(2) != lipgloss.Color("#ffffff") {
		t.Fatalf("2 colour=%v", CellColor(2))
	}
	if CellColor(3) != fallbackColor {
		t.Fatalf("unknown value colour=%v", CellColor(3))
	}
	if TextColor(2) != lipgloss.Color("#000000") || TextColor(8) != lipgloss.Color("#ffffff") {
		t.Fatalf("text colours wrong")
	}
}

func TestViewShowsValues(t *testing.T) {
	m := newModel(t)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	s := m.state.Clone()
	s.Grid.Set(game.Point{X: 9, Y: 4}, game.Cell{Value: 1024, Lineage: s.MintLineage()})
	m.state = s
	view := m.View()
	for _, want := range []string{"1024", "Score:", "Speed:   1 (1200ms)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}
