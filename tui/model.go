// Package tui is the terminal front-end: a bubbletea model that owns one
// round, drives its clock with tea.Tick and maps the keyboard onto engine
// commands.
package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/store"
)

// tickMsg carries the generation it was scheduled under. Pausing,
// restarting and speed-ups bump the generation so stale ticks are dropped.
type tickMsg struct{ gen int }

type statsMsg struct {
	stats store.Stats
	err   error
}

type recordedMsg struct {
	id  string
	err error
}

type Model struct {
	engine  *round.Engine
	results *store.Results
	state   *game.RoundState
	clock   round.SpeedClock
	gen     int

	roundID string
	running time.Duration
	best    int

	width     int
	height    int
	lastEvent string
	warning   string
}

// NewModel builds an idle round. results may be nil, in which case nothing
// is stored and no best score is shown.
func NewModel(engine *round.Engine, accelerateEvery time.Duration, results *store.Results) Model {
	return Model{
		engine:  engine,
		results: results,
		state:   engine.NewRound(),
		clock:   round.SpeedClock{Every: accelerateEvery},
	}
}

// State returns the round as the model currently sees it.
func (m Model) State() *game.RoundState { return m.state }

func (m Model) Init() tea.Cmd {
	return m.loadStats()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if msg.gen != m.gen || !m.state.IsRunning() {
			return m, nil
		}
		cmd := m.tick()
		return m, cmd
	case statsMsg:
		if msg.err != nil {
			m.warning = "Scores unavailable."
			return m, nil
		}
		if msg.stats.BestScore > m.best {
			m.best = msg.stats.BestScore
		}
		return m, nil
	case recordedMsg:
		if msg.err != nil {
			m.warning = "Round not saved."
			return m, nil
		}
		return m, m.loadStats()
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if len(key) == 1 {
		key = strings.ToLower(key)
	}
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if m.state.IsRunning() {
			return m, nil
		}
		res, err := m.engine.Start(m.state)
		if err != nil {
			return m, nil
		}
		m.state = res.State
		m.roundID = uuid.New().String()
		m.running = 0
		m.clock.Reset()
		m.lastEvent = ""
		m.warning = ""
		cmd := m.rearm()
		return m, cmd
	case "p":
		var (
			res round.Result
			err error
		)
		switch {
		case m.state.IsRunning():
			res, err = m.engine.Pause(m.state)
		case m.state.IsPaused():
			res, err = m.engine.Resume(m.state)
		default:
			return m, nil
		}
		if err != nil {
			return m, nil
		}
		m.state = res.State
		cmd := m.rearm()
		return m, cmd
	}

	command, ok := keyCommand(key)
	if !ok || !m.state.IsRunning() {
		return m, nil
	}
	res, err := m.engine.Apply(m.state, command)
	if err != nil || res.Rejected() {
		return m, nil
	}
	m.state = res.State
	m.note(res)
	if m.state.Phase.Terminal() {
		cmd := m.finish()
		return m, cmd
	}
	return m, nil
}

// keyCommand maps W/A/S/D/E to the left spawner and the arrows plus space
// to the right one.
func keyCommand(key string) (round.Command, bool) {
	switch key {
	case "w":
		return round.MoveCommand(game.LeftSide, game.Up), true
	case "s":
		return round.MoveCommand(game.LeftSide, game.Down), true
	case "a":
		return round.MoveCommand(game.LeftSide, game.Left), true
	case "d":
		return round.MoveCommand(game.LeftSide, game.Right), true
	case "e":
		return round.RotateCommand(game.LeftSide), true
	case "up":
		return round.MoveCommand(game.RightSide, game.Up), true
	case "down":
		return round.MoveCommand(game.RightSide, game.Down), true
	case "left":
		return round.MoveCommand(game.RightSide, game.Left), true
	case "right":
		return round.MoveCommand(game.RightSide, game.Right), true
	case " ":
		return round.RotateCommand(game.RightSide), true
	}
	return round.Command{}, false
}

func (m *Model) tick() tea.Cmd {
	pace := m.state.TickPace
	res, err := m.engine.Tick(m.state)
	if err != nil {
		return nil
	}
	m.state = res.State
	m.running += pace
	m.note(res)

	if m.state.Phase.Terminal() {
		return m.finish()
	}
	if m.clock.Advance(pace) {
		if acc, err := m.engine.Accelerate(m.state); err == nil {
			m.state = acc.State
			m.lastEvent = "SPEED UP"
			return m.rearm()
		}
	}
	return m.schedule()
}

// rearm drops any pending tick and schedules a fresh one.
func (m *Model) rearm() tea.Cmd {
	m.gen++
	return m.schedule()
}

func (m *Model) schedule() tea.Cmd {
	if !m.state.IsRunning() {
		return nil
	}
	gen := m.gen
	return tea.Tick(m.state.TickPace, func(time.Time) tea.Msg { return tickMsg{gen: gen} })
}

func (m *Model) note(res round.Result) {
	if merges := res.Count(round.EventMerge) + res.Settlement.Merges; merges > 1 {
		m.lastEvent = "COMBO"
	} else if merges == 1 {
		m.lastEvent = "MERGE"
	}
}

func (m *Model) finish() tea.Cmd {
	m.gen++
	if m.state.Score > m.best {
		m.best = m.state.Score
	}
	if m.results == nil {
		return nil
	}
	res := store.NewRoundResult(m.roundID, "tui", m.state)
	res.Duration = m.running
	results := m.results
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		id, err := results.Record(ctx, res)
		return recordedMsg{id: id, err: err}
	}
}

func (m Model) loadStats() tea.Cmd {
	if m.results == nil {
		return nil
	}
	results := m.results
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := results.Stats(ctx)
		return statsMsg{stats: st, err: err}
	}
}
