package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/store"
)

// Message types sent to clients.
const (
	TypeHello    = "hello"
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

// Message is every frame the server writes. Snapshot is always the state
// after the frame's command or tick.
type Message struct {
	Type      string         `json:"type"`
	Session   string         `json:"session,omitempty"`
	RoundID   string         `json:"round_id,omitempty"`
	Command   string         `json:"command,omitempty"`
	Rejection string         `json:"rejection,omitempty"`
	Error     string         `json:"error,omitempty"`
	Events    []round.Event  `json:"events,omitempty"`
	Snapshot  *game.Snapshot `json:"snapshot,omitempty"`
}

type session struct {
	id     string
	seed   int64
	srv    *Server
	engine *round.Engine
	log    *slog.Logger
	out    chan<- []byte

	state   *game.RoundState
	roundID string
	clock   round.SpeedClock
	running time.Duration
	rounds  int
}

func newSession(srv *Server, seed int64) (*session, error) {
	id := uuid.New().String()
	logger := srv.log.With("session", id)
	engine, err := round.New(srv.cfg.Round, rand.New(rand.NewSource(seed)), logger)
	if err != nil {
		return nil, err
	}
	return &session{
		id:     id,
		seed:   seed,
		srv:    srv,
		engine: engine,
		log:    logger,
		state:  engine.NewRound(),
		clock:  round.SpeedClock{Every: srv.cfg.AccelerateEvery},
	}, nil
}

// run is the only goroutine touching the round. Ticks fire at the round's
// pace while it is running; pausing stops the timer and resuming starts a
// full interval again.
func (ss *session) run(ctx context.Context, in <-chan inbound) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	arm := func() {
		timer.Stop()
		if ss.state.IsRunning() {
			timer.Reset(ss.state.TickPace)
		}
	}

	ss.send(Message{Type: TypeHello, Session: ss.id})
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-in:
			if ss.handle(m) {
				arm()
			}
		case <-timer.C:
			ss.tick()
			arm()
		}
	}
}

// handle applies one client frame and reports whether the tick timer needs
// rearming.
func (ss *session) handle(m inbound) bool {
	if m.err != nil {
		ss.send(Message{Type: TypeError, Error: m.err.Error()})
		return false
	}
	cmd := m.cmd
	if cmd.Op == round.OpTick {
		ss.send(Message{Type: TypeError, Command: cmd.String(), Error: "ticks are driven by the server"})
		return false
	}

	prev := ss.state
	res, err := ss.engine.Apply(ss.state, cmd)
	if err == nil && cmd.Op == round.OpStart {
		ss.begin()
	}
	ss.state = res.State
	ss.record(cmd, res, err)

	msg := Message{
		Type:      TypeSnapshot,
		Command:   cmd.String(),
		Rejection: res.Rejection,
		Events:    res.Events,
	}
	if err != nil {
		msg.Type = TypeError
		msg.Error = err.Error()
		ss.log.Debug("command failed", "command", cmd.String(), "err", err)
	}
	if !prev.Phase.Terminal() && ss.state.Phase.Terminal() {
		ss.finish()
	}
	ss.send(msg)

	return cmd.Op == round.OpStart ||
		prev.Phase != ss.state.Phase ||
		prev.TickPace != ss.state.TickPace
}

func (ss *session) begin() {
	ss.roundID = uuid.New().String()
	ss.clock.Reset()
	ss.running = 0
	ss.rounds++
	ss.log.Info("round started", "round", ss.roundID)
}

func (ss *session) tick() {
	pace := ss.state.TickPace
	res, err := ss.engine.Tick(ss.state)
	if err != nil {
		return
	}
	ss.state = res.State
	ss.running += pace

	events := res.Events
	if ss.state.IsRunning() && ss.clock.Advance(pace) {
		if acc, err := ss.engine.Accelerate(ss.state); err == nil {
			ss.state = acc.State
			events = append(events, acc.Events...)
			ss.log.Debug("speed up", "level", ss.state.SpeedLevel, "pace", ss.state.TickPace)
		}
	}

	if ss.state.Phase.Terminal() {
		ss.record(round.Command{Op: round.OpTick}, res, nil)
		ss.finish()
	}
	ss.send(Message{Type: TypeSnapshot, Events: events})
}

// finish stores the summary of a round that just ended.
func (ss *session) finish() {
	ss.log.Info("round finished",
		"round", ss.roundID,
		"phase", ss.state.Phase.String(),
		"score", ss.state.Score,
		"ticks", ss.state.Ticks,
	)
	if ss.srv.results == nil {
		return
	}
	res := store.NewRoundResult(ss.roundID, "server", ss.state)
	res.Seed = ss.seed
	res.Duration = ss.running
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ss.srv.results.Record(ctx, res); err != nil {
		ss.log.Error("record round failed", "round", ss.roundID, "err", err)
	}
}

func (ss *session) record(cmd round.Command, res round.Result, err error) {
	if ss.srv.events == nil {
		return
	}
	rec := store.EventRecord{
		Session:   ss.id,
		RoundID:   ss.roundID,
		Command:   cmd.Op,
		Side:      cmd.Side,
		Direction: cmd.Dir,
		Rejection: res.Rejection,
		Phase:     ss.state.Phase.String(),
		Score:     ss.state.Score,
		Tick:      ss.state.Ticks,
		Events:    res.Events,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if err := ss.srv.events.Append(rec); err != nil {
		ss.log.Error("event log append failed", "err", err)
	}
}

// send never blocks the round. A client too slow to drain its queue misses
// frames, and the next snapshot carries the full state anyway.
func (ss *session) send(m Message) {
	if m.RoundID == "" {
		m.RoundID = ss.roundID
	}
	snap := ss.state.Snapshot()
	m.Snapshot = &snap
	b, err := json.Marshal(m)
	if err != nil {
		ss.log.Error("encode message failed", "err", err)
		return
	}
	select {
	case ss.out <- b:
	default:
		ss.log.Warn("client queue full, frame dropped", "type", m.Type)
	}
}
