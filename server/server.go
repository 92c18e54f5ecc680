// Package server plays NumberFlow rounds over websockets. Each connection
// owns one private round whose clock runs on the server; clients send
// commands as JSON and receive a snapshot after every change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/store"
)

type Config struct {
	Round           round.Config
	AccelerateEvery time.Duration
	MaxSessions     int   // 0 means unlimited
	Seed            int64 // 0 seeds every session from the clock
}

// Server hands out sessions and serves the JSON API. Results and Events
// are optional sinks.
type Server struct {
	cfg     Config
	log     *slog.Logger
	results *store.Results
	events  *store.EventLog

	upgrader websocket.Upgrader
	active   atomic.Int64
	seq      atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders session admission against Close so wg.Add never races
	// wg.Wait.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func New(cfg Config, results *store.Results, events *store.EventLog, logger *slog.Logger) (*Server, error) {
	if err := cfg.Round.Validate(); err != nil {
		return nil, err
	}
	if cfg.AccelerateEvery < 0 {
		return nil, errors.New("accelerate interval must not be negative")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		log:     logger,
		results: results,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Handler routes /ws, /api/config and /api/scores.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/scores", s.handleScores)
	return mux
}

// Active returns the number of connected sessions.
func (s *Server) Active() int { return int(s.active.Load()) }

// Close ends every session and waits for them to flush. Hijacked websocket
// connections are not tracked by http.Server.Shutdown, so callers need both.
func (s *Server) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// admit registers a session with the wait group unless Close has begun.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) seed() int64 {
	n := s.seq.Add(1)
	if s.cfg.Seed == 0 {
		return time.Now().UnixNano() + n
	}
	return s.cfg.Seed + n*7919
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.admit() {
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	n := s.active.Add(1)
	defer s.active.Add(-1)
	if limit := s.cfg.MaxSessions; limit > 0 && n > int64(limit) {
		s.log.Warn("session refused", "reason", "max sessions", "remote", r.RemoteAddr)
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	sess, err := newSession(s, s.seed())
	if err != nil {
		s.log.Error("session init failed", "err", err)
		return
	}
	sess.log.Info("session opened", "remote", r.RemoteAddr, "active", s.active.Load())

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	out := make(chan []byte, 32)
	sess.out = out
	go writeLoop(ctx, conn, out)

	in := make(chan inbound)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.run(ctx, in)
		cancel()
	}()

	readLoop(ctx, conn, in)
	cancel()
	<-done
	sess.log.Info("session closed", "rounds", sess.rounds, "score", sess.state.Score)
}

const (
	writeWait = 5 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = 25 * time.Second
)

// writeLoop owns every data write on conn. It sends a close frame and shuts
// the connection when ctx ends, which also unblocks the reader.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// inbound is one decoded client frame. Err is set when the frame was not a
// command.
type inbound struct {
	cmd round.Command
	err error
}

func readLoop(ctx context.Context, conn *websocket.Conn, in chan<- inbound) {
	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var m inbound
		if err := json.Unmarshal(msg, &m.cmd); err != nil {
			m.err = errors.New("malformed command")
		}
		select {
		case in <- m:
		case <-ctx.Done():
			return
		}
	}
}

// ConfigView is the /api/config payload.
type ConfigView struct {
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	Target            int      `json:"target"`
	BasePaceMs        int64    `json:"base_pace_ms"`
	PaceStepMs        int64    `json:"pace_step_ms"`
	MaxSpeed          int      `json:"max_speed"`
	AccelerateEveryMs int64    `json:"accelerate_every_ms"`
	Shapes            []string `json:"shapes"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rc := s.cfg.Round
	writeJSON(w, ConfigView{
		Width:             rc.Width,
		Height:            rc.Height,
		Target:            rc.Target,
		BasePaceMs:        rc.BasePace.Milliseconds(),
		PaceStepMs:        rc.PaceStep.Milliseconds(),
		MaxSpeed:          rc.MaxSpeed,
		AccelerateEveryMs: s.cfg.AccelerateEvery.Milliseconds(),
		Shapes:            game.ShapeNames(),
	})
}

// ScoresView is the /api/scores payload.
type ScoresView struct {
	Top   []store.RoundResult `json:"top"`
	Stats store.Stats         `json:"stats"`
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	view := ScoresView{Top: []store.RoundResult{}}
	if s.results == nil {
		writeJSON(w, view)
		return
	}
	limit := parseIntQuery(r, "limit", 10)
	if limit > 100 {
		limit = 100
	}
	top, err := s.results.Top(r.Context(), limit)
	if err != nil {
		s.log.Error("scores query failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if top != nil {
		view.Top = top
	}
	if view.Stats, err = s.results.Stats(r.Context()); err != nil {
		s.log.Error("stats query failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, view)
}

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
