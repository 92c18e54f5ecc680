package autoplay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/numberflow/game"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/store"
)

type Config struct {
	Round  round.Config
	Policy string

	Workers  int
	Rounds   int // total across workers; 0 runs until ctx is done
	MaxTicks int // rounds still running after this many ticks are cut off
	Seed     int64

	// AccelerateEvery is measured in simulated time: the sum of tick paces.
	AccelerateEvery time.Duration

	TraceDir    string // empty disables traces
	BatchRows   int    // trace rows per parquet file
	ReportEvery time.Duration
}

// Summary is what a Run produced.
type Summary struct {
	Rounds     int64
	Won        int64
	Lost       int64
	CutOff     int64
	Ticks      int64
	Commands   int64
	BestScore  int64
	TraceFiles []string
	Elapsed    time.Duration
}

// Runner plays rounds on a worker pool. Results may be nil.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	results *store.Results

	claimed  atomic.Int64
	rounds   atomic.Int64
	won      atomic.Int64
	lost     atomic.Int64
	cutOff   atomic.Int64
	ticks    atomic.Int64
	commands atomic.Int64
	best     atomic.Int64
}

func NewRunner(cfg Config, results *store.Results, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Round.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 5000
	}
	if cfg.BatchRows <= 0 {
		cfg.BatchRows = 50_000
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if _, err := NewPolicy(cfg.Policy, cfg.Round.Target, rand.New(rand.NewSource(1))); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, log: logger, results: results}, nil
}

type finished struct {
	result store.RoundResult
	rows   []store.TraceRow
}

// Run blocks until the round budget is spent or ctx is cancelled, then
// waits for workers to finish their current round and flushes every sink.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan finished, r.cfg.Workers*2)
	traceFiles := make(chan []string, 1)
	sinkErr := make(chan error, 1)
	go func() {
		files, err := r.sinkLoop(done)
		traceFiles <- files
		sinkErr <- err
	}()

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.worker(ctx, worker, done)
		}(i)
	}

	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	var ticker <-chan time.Time
	if r.cfg.ReportEvery > 0 {
		t := time.NewTicker(r.cfg.ReportEvery)
		defer t.Stop()
		ticker = t.C
	}
loop:
	for {
		select {
		case <-workersDone:
			break loop
		case <-ticker:
			r.report(start)
		}
	}
	close(done)

	sum := Summary{
		Rounds:     r.rounds.Load(),
		Won:        r.won.Load(),
		Lost:       r.lost.Load(),
		CutOff:     r.cutOff.Load(),
		Ticks:      r.ticks.Load(),
		Commands:   r.commands.Load(),
		BestScore:  r.best.Load(),
		TraceFiles: <-traceFiles,
		Elapsed:    time.Since(start),
	}
	return sum, <-sinkErr
}

func (r *Runner) report(start time.Time) {
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return
	}
	r.log.Info("autoplay stats",
		"rounds", r.rounds.Load(),
		"won", r.won.Load(),
		"ticks_per_sec", fmt.Sprintf("%.1f", float64(r.ticks.Load())/elapsed),
		"rounds_per_sec", fmt.Sprintf("%.2f", float64(r.rounds.Load())/elapsed),
		"best_score", r.best.Load(),
	)
}

func (r *Runner) worker(ctx context.Context, id int, out chan<- finished) {
	seed := r.cfg.Seed + int64(id)*7919
	rng := rand.New(rand.NewSource(seed))
	engine, err := round.New(r.cfg.Round, rng, r.log.With("worker", id))
	if err != nil {
		r.log.Error("engine init failed", "worker", id, "err", err)
		return
	}
	policy, err := NewPolicy(r.cfg.Policy, r.cfg.Round.Target, rand.New(rand.NewSource(seed^0x5eed)))
	if err != nil {
		r.log.Error("policy init failed", "worker", id, "err", err)
		return
	}
	r.log.Debug("worker started", "worker", id, "seed", seed)

	for ctx.Err() == nil {
		if r.cfg.Rounds > 0 && r.claimed.Add(1) > int64(r.cfg.Rounds) {
			return
		}
		f := r.playRound(ctx, engine, policy)
		f.result.Seed = seed
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

// playRound runs one round to its end, the tick cap or cancellation.
func (r *Runner) playRound(ctx context.Context, e *round.Engine, policy Policy) finished {
	started := time.Now()
	id := uuid.New().String()
	res, _ := e.Start(nil)
	s := res.State
	clock := round.SpeedClock{Every: r.cfg.AccelerateEvery}
	var simulated time.Duration
	var rows []store.TraceRow
	if r.cfg.TraceDir != "" {
		rows = make([]store.TraceRow, 0, 256)
	}

	for s.IsRunning() && s.Ticks < r.cfg.MaxTicks && ctx.Err() == nil {
		for _, side := range game.Sides {
			for _, cmd := range policy.Decide(s, side) {
				res, err := e.Apply(s, cmd)
				if err != nil || res.Rejected() {
					break
				}
				s = res.State
				r.commands.Add(1)
				if !s.IsRunning() {
					break
				}
			}
		}
		if !s.IsRunning() {
			break
		}

		res, err := e.Tick(s)
		if err != nil {
			break
		}
		s = res.State
		r.ticks.Add(1)
		simulated += s.TickPace
		if rows != nil {
			rows = append(rows, store.NewTraceRow(id, policy.Name(), res))
		}
		if s.IsRunning() && clock.Advance(s.TickPace) {
			if acc, err := e.Accelerate(s); err == nil {
				s = acc.State
			}
		}
	}

	r.rounds.Add(1)
	switch s.Phase {
	case game.Won:
		r.won.Add(1)
	case game.Lost:
		r.lost.Add(1)
	default:
		r.cutOff.Add(1)
	}
	for {
		best := r.best.Load()
		if int64(s.Score) <= best || r.best.CompareAndSwap(best, int64(s.Score)) {
			break
		}
	}

	result := store.NewRoundResult(id, "autoplay", s)
	result.Policy = policy.Name()
	result.Duration = simulated
	r.log.Debug("round finished",
		"round", id,
		"phase", s.Phase.String(),
		"score", s.Score,
		"ticks", s.Ticks,
		"wall", time.Since(started),
	)
	return finished{result: result, rows: rows}
}

// sinkLoop owns the trace writer and the results batch. It drains in until
// the channel is closed, then flushes both.
func (r *Runner) sinkLoop(in <-chan finished) ([]string, error) {
	var (
		files    []string
		writer   *store.TraceWriter
		pending  []store.RoundResult
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	flushTrace := func() {
		if writer == nil {
			return
		}
		path, rows, err := writer.Finalize()
		writer = nil
		if err != nil {
			r.log.Error("trace flush failed", "err", err)
			keep(err)
			return
		}
		if path != "" {
			files = append(files, path)
			r.log.Info("trace flush ok", "path", path, "rows", rows)
		}
	}
	flushResults := func() {
		if r.results == nil || len(pending) == 0 {
			pending = pending[:0]
			return
		}
		if err := r.results.RecordMany(context.Background(), pending); err != nil {
			r.log.Error("results flush failed", "rounds", len(pending), "err", err)
			keep(err)
		}
		pending = pending[:0]
	}

	for f := range in {
		pending = append(pending, f.result)
		if len(pending) >= 32 {
			flushResults()
		}
		if r.cfg.TraceDir == "" || len(f.rows) == 0 {
			continue
		}
		if writer == nil {
			w, err := store.NewTraceWriter(r.cfg.TraceDir)
			if err != nil {
				r.log.Error("trace writer failed", "err", err)
				keep(err)
				continue
			}
			writer = w
		}
		if err := writer.WriteRows(f.rows); err != nil {
			r.log.Error("trace write failed", "err", err)
			keep(err)
			continue
		}
		writer.NoteRound()
		if writer.Rows() >= r.cfg.BatchRows {
			flushTrace()
		}
	}
	flushTrace()
	flushResults()
	return files, firstErr
}
