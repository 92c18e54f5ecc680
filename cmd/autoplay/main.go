package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/numberflow/autoplay"
	"github.com/brensch/numberflow/config"
	"github.com/brensch/numberflow/logging"
	"github.com/brensch/numberflow/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (overrides config)")
	rounds := flag.Int("rounds", 0, "Stop after this many rounds across all workers; 0 runs until interrupted (overrides config)")
	maxTicks := flag.Int("max-ticks", 0, "Cut off rounds still running after this many ticks (overrides config)")
	seed := flag.Int64("seed", 0, "Base seed; 0 seeds from the clock (overrides config)")
	policy := flag.String("policy", "", "Policy: greedy or random (overrides config)")
	traceDir := flag.String("trace-dir", "", "Directory for parquet tick traces (overrides config)")
	noTraces := flag.Bool("no-traces", false, "Do not write tick traces")
	resultsDB := flag.String("results-db", "", "SQLite database for round summaries (overrides config)")
	batchRows := flag.Int("batch-rows", 0, "Trace rows per parquet file (overrides config)")
	reportEvery := flag.Duration("report-every", time.Second, "How often to log live counters")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if *workers > 0 {
		cfg.Autoplay.Workers = *workers
	}
	if *rounds > 0 {
		cfg.Autoplay.Rounds = *rounds
	}
	if *maxTicks > 0 {
		cfg.Autoplay.MaxTicks = *maxTicks
	}
	if *seed != 0 {
		cfg.Autoplay.Seed = *seed
	}
	if *policy != "" {
		cfg.Autoplay.Policy = *policy
	}
	if *traceDir != "" {
		cfg.Store.TraceDir = *traceDir
	}
	if *noTraces {
		cfg.Store.TraceDir = ""
	}
	if *resultsDB != "" {
		cfg.Store.ResultsDB = *resultsDB
	}
	if *batchRows > 0 {
		cfg.Autoplay.BatchRows = *batchRows
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	var results *store.Results
	if cfg.Store.ResultsDB != "" {
		results, err = store.OpenResults(cfg.Store.ResultsDB)
		if err != nil {
			log.Fatalf("Failed to open results db: %v", err)
		}
		defer results.Close()
	}

	runner, err := autoplay.NewRunner(autoplay.Config{
		Round:           cfg.Round(),
		Policy:          cfg.Autoplay.Policy,
		Workers:         cfg.Autoplay.Workers,
		Rounds:          cfg.Autoplay.Rounds,
		MaxTicks:        cfg.Autoplay.MaxTicks,
		Seed:            cfg.Autoplay.Seed,
		AccelerateEvery: cfg.Pace.AccelerateEvery,
		TraceDir:        cfg.Store.TraceDir,
		BatchRows:       cfg.Autoplay.BatchRows,
		ReportEvery:     *reportEvery,
	}, results, logger)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("autoplay starting",
		"workers", cfg.Autoplay.Workers,
		"rounds", cfg.Autoplay.Rounds,
		"policy", cfg.Autoplay.Policy,
		"trace_dir", cfg.Store.TraceDir,
		"results_db", cfg.Store.ResultsDB,
	)
	sum, err := runner.Run(ctx)
	if err != nil {
		logger.Error("autoplay finished with errors", "err", err)
	}

	fmt.Println()
	fmt.Printf("Rounds:      %d (won %d, lost %d, cut off %d)\n", sum.Rounds, sum.Won, sum.Lost, sum.CutOff)
	fmt.Printf("Ticks:       %d\n", sum.Ticks)
	fmt.Printf("Commands:    %d\n", sum.Commands)
	fmt.Printf("Best score:  %d\n", sum.BestScore)
	fmt.Printf("Duration:    %s\n", sum.Elapsed.Round(time.Millisecond))
	for _, path := range sum.TraceFiles {
		fmt.Printf("Trace:       %s\n", path)
	}
	if err != nil {
		os.Exit(1)
	}
}
