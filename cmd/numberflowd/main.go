package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/numberflow/config"
	"github.com/brensch/numberflow/logging"
	"github.com/brensch/numberflow/server"
	"github.com/brensch/numberflow/store"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	resultsDB := flag.String("results-db", "", "SQLite database for finished rounds (overrides config)")
	eventLog := flag.String("event-log", "", "Command log path, rotated daily (overrides config)")
	maxSessions := flag.Int("max-sessions", 0, "Maximum concurrent sessions (overrides config)")
	seed := flag.Int64("seed", 0, "Base spawn seed; 0 seeds every session from the clock")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *resultsDB != "" {
		cfg.Store.ResultsDB = *resultsDB
	}
	if *eventLog != "" {
		cfg.Server.EventLog = *eventLog
	}
	if *maxSessions > 0 {
		cfg.Server.MaxSessions = *maxSessions
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

	var events *store.EventLog
	if cfg.Server.EventLog != "" {
		events, err = store.OpenEventLog(cfg.Server.EventLog)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		defer events.Close()
	}

	srv, err := server.New(server.Config{
		Round:           cfg.Round(),
		AccelerateEvery: cfg.Pace.AccelerateEvery,
		MaxSessions:     cfg.Server.MaxSessions,
		Seed:            *seed,
	}, results, events, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
	}()

	logger.Info("numberflow server listening",
		"addr", cfg.Server.Addr,
		"grid", cfg.Grid,
		"target", cfg.Target,
		"max_sessions", cfg.Server.MaxSessions,
		"results_db", cfg.Store.ResultsDB,
		"event_log", cfg.Server.EventLog,
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}

	// Websocket sessions are hijacked and outlive Shutdown.
	srv.Close()
	logger.Info("numberflow server stopped")
}
