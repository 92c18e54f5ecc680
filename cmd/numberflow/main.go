package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/numberflow/config"
	"github.com/brensch/numberflow/logging"
	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/store"
	"github.com/brensch/numberflow/tui"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	seed := flag.Int64("seed", 0, "Spawn seed; 0 seeds from the clock")
	resultsDB := flag.String("results-db", "", "SQLite database for finished rounds (overrides config)")
	noResults := flag.Bool("no-results", false, "Do not store finished rounds")
	logFile := flag.String("log-file", "numberflow.log", "Log destination; the terminal belongs to the game")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv()
	if *resultsDB != "" {
		cfg.Store.ResultsDB = *resultsDB
	}
	if *noResults {
		cfg.Store.ResultsDB = ""
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level, f)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	engine, err := round.New(cfg.Round(), rand.New(rand.NewSource(*seed)), logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	var results *store.Results
	if cfg.Store.ResultsDB != "" {
		results, err = store.OpenResults(cfg.Store.ResultsDB)
		if err != nil {
			log.Fatalf("Failed to open results db: %v", err)
		}
		defer results.Close()
	}

	logger.Info("numberflow starting", "seed", *seed, "grid", cfg.Grid, "target", cfg.Target)
	p := tea.NewProgram(tui.NewModel(engine, cfg.Pace.AccelerateEvery, results), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("tui exited", "err", err)
		log.Fatalf("TUI failed: %v", err)
	}
}
