// Package config loads numberflow settings from defaults, an optional YAML
// file, NUMBERFLOW_* environment variables and finally command-line flags
// (applied by each binary), in that order.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/brensch/numberflow/round"
	"github.com/brensch/numberflow/rules"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("numberflow.schema.json", schemaJSON)

type Config struct {
	Grid     Grid              `yaml:"grid" json:"grid"`
	Target   int               `yaml:"target" json:"target"`
	Pace     Pace              `yaml:"pace" json:"pace"`
	Spawn    rules.SpawnPolicy `yaml:"spawn" json:"spawn"`
	Log      Log               `yaml:"log" json:"log"`
	Server   Server            `yaml:"server" json:"server"`
	Store    Store             `yaml:"store" json:"store"`
	Autoplay Autoplay          `yaml:"autoplay" json:"autoplay"`
}

type Grid struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

type Pace struct {
	Base     time.Duration `yaml:"base" json:"base"`
	Step     time.Duration `yaml:"step" json:"step"`
	MaxSpeed int           `yaml:"max_speed" json:"max_speed"`

	// AccelerateEvery is how much running time passes between speed-ups.
	// Zero disables speed-ups.
	AccelerateEvery time.Duration `yaml:"accelerate_every" json:"accelerate_every"`
}

type Log struct {
	Format string `yaml:"format" json:"format"`
	Level  string `yaml:"level" json:"level"`
}

type Server struct {
	Addr        string `yaml:"addr" json:"addr"`
	EventLog    string `yaml:"event_log" json:"event_log"`
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

type Store struct {
	ResultsDB string `yaml:"results_db" json:"results_db"`
	TraceDir  string `yaml:"trace_dir" json:"trace_dir"`
}

type Autoplay struct {
	Workers   int    `yaml:"workers" json:"workers"`
	Rounds    int    `yaml:"rounds" json:"rounds"` // 0 runs until cancelled
	MaxTicks  int    `yaml:"max_ticks" json:"max_ticks"`
	Seed      int64  `yaml:"seed" json:"seed"` // 0 seeds from the clock
	BatchRows int    `yaml:"batch_rows" json:"batch_rows"`
	Policy    string `yaml:"policy" json:"policy"`
}

func Default() Config {
	rc := round.DefaultConfig()
	return Config{
		Grid:   Grid{Width: rc.Width, Height: rc.Height},
		Target: rc.Target,
		Pace: Pace{
			Base:            rc.BasePace,
			Step:            rc.PaceStep,
			MaxSpeed:        rc.MaxSpeed,
			AccelerateEvery: 60 * time.Second,
		},
		Spawn:  rc.Spawn,
		Log:    Log{Format: "pretty", Level: "info"},
		Server: Server{Addr: ":8080", EventLog: "numberflow-events.jsonl.zst", MaxSessions: 256},
		Store:  Store{ResultsDB: "numberflow.db", TraceDir: "traces"},
		Autoplay: Autoplay{
			Workers:   4,
			MaxTicks:  5000,
			BatchRows: 50_000,
			Policy:    "greedy",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse checks raw YAML against the schema and decodes it over the
// defaults. Keys left out keep their default values.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	// The validator wants JSON-shaped values.
	js, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	var generic any
	if err := json.Unmarshal(js, &generic); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Config{}, fmt.Errorf("schema: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NUMBERFLOW_* variables that are set.
func (c *Config) ApplyEnv() {
	c.Target = getEnvIntOrDefault("NUMBERFLOW_TARGET", c.Target)
	c.Pace.AccelerateEvery = getEnvDurationOrDefault("NUMBERFLOW_ACCELERATE_EVERY", c.Pace.AccelerateEvery)
	c.Log.Format = getEnvOrDefault("NUMBERFLOW_LOG_FORMAT", c.Log.Format)
	c.Log.Level = getEnvOrDefault("NUMBERFLOW_LOG_LEVEL", c.Log.Level)
	c.Server.Addr = getEnvOrDefault("NUMBERFLOW_ADDR", c.Server.Addr)
	c.Server.EventLog = getEnvOrDefault("NUMBERFLOW_EVENT_LOG", c.Server.EventLog)
	c.Store.ResultsDB = getEnvOrDefault("NUMBERFLOW_RESULTS_DB", c.Store.ResultsDB)
	c.Store.TraceDir = getEnvOrDefault("NUMBERFLOW_TRACE_DIR", c.Store.TraceDir)
	c.Autoplay.Workers = getEnvIntOrDefault("NUMBERFLOW_WORKERS", c.Autoplay.Workers)
}

// Round converts the settings into the engine's config.
func (c Config) Round() round.Config {
	return round.Config{
		Width:    c.Grid.Width,
		Height:   c.Grid.Height,
		Target:   c.Target,
		BasePace: c.Pace.Base,
		PaceStep: c.Pace.Step,
		MaxSpeed: c.Pace.MaxSpeed,
		Spawn:    c.Spawn,
	}
}

func (c Config) Validate() error {
	if err := c.Round().Validate(); err != nil {
		return err
	}
	if c.Pace.AccelerateEvery < 0 {
		return fmt.Errorf("%w: negative accelerate_every", round.ErrInvalidConfig)
	}
	if c.Autoplay.Workers < 1 {
		return errors.New("autoplay.workers must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
