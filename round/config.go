package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/brensch/numberflow/rules"
)

// ErrInvalidConfig wraps every configuration problem reported by Validate.
var ErrInvalidConfig = errors.New("invalid round config")

// Config fixes the shape and pacing of every round an Engine runs.
type Config struct {
	Width  int
	Height int
	Target int // center value that wins the round

	BasePace time.Duration // tick interval at speed level 1
	PaceStep time.Duration // subtracted per speed level
	MaxSpeed int

	Spawn rules.SpawnPolicy
}

// DefaultConfig is the classic 19x9 board played to 2048.
func DefaultConfig() Config {
	return Config{
		Width:    19,
		Height:   9,
		Target:   2048,
		BasePace: 1200 * time.Millisecond,
		PaceStep: 75 * time.Millisecond,
		MaxSpeed: 10,
		Spawn:    rules.DefaultSpawnPolicy.Clone(),
	}
}

func (c Config) Validate() error {
	if c.Width < 3 || c.Width%2 == 0 {
		return fmt.Errorf("%w: width %d must be odd and at least 3", ErrInvalidConfig, c.Width)
	}
	if c.Height < 3 || c.Height%2 == 0 {
		return fmt.Errorf("%w: height %d must be odd and at least 3", ErrInvalidConfig, c.Height)
	}
	if c.Target < 4 || !rules.IsPowerOfTwo(c.Target) {
		return fmt.Errorf("%w: target %d must be a power of two of at least 4", ErrInvalidConfig, c.Target)
	}
	if c.MaxSpeed < 1 {
		return fmt.Errorf("%w: max speed %d must be at least 1", ErrInvalidConfig, c.MaxSpeed)
	}
	if c.PaceStep < 0 {
		return fmt.Errorf("%w: negative pace step", ErrInvalidConfig)
	}
	if c.Pace(c.MaxSpeed) <= 0 {
		return fmt.Errorf("%w: pace at speed %d is %s", ErrInvalidConfig, c.MaxSpeed, c.Pace(c.MaxSpeed))
	}
	if err := c.Spawn.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Pace is the tick interval for a speed level, clamped to [1, MaxSpeed].
func (c Config) Pace(level int) time.Duration {
	if level < 1 {
		level = 1
	}
	if c.MaxSpeed > 0 && level > c.MaxSpeed {
		level = c.MaxSpeed
	}
	return c.BasePace - time.Duration(level-1)*c.PaceStep
}
