package round

import (
	"errors"
	"fmt"

	"github.com/brensch/numberflow/game"
)

// Command ops understood by Apply.
const (
	OpStart      = "start"
	OpTick       = "tick"
	OpMove       = "move"
	OpRotate     = "rotate"
	OpPause      = "pause"
	OpResume     = "resume"
	OpAccelerate = "accelerate"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is the wire form of an engine call, as sent by remote players and
// produced by autoplay policies.
type Command struct {
	Op   string `json:"op"`
	Side string `json:"side,omitempty"`
	Dir  string `json:"dir,omitempty"`
}

func (c Command) String() string {
	switch {
	case c.Dir != "":
		return c.Op + " " + c.Side + " " + c.Dir
	case c.Side != "":
		return c.Op + " " + c.Side
	default:
		return c.Op
	}
}

func MoveCommand(side game.Side, dir game.Direction) Command {
	return Command{Op: OpMove, Side: side.String(), Dir: dir.String()}
}

func RotateCommand(side game.Side) Command {
	return Command{Op: OpRotate, Side: side.String()}
}

// Apply dispatches cmd to the matching Engine method. Malformed commands
// return an error wrapping ErrUnknownCommand and leave s untouched.
func (e *Engine) Apply(s *game.RoundState, cmd Command) (Result, error) {
	switch cmd.Op {
	case OpStart:
		return e.Start(s)
	case OpTick:
		return e.Tick(s)
	case OpPause:
		return e.Pause(s)
	case OpResume:
		return e.Resume(s)
	case OpAccelerate:
		return e.Accelerate(s)
	case OpMove:
		side, err := game.ParseSide(cmd.Side)
		if err != nil {
			return Result{State: s}, fmt.Errorf("%w: %v", ErrUnknownCommand, err)
		}
		dir, err := game.ParseDirection(cmd.Dir)
		if err != nil {
			return Result{State: s}, fmt.Errorf("%w: %v", ErrUnknownCommand, err)
		}
		return e.Move(s, side, dir)
	case OpRotate:
		side, err := game.ParseSide(cmd.Side)
		if err != nil {
			return Result{State: s}, fmt.Errorf("%w: %v", ErrUnknownCommand, err)
		}
		return e.Rotate(s, side)
	default:
		return Result{State: s}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Op)
	}
}
