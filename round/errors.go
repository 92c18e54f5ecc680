package round

import (
	"errors"
	"fmt"

	"github.com/brensch/numberflow/game"
)

// ErrIllegalTransition is matched by every *TransitionError.
var ErrIllegalTransition = errors.New("illegal transition")

// TransitionError reports a command that the round cannot accept right now.
// The state it was issued against is left untouched.
type TransitionError struct {
	Op     string
	Phase  game.Phase
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (phase %s)", e.Op, e.Reason, e.Phase)
	}
	return fmt.Sprintf("%s: not allowed in phase %s", e.Op, e.Phase)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

func illegal(op string, phase game.Phase) error {
	return &TransitionError{Op: op, Phase: phase}
}
