package round

import "time"

// SpeedClock tracks running time between speed-ups. Schedulers feed it the
// time that passed while the round was running and call Accelerate when it
// reports a speed-up is due. A zero Every never fires.
type SpeedClock struct {
	Every   time.Duration
	elapsed time.Duration
}

// Advance adds d of running time and reports whether a speed-up is due.
// At most one speed-up fires per call.
func (c *SpeedClock) Advance(d time.Duration) bool {
	if c.Every <= 0 || d <= 0 {
		return false
	}
	c.elapsed += d
	if c.elapsed < c.Every {
		return false
	}
	c.elapsed -= c.Every
	return true
}

func (c *SpeedClock) Reset() { c.elapsed = 0 }
