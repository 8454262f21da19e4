package player

import "time"

// Clock is a free-running output clock measured in seconds. Playback start
// times are computed against this timeline, never against wall-clock arrival
// times of individual chunks.
type Clock interface {
	Now() float64
}

type systemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock that starts at zero and advances in real time.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
