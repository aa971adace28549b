package main

import (
	"math"
	"time"
)

// Metrics is the run-wide sampling throughput, owned by the Tracker.
type Metrics struct {
	// LastFPS is attempts per second between the two most recent Edges,
	// rounded to the nearest integer. Zero until the second Edge.
	LastFPS int64 `json:"last_fps"`

	// LastDt is the most recent raw interval between sampling attempts.
	LastDt time.Duration `json:"last_dt_ns"`

	// AttemptsSinceLastPoll counts attempts since the last retained Edge.
	AttemptsSinceLastPoll int `json:"attempts_since_last_poll"`
}

// attemptRate returns attempts/elapsed in Hz, rounded. A non-positive
// elapsed yields 0.
func attemptRate(attempts int, elapsed time.Duration) int64 {
	if elapsed <= 0 || attempts <= 0 {
		return 0
	}
	return int64(math.Round(float64(attempts) / elapsed.Seconds()))
}

// frameUncertainty expresses the last sampling interval in frames; it is the
// "+/-" shown next to the fps counter.
func (m Metrics) frameUncertainty(frame time.Duration) float64 {
	if frame <= 0 {
		return 0
	}
	return float64(m.LastDt) / float64(frame)
}
