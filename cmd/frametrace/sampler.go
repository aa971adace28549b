package main

import (
	"fmt"
	"math"
	"math/bits"
	"time"
)

// Sample is the activity of every channel at one sampling attempt, indexed
// by Channel.Ordinal.
type Sample []bool

// RateLimit configures the sampling gate. When Enabled is false every tick
// queries the key source.
type RateLimit struct {
	Enabled             bool
	FrameDuration       time.Duration
	MaxAttemptsPerFrame uint64
}

// validateRateGate rejects gate settings whose product frame×attempts does
// not fit in int64 nanoseconds.
func validateRateGate(frame time.Duration, maxAttempts uint64) error {
	if frame <= 0 {
		return ErrInvalidFrameDuration
	}
	if maxAttempts == 0 {
		return ErrInvalidAttemptsPerFrame
	}
	hi, lo := bits.Mul64(uint64(frame), maxAttempts)
	if hi != 0 || lo > math.MaxInt64 {
		return fmt.Errorf("%w: frame %s x %d attempts", ErrGateOverflow, frame, maxAttempts)
	}
	return nil
}

// Sampler decides per tick whether to query the key source and turns the
// active key set into a Sample.
type Sampler struct {
	source   KeySource
	channels []Channel
	limit    RateLimit
	metrics  *Metrics

	lastAttempt time.Time
	attempted   bool
}

func newSampler(source KeySource, channels []Channel, limit RateLimit, metrics *Metrics, start time.Time) *Sampler {
	return &Sampler{
		source:      source,
		channels:    channels,
		limit:       limit,
		metrics:     metrics,
		lastAttempt: start,
	}
}

// gateOpen reports whether elapsed×maxAttempts ≥ frame. The product is
// computed in 128 bits, so a non-zero high word always opens the gate.
func (s *Sampler) gateOpen(elapsed time.Duration) bool {
	if !s.limit.Enabled {
		return true
	}
	hi, lo := bits.Mul64(uint64(elapsed), s.limit.MaxAttemptsPerFrame)
	return hi != 0 || lo >= uint64(s.limit.FrameDuration)
}

// Attempt samples the key source if the gate allows it at now. It returns
// false when the tick is a no-op.
//
// The first interval is measured from the sampler's start time. Later ticks
// that are not strictly after the previous attempt are ignored, which keeps
// Edge timestamps strictly increasing.
func (s *Sampler) Attempt(now time.Time) (Sample, bool) {
	elapsed := now.Sub(s.lastAttempt)
	if s.attempted && elapsed <= 0 {
		return nil, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if !s.gateOpen(elapsed) {
		return nil, false
	}

	s.metrics.AttemptsSinceLastPoll++
	s.metrics.LastDt = elapsed

	active := s.source.Active()
	sample := make(Sample, len(s.channels))
	for _, ch := range s.channels {
		sample[ch.Ordinal] = active.Has(ch.Key)
	}

	s.lastAttempt = now
	s.attempted = true
	return sample, true
}
