package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrackerConfig is the startup configuration of the sampling engine.
type TrackerConfig struct {
	Channels      []Channel
	FrameDuration time.Duration

	// Limit enables the rate gate; MaxAttemptsPerFrame is ignored otherwise
	// but must still be valid if set.
	Limit               bool
	MaxAttemptsPerFrame uint64

	Capacity int
}

// Validate checks every invariant the engine relies on.
func (c TrackerConfig) Validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	for i, ch := range c.Channels {
		if ch.Ordinal != i {
			return fmt.Errorf("channel %s has ordinal %d, want %d", keyName(ch.Key), ch.Ordinal, i)
		}
	}
	if c.Capacity <= 0 {
		return ErrZeroCapacity
	}
	if c.FrameDuration <= 0 {
		return ErrInvalidFrameDuration
	}
	if c.Limit || c.MaxAttemptsPerFrame != 0 {
		if err := validateRateGate(c.FrameDuration, c.MaxAttemptsPerFrame); err != nil {
			return err
		}
	}
	return nil
}

// Tracker is the owned context of one run: Sampler, Recorder, Timeline and
// Metrics. It is not safe for concurrent use; one goroutine calls Tick and
// hands Snapshots to everyone else.
type Tracker struct {
	runID    uuid.UUID
	started  time.Time
	channels []Channel
	frame    time.Duration

	metrics  Metrics
	timeline *Timeline
	sampler  *Sampler
	recorder *Recorder
}

// NewTracker validates cfg and builds a tracker whose first sampling
// interval starts at start. notify may be nil.
func NewTracker(cfg TrackerConfig, source KeySource, notify Notifier, start time.Time) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("invalid tracker config: nil key source")
	}
	timeline, err := NewTimeline(cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}

	t := &Tracker{
		runID:    uuid.New(),
		started:  start,
		channels: append([]Channel(nil), cfg.Channels...),
		frame:    cfg.FrameDuration,
		timeline: timeline,
	}
	limit := RateLimit{
		Enabled:             cfg.Limit,
		FrameDuration:       cfg.FrameDuration,
		MaxAttemptsPerFrame: cfg.MaxAttemptsPerFrame,
	}
	t.sampler = newSampler(source, t.channels, limit, &t.metrics, start)
	t.recorder = newRecorder(timeline, &t.metrics, notify)
	return t, nil
}

// Tick drives one host tick: gate, sample, maybe record. It reports whether
// a new Edge was retained.
func (t *Tracker) Tick(now time.Time) bool {
	sample, ok := t.sampler.Attempt(now)
	if !ok {
		return false
	}
	return t.recorder.Observe(sample, now)
}

func (t *Tracker) RunID() uuid.UUID             { return t.runID }
func (t *Tracker) Channels() []Channel          { return t.channels }
func (t *Tracker) FrameDuration() time.Duration { return t.frame }
func (t *Tracker) Metrics() Metrics             { return t.metrics }
func (t *Tracker) LastFPS() int64               { return t.metrics.LastFPS }
func (t *Tracker) LastDt() time.Duration        { return t.metrics.LastDt }
func (t *Tracker) Front() (Edge, bool)          { return t.timeline.Front() }
func (t *Tracker) Len() int                     { return t.timeline.Len() }

// NewestFirst iterates the timeline from newest to oldest.
func (t *Tracker) NewestFirst(fn func(Edge) bool) { t.timeline.NewestFirst(fn) }

// OldestFirst iterates the timeline from oldest to newest.
func (t *Tracker) OldestFirst(fn func(Edge) bool) { t.timeline.OldestFirst(fn) }
