package main

import (
	"slices"
	"time"
)

// Notifier is told once per newly retained Edge. It is a capability of the
// host (redraw, broadcast); repeated identical samples never notify.
type Notifier interface {
	NotifyChanged()
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func()

func (f NotifierFunc) NotifyChanged() {
	if f != nil {
		f()
	}
}

// Recorder retains a Sample as an Edge when it differs from the most recent
// Edge. Recording is change-triggered: a long hold costs one Edge.
type Recorder struct {
	timeline *Timeline
	metrics  *Metrics
	notify   Notifier
}

func newRecorder(timeline *Timeline, metrics *Metrics, notify Notifier) *Recorder {
	return &Recorder{timeline: timeline, metrics: metrics, notify: notify}
}

// Observe records sample taken at now if it is the first sample or differs
// from the front Edge. It reports whether an Edge was pushed.
func (r *Recorder) Observe(sample Sample, now time.Time) bool {
	front, hasFront := r.timeline.Front()
	if hasFront && slices.Equal(front.State, sample) {
		return false
	}

	if hasFront {
		r.metrics.LastFPS = attemptRate(r.metrics.AttemptsSinceLastPoll, now.Sub(front.Timestamp))
	} else {
		r.metrics.LastFPS = 0
	}
	r.metrics.AttemptsSinceLastPoll = 0

	if r.timeline.Full() {
		r.timeline.PopBack()
	}

	dt := r.metrics.LastDt
	edge := Edge{
		Timestamp: now,
		State:     slices.Clone(sample),
		DtBefore:  dt,
	}
	// Both sides of the same sampling interval.
	r.timeline.backfillFront(dt)
	r.timeline.PushFront(edge)

	if r.notify != nil {
		r.notify.NotifyChanged()
	}
	return true
}
