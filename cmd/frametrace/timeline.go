package main

import (
	"time"

	"github.com/gammazero/deque"
)

// Edge is a retained Sample: the state observed at one sampling attempt that
// differed from the state before it.
//
// DtBefore is the sampling interval that ended at Timestamp; the transition
// happened somewhere inside it. DtAfter is the interval that ended when the
// next Edge was detected. It is unknown (DtAfterKnown == false) until that
// Edge exists, and it always equals the next Edge's DtBefore.
//
// State is shared with snapshots and must not be modified.
type Edge struct {
	Timestamp    time.Time     `json:"timestamp"`
	State        []bool        `json:"state"`
	DtBefore     time.Duration `json:"dt_before_ns"`
	DtAfter      time.Duration `json:"dt_after_ns"`
	DtAfterKnown bool          `json:"dt_after_known"`
}

// Active reports whether channel i was active in this Edge.
func (e Edge) Active(i int) bool {
	return i >= 0 && i < len(e.State) && e.State[i]
}

// Timeline is the bounded history of Edges, newest at the front.
// Insertion order and timestamp order coincide, so eviction from the back
// always drops the oldest Edge.
type Timeline struct {
	edges    deque.Deque[Edge]
	capacity int
}

// NewTimeline returns an empty timeline holding at most capacity Edges.
func NewTimeline(capacity int) (*Timeline, error) {
	if capacity <= 0 {
		return nil, ErrZeroCapacity
	}
	return &Timeline{capacity: capacity}, nil
}

// Len returns the number of Edges held.
func (t *Timeline) Len() int { return t.edges.Len() }

// Cap returns the capacity.
func (t *Timeline) Cap() int { return t.capacity }

// Full reports whether the next push will evict.
func (t *Timeline) Full() bool { return t.edges.Len() >= t.capacity }

// Front returns the most recent Edge.
func (t *Timeline) Front() (Edge, bool) {
	if t.edges.Len() == 0 {
		return Edge{}, false
	}
	return t.edges.Front(), true
}

// PushFront adds e as the most recent Edge, evicting the oldest one first if
// the timeline is full.
func (t *Timeline) PushFront(e Edge) {
	if t.Full() {
		t.PopBack()
	}
	t.edges.PushFront(e)
}

// PopBack removes and returns the oldest Edge.
func (t *Timeline) PopBack() (Edge, bool) {
	if t.edges.Len() == 0 {
		return Edge{}, false
	}
	return t.edges.PopBack(), true
}

// backfillFront sets DtAfter on the current front Edge.
func (t *Timeline) backfillFront(dt time.Duration) {
	if t.edges.Len() == 0 {
		return
	}
	front := t.edges.Front()
	front.DtAfter = dt
	front.DtAfterKnown = true
	t.edges.Set(0, front)
}

// NewestFirst calls fn for each Edge from newest to oldest until fn returns false.
func (t *Timeline) NewestFirst(fn func(Edge) bool) {
	for i := 0; i < t.edges.Len(); i++ {
		if !fn(t.edges.At(i)) {
			return
		}
	}
}

// OldestFirst calls fn for each Edge from oldest to newest until fn returns false.
func (t *Timeline) OldestFirst(fn func(Edge) bool) {
	for i := t.edges.Len() - 1; i >= 0; i-- {
		if !fn(t.edges.At(i)) {
			return
		}
	}
}

// Edges returns a copy of the Edges, newest first.
func (t *Timeline) Edges() []Edge {
	out := make([]Edge, 0, t.edges.Len())
	t.NewestFirst(func(e Edge) bool {
		out = append(out, e)
		return true
	})
	return out
}
