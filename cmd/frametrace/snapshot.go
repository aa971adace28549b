package main

import "time"

// ChannelInfo is the presentation view of a Channel.
type ChannelInfo struct {
	Key     KeyCode `json:"key"`
	Name    string  `json:"name"`
	Glyph   string  `json:"glyph"`
	Ordinal int     `json:"ordinal"`
}

// HeldSpan pairs a completed Edge with its reconstructed hold.
type HeldSpan struct {
	Edge     Edge         `json:"edge"`
	Estimate HoldEstimate `json:"estimate"`
}

// Snapshot is an immutable copy of the tracker state, safe to hand to other
// goroutines. Edges are newest first; Holds has one entry per Edge that has
// a newer neighbour, also newest first.
type Snapshot struct {
	RunID         string        `json:"run_id"`
	At            time.Time     `json:"at"`
	Channels      []ChannelInfo `json:"channels"`
	FrameDuration time.Duration `json:"frame_duration_ns"`
	Capacity      int           `json:"capacity"`
	Metrics       Metrics       `json:"metrics"`
	Edges         []Edge        `json:"edges"`
	Holds         []HeldSpan    `json:"holds"`
}

// Current returns the most recent Edge of the snapshot.
func (s Snapshot) Current() (Edge, bool) {
	if len(s.Edges) == 0 {
		return Edge{}, false
	}
	return s.Edges[0], true
}

// FrameUncertainty is LastDt expressed in frames.
func (s Snapshot) FrameUncertainty() float64 {
	return s.Metrics.frameUncertainty(s.FrameDuration)
}

// Snapshot copies the tracker state. Hold estimates are derived here, per
// adjacent pair, and never stored on the Edges.
func (t *Tracker) Snapshot(at time.Time) Snapshot {
	edges := t.timeline.Edges()
	snap := Snapshot{
		RunID:         t.runID.String(),
		At:            at,
		Channels:      channelInfos(t.channels),
		FrameDuration: t.frame,
		Capacity:      t.timeline.Cap(),
		Metrics:       t.metrics,
		Edges:         edges,
		Holds:         heldSpans(edges, t.frame),
	}
	return snap
}

// heldSpans walks newest-first edges and estimates every completed hold.
func heldSpans(edges []Edge, frame time.Duration) []HeldSpan {
	if len(edges) < 2 {
		return nil
	}
	spans := make([]HeldSpan, 0, len(edges)-1)
	for i := 1; i < len(edges); i++ {
		est, ok := EstimateHold(edges[i], edges[i-1], frame)
		if !ok {
			continue
		}
		spans = append(spans, HeldSpan{Edge: edges[i], Estimate: est})
	}
	return spans
}

func channelInfos(channels []Channel) []ChannelInfo {
	out := make([]ChannelInfo, len(channels))
	for i, ch := range channels {
		out[i] = ChannelInfo{
			Key:     ch.Key,
			Name:    keyName(ch.Key),
			Glyph:   keyGlyph(ch.Key),
			Ordinal: ch.Ordinal,
		}
	}
	return out
}
