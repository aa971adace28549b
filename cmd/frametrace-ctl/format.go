package main

import (
	"fmt"
	"strings"
	"time"
)

// glyphs renders the active channels of e in channel order, blank otherwise.
func glyphs(channels []ChannelInfo, e Edge) string {
	var b strings.Builder
	for _, ch := range channels {
		if ch.Ordinal >= 0 && ch.Ordinal < len(e.State) && e.State[ch.Ordinal] {
			b.WriteString(ch.Glyph)
		} else {
			b.WriteRune('.')
		}
	}
	return b.String()
}

func uncertaintyFrames(m Metrics, frame time.Duration) float64 {
	if frame <= 0 {
		return 0
	}
	return float64(m.LastDt) / float64(frame)
}

// formatSnapshot prints a header, the current state and every completed hold,
// newest first.
func formatSnapshot(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s  frame %s  %d/%d edges\n", s.RunID, s.FrameDuration, len(s.Edges), s.Capacity)
	fmt.Fprintf(&b, "%4d fps +/- %.2ff\n", s.Metrics.LastFPS, uncertaintyFrames(s.Metrics, s.FrameDuration))

	if len(s.Edges) == 0 {
		b.WriteString("no input recorded yet\n")
		return b.String()
	}
	fmt.Fprintf(&b, "now   %s\n", glyphs(s.Channels, s.Edges[0]))
	for _, h := range s.Holds {
		fmt.Fprintf(&b, "held  %s %8.2f f ±%.2f\n", glyphs(s.Channels, h.Edge), h.Estimate.Frames, h.Estimate.Uncertainty)
	}
	return b.String()
}

func formatMetrics(m MetricsReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run_id:       %s\n", m.RunID)
	fmt.Fprintf(&b, "fps:          %d\n", m.Metrics.LastFPS)
	fmt.Fprintf(&b, "last_dt:      %s\n", m.Metrics.LastDt)
	fmt.Fprintf(&b, "uncertainty:  %.2f frames\n", m.Uncertainty)
	fmt.Fprintf(&b, "frame:        %s\n", m.FrameDuration)
	fmt.Fprintf(&b, "edges:        %d\n", m.Edges)
	return b.String()
}

// formatEdgeRecorded is one watch line: time, keys, and the hold it ended.
func formatEdgeRecorded(channels []ChannelInfo, ev EdgeRecorded) string {
	line := fmt.Sprintf("%s %s %4d fps", ev.Edge.Timestamp.Format("15:04:05.000"), glyphs(channels, ev.Edge), ev.Metrics.LastFPS)
	if ev.Hold != nil {
		line += fmt.Sprintf("  prev %s %.2f f ±%.2f", glyphs(channels, ev.Hold.Edge), ev.Hold.Estimate.Frames, ev.Hold.Estimate.Uncertainty)
	}
	return line
}
