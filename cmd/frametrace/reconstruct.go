package main

import "time"

// HoldEstimate is the reconstructed duration a state was held between two
// adjacent Edges.
//
// The transition into the older state happened somewhere in its DtBefore
// window and the transition out of it somewhere in its DtAfter window, so the
// true hold lies within MinHeld and MinHeld+2*Epsilon. Frames is the centre
// of that band, Uncertainty its half-width, both in frames.
type HoldEstimate struct {
	Raw         time.Duration `json:"raw_ns"`
	MinHeld     time.Duration `json:"min_held_ns"`
	Epsilon     time.Duration `json:"epsilon_ns"`
	Frames      float64       `json:"frames"`
	Uncertainty float64       `json:"uncertainty_frames"`
}

// EstimateHold computes how long older's state was held before newer
// superseded it. It returns false when older is still in progress (its
// DtAfter is unknown), when the Edges are out of order, or when frame is not
// positive.
func EstimateHold(older, newer Edge, frame time.Duration) (HoldEstimate, bool) {
	if !older.DtAfterKnown || frame <= 0 {
		return HoldEstimate{}, false
	}
	raw := newer.Timestamp.Sub(older.Timestamp)
	if raw <= 0 {
		return HoldEstimate{}, false
	}

	minHeld := raw - older.DtAfter
	epsilon := (older.DtAfter + older.DtBefore) / 2

	return HoldEstimate{
		Raw:         raw,
		MinHeld:     minHeld,
		Epsilon:     epsilon,
		Frames:      float64(minHeld+epsilon) / float64(frame),
		Uncertainty: float64(epsilon) / float64(frame),
	}, true
}
