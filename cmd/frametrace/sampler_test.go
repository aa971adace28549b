package main

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"
)

func testChannels(t *testing.T, keys ...KeyCode) []Channel {
	t.Helper()
	chs, err := newChannels(keys)
	if err != nil {
		t.Fatalf("newChannels: %v", err)
	}
	return chs
}

func TestValidateRateGate(t *testing.T) {
	tests := []struct {
		name    string
		frame   time.Duration
		max     uint64
		wantErr error
	}{
		{"ok", 34 * time.Millisecond, 20, nil},
		{"zero frame", 0, 20, ErrInvalidFrameDuration},
		{"negative frame", -time.Millisecond, 20, ErrInvalidFrameDuration},
		{"zero attempts", 34 * time.Millisecond, 0, ErrInvalidAttemptsPerFrame},
		{"product above int64", time.Duration(math.MaxInt64), 2, ErrGateOverflow},
		{"product above uint64", time.Hour, math.MaxUint64, ErrGateOverflow},
		{"product at int64 max", time.Duration(math.MaxInt64), 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRateGate(tt.frame, tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSampler_UnlimitedSamplesEveryTick(t *testing.T) {
	src := newScriptedSource(NewKeySet(KEY_Z), NewKeySet(KEY_LEFT, KEY_Z))
	var m Metrics
	s := newSampler(src, testChannels(t, KEY_LEFT, KEY_Z), RateLimit{}, &m, at(0))

	sample, ok := s.Attempt(at(0))
	if !ok {
		t.Fatalf("first attempt at start time must sample")
	}
	if !slices.Equal(sample, Sample{false, true}) {
		t.Fatalf("sample = %v, want [false true]", sample)
	}
	if m.LastDt != 0 || m.AttemptsSinceLastPoll != 1 {
		t.Fatalf("metrics after first attempt = %+v", m)
	}

	sample, ok = s.Attempt(at(ms(3)))
	if !ok || !slices.Equal(sample, Sample{true, true}) {
		t.Fatalf("second attempt = %v, %v", sample, ok)
	}
	if m.LastDt != ms(3) || m.AttemptsSinceLastPoll != 2 {
		t.Fatalf("metrics after second attempt = %+v", m)
	}
}

func TestSampler_IgnoresNonIncreasingTicks(t *testing.T) {
	src := newScriptedSource(NewKeySet())
	var m Metrics
	s := newSampler(src, testChannels(t, KEY_A), RateLimit{}, &m, at(0))

	if _, ok := s.Attempt(at(ms(5))); !ok {
		t.Fatalf("expected sample")
	}
	if _, ok := s.Attempt(at(ms(5))); ok {
		t.Fatalf("repeated timestamp must be ignored")
	}
	if _, ok := s.Attempt(at(ms(4))); ok {
		t.Fatalf("earlier timestamp must be ignored")
	}
	if src.Calls() != 1 {
		t.Fatalf("source queried %d times, want 1", src.Calls())
	}
	if m.AttemptsSinceLastPoll != 1 || m.LastDt != ms(5) {
		t.Fatalf("ignored ticks changed metrics: %+v", m)
	}
}

func TestSampler_ClockBeforeStart(t *testing.T) {
	var m Metrics
	s := newSampler(newScriptedSource(), testChannels(t, KEY_A), RateLimit{}, &m, at(ms(10)))

	if _, ok := s.Attempt(at(ms(9))); !ok {
		t.Fatalf("first attempt must sample")
	}
	if m.LastDt != 0 {
		t.Fatalf("LastDt = %v, want 0 for a clock behind start", m.LastDt)
	}
}

func TestSampler_RateGate(t *testing.T) {
	limit := RateLimit{Enabled: true, FrameDuration: 34 * time.Millisecond, MaxAttemptsPerFrame: 20}
	src := newScriptedSource()
	var m Metrics
	s := newSampler(src, testChannels(t, KEY_A), limit, &m, at(0))

	// 34ms / 20 = 1.7ms minimum spacing.
	if _, ok := s.Attempt(at(ms(1))); ok {
		t.Fatalf("gate should be closed at 1ms")
	}
	if _, ok := s.Attempt(at(1700 * time.Microsecond)); !ok {
		t.Fatalf("gate should open at exactly 1.7ms")
	}
	if _, ok := s.Attempt(at(3 * time.Millisecond)); ok {
		t.Fatalf("gate should be closed 1.3ms after the last attempt")
	}
	if _, ok := s.Attempt(at(4 * time.Millisecond)); !ok {
		t.Fatalf("gate should open 2.3ms after the last attempt")
	}
	if src.Calls() != 2 {
		t.Fatalf("source queried %d times, want 2", src.Calls())
	}
	if m.LastDt != 2300*time.Microsecond {
		t.Fatalf("LastDt = %v, want 2.3ms", m.LastDt)
	}
}

func TestSampler_RateGateHighWordOpens(t *testing.T) {
	limit := RateLimit{Enabled: true, FrameDuration: time.Duration(math.MaxInt64), MaxAttemptsPerFrame: math.MaxUint64}
	var m Metrics
	s := newSampler(newScriptedSource(), testChannels(t, KEY_A), limit, &m, at(0))

	// 2 × MaxUint64 does not fit in 64 bits; the gate must open, not wrap.
	if _, ok := s.Attempt(at(2)); !ok {
		t.Fatalf("gate should open when the product overflows 64 bits")
	}
}
