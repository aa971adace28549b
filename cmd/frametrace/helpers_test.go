package main

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// scriptedSource returns the scripted key sets in order, then repeats the
// last one. It is safe for concurrent use.
type scriptedSource struct {
	mu    sync.Mutex
	sets  []KeySet
	calls int
}

func newScriptedSource(sets ...KeySet) *scriptedSource {
	return &scriptedSource{sets: sets}
}

func (s *scriptedSource) Active() KeySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.sets) == 0 {
		return KeySet{}
	}
	i := s.calls - 1
	if i >= len(s.sets) {
		i = len(s.sets) - 1
	}
	return s.sets[i]
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// heldSource reports whatever keys are currently set on it.
type heldSource struct {
	mu   sync.Mutex
	keys KeySet
}

func (s *heldSource) Active() KeySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

func (s *heldSource) Set(keys ...KeyCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = NewKeySet(keys...)
}

// countingNotifier counts NotifyChanged calls.
type countingNotifier struct{ n int }

func (c *countingNotifier) NotifyChanged() { c.n++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return testEpoch.Add(d) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
