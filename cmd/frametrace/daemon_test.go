package main

import (
	"context"
	"testing"
	"time"
)

func TestSnapshotPublisher_LatestWins(t *testing.T) {
	var pub snapshotPublisher
	ch := pub.Subscribe()

	pub.publish(Snapshot{RunID: "1"})
	pub.publish(Snapshot{RunID: "2"})
	pub.publish(Snapshot{RunID: "3"})

	select {
	case s := <-ch:
		if s.RunID != "3" {
			t.Fatalf("got snapshot %q, want the latest (3)", s.RunID)
		}
	default:
		t.Fatalf("no snapshot delivered")
	}
	select {
	case s := <-ch:
		t.Fatalf("unexpected extra snapshot %q", s.RunID)
	default:
	}

	pub.close()
	if _, ok := <-ch; ok {
		t.Fatalf("subscriber channel not closed")
	}
}

func TestDirtyFlag(t *testing.T) {
	var d dirtyFlag
	if d.take() {
		t.Fatalf("fresh flag is dirty")
	}
	d.NotifyChanged()
	d.NotifyChanged()
	if !d.take() {
		t.Fatalf("flag not set after notify")
	}
	if d.take() {
		t.Fatalf("take must clear the flag")
	}
}

func startTestSampler(t *testing.T, src KeySource) (chan SnapshotRequest, <-chan Snapshot, context.CancelFunc, chan struct{}) {
	t.Helper()
	dirty := &dirtyFlag{}
	tr, err := NewTracker(TrackerConfig{
		Channels:      testChannels(t, KEY_LEFT, KEY_RIGHT),
		FrameDuration: 34 * time.Millisecond,
		Capacity:      8,
	}, src, dirty, time.Now())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	requests := make(chan SnapshotRequest, 4)
	pub := &snapshotPublisher{}
	snaps := pub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSampler(ctx, tr, dirty, time.Millisecond, requests, pub, testLogger())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return requests, snaps, cancel, done
}

// nextSnapshot waits for a published snapshot matching cond.
func nextSnapshot(t *testing.T, snaps <-chan Snapshot, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-snaps:
			if !ok {
				t.Fatalf("snapshot channel closed")
			}
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timeout waiting for snapshot")
		}
	}
}

func TestRunSampler_PublishesOnEdge(t *testing.T) {
	src := &heldSource{}
	_, snaps, _, _ := startTestSampler(t, src)

	first := nextSnapshot(t, snaps, func(s Snapshot) bool { return len(s.Edges) >= 1 })
	if cur, _ := first.Current(); cur.Active(0) || cur.Active(1) {
		t.Fatalf("first Edge should be idle, got %v", cur.State)
	}

	src.Set(KEY_RIGHT)
	s := nextSnapshot(t, snaps, func(s Snapshot) bool {
		cur, _ := s.Current()
		return cur.Active(1)
	})
	if len(s.Holds) < 1 {
		t.Fatalf("expected a completed hold after the second Edge")
	}

	// Holding the same key publishes nothing new.
	time.Sleep(20 * time.Millisecond)
	select {
	case extra := <-snaps:
		t.Fatalf("unexpected snapshot while state is unchanged: %d edges", len(extra.Edges))
	default:
	}
}

func TestRunSampler_AnswersSnapshotRequests(t *testing.T) {
	requests, _, _, _ := startTestSampler(t, &heldSource{})

	snap, err := requestSnapshot(context.Background(), requests, time.Second)
	if err != nil {
		t.Fatalf("requestSnapshot: %v", err)
	}
	if snap.RunID == "" || len(snap.Channels) != 2 || snap.Capacity != 8 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRunSampler_ClosesSubscribersOnCancel(t *testing.T) {
	_, snaps, cancel, done := startTestSampler(t, &heldSource{})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sampler did not stop")
	}
	for range snaps {
		// drain the possibly buffered snapshot
	}
}

func TestRequestSnapshot_Timeout(t *testing.T) {
	requests := make(chan SnapshotRequest) // nobody serves it
	start := time.Now()
	if _, err := requestSnapshot(context.Background(), requests, 20*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("requestSnapshot did not honor its timeout")
	}
}
