package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Sampling Loop - the single owner of the Tracker
// ============================================================================
//
// The loop is the only goroutine that touches the Tracker:
//   - every host tick drives Tracker.Tick(now)
//   - a retained Edge marks the run dirty (Notifier) and a Snapshot is
//     published once, after the tick
//   - other goroutines ask for state through snapshot requests and get an
//     immutable copy back on a reply channel
//
// ============================================================================

// SnapshotRequest asks the sampling loop for a copy of the current state.
// Reply must be buffered; the loop never blocks on it.
type SnapshotRequest struct {
	Reply chan<- Snapshot
}

// snapshotPublisher fans freshly built snapshots out to subscribers. Each
// subscriber channel holds at most one pending snapshot; an undelivered one
// is replaced by the newer one so a slow subscriber never stalls sampling.
type snapshotPublisher struct {
	subs []chan Snapshot
}

// Subscribe returns a channel that receives the latest snapshot after every
// retained Edge. It must be called before the loop starts.
func (p *snapshotPublisher) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	p.subs = append(p.subs, ch)
	return ch
}

func (p *snapshotPublisher) publish(s Snapshot) {
	for _, ch := range p.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Latest wins.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (p *snapshotPublisher) close() {
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}

// dirtyFlag is the Notifier the sampling loop hands to its Tracker.
type dirtyFlag struct {
	set bool
}

func (d *dirtyFlag) NotifyChanged() { d.set = true }

// take reports whether a notification arrived since the last call.
func (d *dirtyFlag) take() bool {
	v := d.set
	d.set = false
	return v
}

// runSampler drives tracker at tickInterval until ctx is canceled. dirty
// must be the Notifier the tracker was built with.
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Closes every subscriber channel on exit
func runSampler(
	ctx context.Context,
	tracker *Tracker,
	dirty *dirtyFlag,
	tickInterval time.Duration,
	requests <-chan SnapshotRequest,
	pub *snapshotPublisher,
	logger *slog.Logger,
) {
	defer pub.close()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	logger.Debug("sampler starting", "tick", tickInterval, "run_id", tracker.RunID())

	for {
		select {
		case <-ctx.Done():
			logger.Info("sampler stopping (context canceled)", "edges", tracker.Len())
			return

		case req := <-requests:
			if req.Reply == nil {
				logger.Warn("snapshot requested with nil reply channel")
				continue
			}
			select {
			case req.Reply <- tracker.Snapshot(time.Now()):
			default:
				logger.Warn("snapshot reply channel not ready; dropping snapshot")
			}

		case <-ticker.C:
			// The tick time held by the ticker can lag; sample the clock here
			// so every attempt timestamp is the moment of the query.
			now := time.Now()
			tracker.Tick(now)
			if dirty.take() {
				pub.publish(tracker.Snapshot(now))
				m := tracker.Metrics()
				logger.Debug("edge recorded", "edges", tracker.Len(), "fps", m.LastFPS, "dt", m.LastDt)
			}
		}
	}
}
