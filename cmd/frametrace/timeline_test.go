package main

import (
	"errors"
	"testing"
)

func TestNewTimeline_ZeroCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		if _, err := NewTimeline(c); !errors.Is(err, ErrZeroCapacity) {
			t.Fatalf("capacity %d: got %v, want ErrZeroCapacity", c, err)
		}
	}
}

func TestTimeline_CapacityAndOrder(t *testing.T) {
	tl, err := NewTimeline(3)
	if err != nil {
		t.Fatalf("NewTimeline: %v", err)
	}
	if _, ok := tl.Front(); ok {
		t.Fatalf("empty timeline has a front")
	}

	for i := 0; i < 5; i++ {
		tl.PushFront(Edge{Timestamp: at(ms(10 * i))})
		if tl.Len() > tl.Cap() {
			t.Fatalf("len %d exceeds capacity %d", tl.Len(), tl.Cap())
		}
	}
	if tl.Len() != 3 || !tl.Full() {
		t.Fatalf("len = %d, want 3 (full)", tl.Len())
	}

	front, _ := tl.Front()
	if !front.Timestamp.Equal(at(ms(40))) {
		t.Fatalf("front = %v, want t=40ms", front.Timestamp)
	}

	var newest []int64
	tl.NewestFirst(func(e Edge) bool {
		newest = append(newest, e.Timestamp.Sub(testEpoch).Milliseconds())
		return true
	})
	if len(newest) != 3 || newest[0] != 40 || newest[1] != 30 || newest[2] != 20 {
		t.Fatalf("newest first = %v, want [40 30 20]", newest)
	}

	var oldest []int64
	tl.OldestFirst(func(e Edge) bool {
		oldest = append(oldest, e.Timestamp.Sub(testEpoch).Milliseconds())
		return len(oldest) < 2
	})
	if len(oldest) != 2 || oldest[0] != 20 || oldest[1] != 30 {
		t.Fatalf("oldest first (stopped early) = %v, want [20 30]", oldest)
	}
}

func TestTimeline_BackfillFront(t *testing.T) {
	tl, _ := NewTimeline(2)
	tl.backfillFront(ms(5)) // no-op on empty

	tl.PushFront(Edge{Timestamp: at(0), DtBefore: ms(1)})
	tl.backfillFront(ms(7))

	front, _ := tl.Front()
	if !front.DtAfterKnown || front.DtAfter != ms(7) {
		t.Fatalf("front after backfill = %+v", front)
	}
}

func TestTimeline_EdgesIsCopy(t *testing.T) {
	tl, _ := NewTimeline(2)
	tl.PushFront(Edge{Timestamp: at(0)})

	edges := tl.Edges()
	edges[0].DtAfter = ms(99)

	front, _ := tl.Front()
	if front.DtAfter != 0 {
		t.Fatalf("Edges() must not alias the timeline")
	}
}
