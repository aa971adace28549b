package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Configuration errors. All of them are fatal at startup.
var (
	ErrNoChannels              = errors.New("no channels to track")
	ErrZeroCapacity            = errors.New("timeline capacity must be > 0")
	ErrInvalidFrameDuration    = errors.New("frame duration must be > 0")
	ErrInvalidAttemptsPerFrame = errors.New("max attempts per frame must be > 0")
	ErrGateOverflow            = errors.New("rate gate arithmetic overflows")
	ErrDuplicateChannel        = errors.New("duplicate channel")
)

// UnsupportedKeyError is returned for keys that have no display form.
type UnsupportedKeyError struct {
	Key KeyCode
}

func (e UnsupportedKeyError) Error() string {
	return fmt.Sprintf("key %s (%d) is not supported", keyName(e.Key), e.Key)
}

// Channel is one tracked key. Ordinal is its index in every Sample and its
// display position.
type Channel struct {
	Key     KeyCode
	Ordinal int
}

// newChannels assigns ordinals in the given order. Keys without a glyph and
// repeated keys are rejected.
func newChannels(keys []KeyCode) ([]Channel, error) {
	if len(keys) == 0 {
		return nil, ErrNoChannels
	}
	seen := make(map[KeyCode]bool, len(keys))
	channels := make([]Channel, 0, len(keys))
	for i, k := range keys {
		if keyGlyph(k) == "" {
			return nil, UnsupportedKeyError{Key: k}
		}
		if seen[k] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, keyName(k))
		}
		seen[k] = true
		channels = append(channels, Channel{Key: k, Ordinal: i})
	}
	return channels, nil
}

// parseChannels resolves configured key names into channels.
func parseChannels(names []string) ([]Channel, error) {
	keys := make([]KeyCode, 0, len(names))
	for i, name := range names {
		k, err := parseKeyName(name)
		if err != nil {
			return nil, fmt.Errorf("channels[%d]: %w", i, err)
		}
		keys = append(keys, k)
	}
	return newChannels(keys)
}

// selectionFinishKey ends interactive selection. It can never be tracked.
const selectionFinishKey = KEY_BACKSPACE

// selectChannels lets the user build the channel list by pressing keys.
//
// It first waits until every key is released (the Enter that launched the
// program is usually still down), then adds each newly pressed supported key
// until Backspace is pressed. Unsupported keys are reported once.
func selectChannels(ctx context.Context, src KeySource, out io.Writer, poll time.Duration) ([]Channel, error) {
	if poll <= 0 {
		poll = time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	wait := func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			return nil
		}
	}

	for {
		active := src.Active()
		if active.Empty() {
			break
		}
		if err := wait(); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(out, "Please press all the keys you would like to track, then press Backspace to end customization.")

	var keys []KeyCode
	tracked := map[KeyCode]bool{}
	rejected := map[KeyCode]bool{}

	for {
		active := src.Active()
		done := false
		for _, k := range active.Keys() {
			switch {
			case k == selectionFinishKey:
				done = true
			case tracked[k] || rejected[k]:
			case keyGlyph(k) == "":
				rejected[k] = true
				fmt.Fprintf(out, "%s not supported (yet). Sorry!\n", keyName(k))
			default:
				tracked[k] = true
				keys = append(keys, k)
				fmt.Fprintf(out, "Tracking %s\n", keyName(k))
			}
		}
		if done {
			break
		}
		if err := wait(); err != nil {
			return nil, err
		}
	}

	fmt.Fprintf(out, "%d keys recorded.\n", len(keys))
	return newChannels(keys)
}
