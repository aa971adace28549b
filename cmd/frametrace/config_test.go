package main

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frametrace.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.FrameDuration() != 34*time.Millisecond {
		t.Fatalf("default frame = %v", cfg.FrameDuration())
	}
	if cfg.TickInterval() != 500*time.Microsecond {
		t.Fatalf("default tick = %v", cfg.TickInterval())
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  devices: ["/dev/input/event3", "/dev/input/event7"]
channels: [left, right, z]
timing:
  frame_ns: 16666667
  limit: true
  max_attempts_per_frame: 50
timeline:
  capacity: 64
state_ws:
  enabled: true
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(cfg.Input.Devices) != 2 || cfg.Input.Devices[1] != "/dev/input/event7" {
		t.Fatalf("devices = %v", cfg.Input.Devices)
	}
	if cfg.FrameDuration() != 16666667*time.Nanosecond {
		t.Fatalf("frame = %v", cfg.FrameDuration())
	}
	if cfg.Timeline.Capacity != 64 {
		t.Fatalf("capacity = %d", cfg.Timeline.Capacity)
	}
	// Untouched sections keep their defaults.
	if cfg.StateWS.Listen != defaultStateWSListen || cfg.StateWS.Path != defaultStateWSPath {
		t.Fatalf("state_ws defaults lost: %+v", cfg.StateWS)
	}
	if cfg.Timing.TickUS != defaultTickUS || cfg.UI.MaxRows != defaultUIMaxRows {
		t.Fatalf("defaults lost: %+v %+v", cfg.Timing, cfg.UI)
	}

	channels, err := parseChannels(cfg.Channels)
	if err != nil {
		t.Fatalf("parseChannels: %v", err)
	}
	tc := cfg.ToTrackerConfig(channels)
	if !tc.Limit || tc.MaxAttemptsPerFrame != 50 || tc.Capacity != 64 {
		t.Fatalf("tracker config = %+v", tc)
	}
	if err := tc.Validate(); err != nil {
		t.Fatalf("tracker config invalid: %v", err)
	}
}

func TestLoadConfigFile_RejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "timing:\n  frame_msx: 17\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "channels: [a]\n---\nchannels: [b]\n")
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("got %v, want trailing document error", err)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timing.FrameNS = 16666667

	frame := 17
	limit := true
	ui := false
	level := "debug"
	FlagOverrides{
		InputDevices: []string{"/dev/input/event9"},
		Channels:     []string{"up"},
		FrameMS:      &frame,
		Limit:        &limit,
		UIEnabled:    &ui,
		LogLevel:     &level,
	}.Apply(&cfg)

	if cfg.Input.Devices[0] != "/dev/input/event9" || cfg.Channels[0] != "up" {
		t.Fatalf("slices not applied: %+v %+v", cfg.Input, cfg.Channels)
	}
	if cfg.FrameDuration() != 17*time.Millisecond {
		t.Fatalf("frame-ms override must win over frame_ns, got %v", cfg.FrameDuration())
	}
	if !cfg.Timing.Limit || cfg.UI.Enabled || cfg.Logging.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Timeline.Capacity != defaultTimelineCapacity {
		t.Fatalf("unset override changed capacity")
	}

	FlagOverrides{}.Apply(nil) // must not panic
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no devices", func(c *Config) { c.Input.Devices = nil }, nil},
		{"zero frame", func(c *Config) { c.Timing.FrameMS = 0 }, ErrInvalidFrameDuration},
		{"frame ms overflows", func(c *Config) { c.Timing.FrameMS = math.MaxInt }, ErrInvalidFrameDuration},
		{"zero capacity", func(c *Config) { c.Timeline.Capacity = 0 }, ErrZeroCapacity},
		{"limited zero attempts", func(c *Config) {
			c.Timing.Limit = true
			c.Timing.MaxAttemptsPerFrame = 0
		}, ErrInvalidAttemptsPerFrame},
		{"gate overflow", func(c *Config) {
			c.Timing.Limit = true
			c.Timing.FrameNS = 1 << 62
			c.Timing.MaxAttemptsPerFrame = 4
		}, ErrGateOverflow},
		{"tick too large", func(c *Config) { c.Timing.TickUS = 2_000_000 }, nil},
		{"ws path", func(c *Config) {
			c.StateWS.Enabled = true
			c.StateWS.Path = "ws"
		}, nil},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, nil},
		{"max rows", func(c *Config) { c.UI.MaxRows = 0 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_LargestFrameMS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timing.FrameMS = int(maxFrameMS)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d := cfg.FrameDuration(); d <= 0 || int64(d) != maxFrameMS*int64(time.Millisecond) {
		t.Fatalf("FrameDuration = %d", d)
	}
}

func TestConfig_UnlimitedIgnoresAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timing.MaxAttemptsPerFrame = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("attempts must not matter without limit: %v", err)
	}
	tc := cfg.ToTrackerConfig(testChannels(t, KEY_A))
	if tc.MaxAttemptsPerFrame != 0 || tc.Limit {
		t.Fatalf("tracker config = %+v", tc)
	}
	if err := tc.Validate(); err != nil {
		t.Fatalf("tracker config invalid: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x.yaml"); got != filepath.Join(home, "x.yaml") {
		t.Fatalf("ExpandPath(~/x.yaml) = %q", got)
	}
	if got := ExpandPath("/etc/x"); got != "/etc/x" {
		t.Fatalf("absolute path changed: %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Fatalf("~user must be left alone: %q", got)
	}
}

func TestBuildConfig_FlagsOverFile(t *testing.T) {
	path := writeConfig(t, "timeline:\n  capacity: 8\nchannels: [a]\n")
	capacity := 12
	cfg, err := buildConfig(path, FlagOverrides{Capacity: &capacity})
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if cfg.Timeline.Capacity != 12 || cfg.Channels[0] != "a" {
		t.Fatalf("cfg = %+v", cfg)
	}

	zero := 0
	if _, err := buildConfig(path, FlagOverrides{Capacity: &zero}); !errors.Is(err, ErrZeroCapacity) {
		t.Fatalf("got %v, want ErrZeroCapacity", err)
	}
}

func TestResolveChannels(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := resolveChannels(t.Context(), cfg, false, newScriptedSource(), nil); !errors.Is(err, ErrNoChannels) {
		t.Fatalf("got %v, want ErrNoChannels", err)
	}

	cfg.Channels = []string{"left", "right"}
	chs, err := resolveChannels(t.Context(), cfg, false, newScriptedSource(), nil)
	if err != nil || len(chs) != 2 {
		t.Fatalf("resolveChannels = %v, %v", chs, err)
	}
}
