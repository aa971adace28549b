package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for frametrace.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. Flags are small overrides on top of the file.
type Config struct {
	// Input devices queried for key state
	Input InputConfig `yaml:"input"`

	// Tracked keys, in display order
	Channels []string `yaml:"channels"`

	// Frame clock and sampling gate
	Timing TimingConfig `yaml:"timing"`

	// Edge history
	Timeline TimelineConfig `yaml:"timeline"`

	// IPC snapshot socket
	IPC IPCConfig `yaml:"ipc"`

	// State websocket
	StateWS StateWSConfig `yaml:"state_ws"`

	// Terminal view
	UI UIConfig `yaml:"ui"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Devices []string `yaml:"devices"`
}

type TimingConfig struct {
	// FrameMS is the target game's frame length in milliseconds. FrameNS,
	// when set, takes precedence for frame lengths that are not whole ms.
	FrameMS int   `yaml:"frame_ms"`
	FrameNS int64 `yaml:"frame_ns,omitempty"`

	// Limit enables the sampling gate: at most MaxAttemptsPerFrame queries
	// per frame. When false every host tick queries the devices.
	Limit               bool   `yaml:"limit"`
	MaxAttemptsPerFrame uint64 `yaml:"max_attempts_per_frame"`

	// TickUS is the host tick interval in microseconds.
	TickUS int `yaml:"tick_us"`
}

type TimelineConfig struct {
	Capacity int `yaml:"capacity"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type UIConfig struct {
	Enabled bool `yaml:"enabled"`
	MaxRows int  `yaml:"max_rows"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Devices: []string{defaultInputDevice},
		},
		Channels: nil,
		Timing: TimingConfig{
			FrameMS:             defaultFrameMS,
			Limit:               false,
			MaxAttemptsPerFrame: defaultMaxAttemptsPerFrame,
			TickUS:              defaultTickUS,
		},
		Timeline: TimelineConfig{
			Capacity: defaultTimelineCapacity,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		StateWS: StateWSConfig{
			Enabled: false,
			Listen:  defaultStateWSListen,
			Path:    defaultStateWSPath,
		},
		UI: UIConfig{
			Enabled: true,
			MaxRows: defaultUIMaxRows,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) and only one document is
// allowed.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document. Decoding into a
	// Node accepts any document, so anything but EOF means there is another one.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values that replace config values. Each override
// is only applied if its pointer is non-nil.
type FlagOverrides struct {
	InputDevices []string
	Channels     []string

	FrameMS             *int
	Limit               *bool
	MaxAttemptsPerFrame *uint64
	TickUS              *int

	Capacity *int

	IPCSocketPath *string

	StateWSEnabled *bool
	StateWSListen  *string

	UIEnabled *bool
	UIMaxRows *int

	LogLevel *string
	LogFile  *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if len(o.InputDevices) > 0 {
		cfg.Input.Devices = append([]string(nil), o.InputDevices...)
	}
	if len(o.Channels) > 0 {
		cfg.Channels = append([]string(nil), o.Channels...)
	}

	if o.FrameMS != nil {
		cfg.Timing.FrameMS = *o.FrameMS
		// An explicit ms flag beats a file-level ns value.
		cfg.Timing.FrameNS = 0
	}
	if o.Limit != nil {
		cfg.Timing.Limit = *o.Limit
	}
	if o.MaxAttemptsPerFrame != nil {
		cfg.Timing.MaxAttemptsPerFrame = *o.MaxAttemptsPerFrame
	}
	if o.TickUS != nil {
		cfg.Timing.TickUS = *o.TickUS
	}

	if o.Capacity != nil {
		cfg.Timeline.Capacity = *o.Capacity
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSListen != nil {
		cfg.StateWS.Listen = *o.StateWSListen
	}

	if o.UIEnabled != nil {
		cfg.UI.Enabled = *o.UIEnabled
	}
	if o.UIMaxRows != nil {
		cfg.UI.MaxRows = *o.UIMaxRows
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Logging.File = *o.LogFile
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Channels are validated separately (see resolveChannels) because they may
// come from interactive selection instead of the file.
func (c *Config) Validate() error {
	if len(c.Input.Devices) == 0 {
		return errors.New("input.devices must not be empty")
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	if c.Timing.FrameNS < 0 {
		return errors.New("timing.frame_ns must be >= 0")
	}
	if c.Timing.FrameNS == 0 && c.Timing.FrameMS <= 0 {
		return fmt.Errorf("timing.frame_ms: %w", ErrInvalidFrameDuration)
	}
	if c.Timing.FrameNS == 0 && int64(c.Timing.FrameMS) > maxFrameMS {
		return fmt.Errorf("timing.frame_ms must be <= %d: %w", maxFrameMS, ErrInvalidFrameDuration)
	}
	if c.Timing.Limit {
		if err := validateRateGate(c.FrameDuration(), c.Timing.MaxAttemptsPerFrame); err != nil {
			return fmt.Errorf("timing: %w", err)
		}
	}
	if c.Timing.TickUS <= 0 || c.Timing.TickUS > 1_000_000 {
		return errors.New("timing.tick_us must be between 1 and 1000000")
	}

	if c.Timeline.Capacity <= 0 {
		return fmt.Errorf("timeline.capacity: %w", ErrZeroCapacity)
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	if c.StateWS.Enabled {
		if c.StateWS.Listen == "" {
			return errors.New("state_ws.enabled is true but state_ws.listen is empty")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
	}

	if c.UI.MaxRows <= 0 {
		return errors.New("ui.max_rows must be > 0")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// maxFrameMS is the largest frame_ms whose duration fits in int64 ns.
const maxFrameMS = math.MaxInt64 / int64(time.Millisecond)

// FrameDuration returns the configured frame length.
func (c *Config) FrameDuration() time.Duration {
	if c.Timing.FrameNS > 0 {
		return time.Duration(c.Timing.FrameNS)
	}
	return time.Duration(c.Timing.FrameMS) * time.Millisecond
}

// TickInterval returns the host tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timing.TickUS) * time.Microsecond
}

// ToTrackerConfig converts file config plus resolved channels into the
// engine config.
func (c *Config) ToTrackerConfig(channels []Channel) TrackerConfig {
	cfg := TrackerConfig{
		Channels:      channels,
		FrameDuration: c.FrameDuration(),
		Limit:         c.Timing.Limit,
		Capacity:      c.Timeline.Capacity,
	}
	if c.Timing.Limit {
		cfg.MaxAttemptsPerFrame = c.Timing.MaxAttemptsPerFrame
	}
	return cfg
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
