package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("frametrace v%s\n", version)
	fmt.Println("Keyboard input timeline with per-frame hold estimates")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  frametrace [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Samples the key state of Linux input devices, records every change of")
	fmt.Println("  the tracked keys and shows how many game frames each input was held,")
	fmt.Println("  with the uncertainty that comes from discrete sampling.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Printf("        Linux input event device; repeat or comma-separate for several (default %q)\n", defaultInputDevice)
	fmt.Println()
	fmt.Println("  -channels string")
	fmt.Println("        Comma-separated keys to track, in display order (e.g. \"left,right,z\")")
	fmt.Println()
	fmt.Println("  -select")
	fmt.Println("        Pick the tracked keys interactively by pressing them (Backspace ends)")
	fmt.Println()
	fmt.Println("  -frame-ms int")
	fmt.Printf("        Frame length of the game in ms (default %d)\n", defaultFrameMS)
	fmt.Println()
	fmt.Println("  -limit")
	fmt.Println("        Limit sampling to -max-attempts-per-frame queries per frame")
	fmt.Println()
	fmt.Println("  -max-attempts-per-frame uint")
	fmt.Printf("        Sampling attempts per frame when -limit is set (default %d)\n", defaultMaxAttemptsPerFrame)
	fmt.Println()
	fmt.Println("  -tick-us int")
	fmt.Printf("        Host tick interval in µs (default %d)\n", defaultTickUS)
	fmt.Println()
	fmt.Println("  -capacity int")
	fmt.Printf("        Number of Edges kept in the timeline (default %d)\n", defaultTimelineCapacity)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -state-ws")
	fmt.Println("        Serve the state websocket")
	fmt.Println()
	fmt.Println("  -state-ws-listen string")
	fmt.Printf("        State websocket listen address (default %q)\n", defaultStateWSListen)
	fmt.Println()
	fmt.Println("  -headless")
	fmt.Println("        Disable the terminal view")
	fmt.Println()
	fmt.Println("  -ui-max-rows int")
	fmt.Printf("        Past holds shown in the terminal view (default %d)\n", defaultUIMaxRows)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-file string")
	fmt.Println("        Write logs to this file (logs are discarded while the terminal view runs otherwise)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUPPORTED KEYS:")
	fmt.Printf("  %s\n", strings.Join(supportedKeyNames(), " "))
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Pick keys interactively on the default keyboard")
	fmt.Println("  frametrace -select")
	fmt.Println()
	fmt.Println("  # Track arrows and Z on a specific device, 60 fps game")
	fmt.Println("  frametrace -input-device /dev/input/event3 -channels left,right,up,down,z -frame-ms 17")
	fmt.Println()
	fmt.Println("  # Headless with the state websocket for an overlay")
	fmt.Println("  frametrace -config ~/.config/frametrace.yaml -headless -state-ws")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - Backspace ends interactive selection and cannot be tracked")
	fmt.Println()
}

// stringList is a repeatable flag that also accepts comma-separated values.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	// Check for version / help early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var devices, channels stringList
	flag.Var(&devices, "input-device", "Linux input event device (repeatable, comma-separated)")
	flag.Var(&channels, "channels", "Comma-separated keys to track")

	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		selectKeys    = flag.Bool("select", false, "Pick tracked keys interactively")
		frameMS       = flag.Int("frame-ms", defaultFrameMS, "Frame length in ms")
		limit         = flag.Bool("limit", false, "Limit sampling attempts per frame")
		maxAttempts   = flag.Uint64("max-attempts-per-frame", defaultMaxAttemptsPerFrame, "Sampling attempts per frame when limited")
		tickUS        = flag.Int("tick-us", defaultTickUS, "Host tick interval in µs")
		capacity      = flag.Int("capacity", defaultTimelineCapacity, "Timeline capacity in Edges")
		ipcSocketPath = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		stateWS       = flag.Bool("state-ws", false, "Serve the state websocket")
		stateWSListen = flag.String("state-ws-listen", defaultStateWSListen, "State websocket listen address")
		headless      = flag.Bool("headless", false, "Disable the terminal view")
		uiMaxRows     = flag.Int("ui-max-rows", defaultUIMaxRows, "Past holds shown in the terminal view")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFile       = flag.String("log-file", "", "Log file path")
		_             = flag.Bool("version", false, "Print version and exit")
		_             = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only flags set explicitly override the config file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var ov FlagOverrides
	ov.InputDevices = devices
	ov.Channels = channels
	if set["frame-ms"] {
		ov.FrameMS = frameMS
	}
	if set["limit"] {
		ov.Limit = limit
	}
	if set["max-attempts-per-frame"] {
		ov.MaxAttemptsPerFrame = maxAttempts
	}
	if set["tick-us"] {
		ov.TickUS = tickUS
	}
	if set["capacity"] {
		ov.Capacity = capacity
	}
	if set["ipc-socket"] {
		ov.IPCSocketPath = ipcSocketPath
	}
	if set["state-ws"] {
		ov.StateWSEnabled = stateWS
	}
	if set["state-ws-listen"] {
		ov.StateWSListen = stateWSListen
	}
	if set["headless"] {
		uiEnabled := !*headless
		ov.UIEnabled = &uiEnabled
	}
	if set["ui-max-rows"] {
		ov.UIMaxRows = uiMaxRows
	}
	if set["log-level"] {
		ov.LogLevel = logLevelStr
	}
	if set["log-file"] {
		ov.LogFile = logFile
	}

	cfg, err := buildConfig(*configPath, ov)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := run(cfg, *selectKeys); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildConfig layers defaults, the optional config file and flag overrides,
// then validates the result.
func buildConfig(path string, ov FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	ov.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveChannels takes the channel list from the config unless interactive
// selection was requested.
func resolveChannels(ctx context.Context, cfg Config, interactive bool, src KeySource, out io.Writer) ([]Channel, error) {
	if !interactive && len(cfg.Channels) > 0 {
		return parseChannels(cfg.Channels)
	}
	if !interactive {
		return nil, fmt.Errorf("%w: set channels in the config, pass -channels, or use -select", ErrNoChannels)
	}
	return selectChannels(ctx, src, out, selectionPollMS*time.Millisecond)
}

func run(cfg Config, interactive bool) error {
	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logOut, closeLog, err := openLogOutput(cfg.Logging, cfg.UI.Enabled)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := setupLogger(logLevel, logOut)

	logger.Debug("starting frametrace", "version", version)

	src, err := openEvdevSource(cfg.Input.Devices, logger)
	if err != nil {
		return fmt.Errorf("%w (run as root or add user to 'input' group)", err)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channels, err := resolveChannels(ctx, cfg, interactive, src, os.Stdout)
	if err != nil {
		return err
	}

	dirty := &dirtyFlag{}
	tracker, err := NewTracker(cfg.ToTrackerConfig(channels), src, dirty, time.Now())
	if err != nil {
		return err
	}
	// Taken before the loop starts, while this goroutine still owns the tracker.
	initial := tracker.Snapshot(time.Now())

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = keyName(ch.Key)
	}
	logger.Info("tracking",
		"run_id", tracker.RunID(),
		"devices", cfg.Input.Devices,
		"channels", names,
		"frame", cfg.FrameDuration(),
		"limit", cfg.Timing.Limit,
		"tick", cfg.TickInterval(),
		"capacity", cfg.Timeline.Capacity,
		"ipc", cfg.IPC.SocketPath,
		"state_ws", cfg.StateWS.Enabled)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan SnapshotRequest, 16)
	pub := &snapshotPublisher{}

	var uiSnapshots <-chan Snapshot
	if cfg.UI.Enabled {
		uiSnapshots = pub.Subscribe()
	}
	var wsSnapshots <-chan Snapshot
	if cfg.StateWS.Enabled {
		wsSnapshots = pub.Subscribe()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSampler(ctx, tracker, dirty, cfg.TickInterval(), requests, pub, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runIPCServer(ctx, cfg.IPC.SocketPath, requests, logger); err != nil {
			errCh <- fmt.Errorf("IPC server: %w", err)
			cancel()
		}
	}()

	if cfg.StateWS.Enabled {
		stateServer := NewStateServer(logger, requests, HubConfig{})
		mux := http.NewServeMux()
		stateServer.Register(mux, cfg.StateWS.Path)

		wg.Add(3)
		go func() {
			defer wg.Done()
			stateServer.Hub().Run(ctx)
		}()
		go func() {
			defer wg.Done()
			RunBroadcaster(ctx, stateServer.Hub(), wsSnapshots, logger)
		}()
		go func() {
			defer wg.Done()
			if err := runHTTPServer(ctx, cfg.StateWS.Listen, mux, logger); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	if cfg.UI.Enabled {
		if err := runUI(ctx, cancel, uiSnapshots, initial, cfg.UI.MaxRows); err != nil {
			errCh <- err
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down")
	cancel()
	wg.Wait()

	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
