package main

// Defaults
const (
	defaultInputDevice = "/dev/input/event0"

	// 1 frame in VVVVVV is 34ms; adapt this for other games.
	defaultFrameMS = 34

	// How many sampling attempts may happen per frame when the gate is on.
	// Raising it costs CPU.
	defaultMaxAttemptsPerFrame = 20

	defaultTickUS = 500 // host tick interval (µs)

	// How many Edges to keep.
	defaultTimelineCapacity = 20

	defaultIPCSocket     = "/tmp/frametrace.sock"
	defaultStateWSListen = "127.0.0.1:3034"
	defaultStateWSPath   = "/ws/state"

	defaultUIMaxRows = 36

	// Interactive selection polls faster than any human can tap.
	selectionPollMS = 1

	// How long an IPC handler waits for the sampling loop to answer.
	ipcSnapshotTimeoutMS = 500
)
