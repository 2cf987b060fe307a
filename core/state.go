package core

// State is the lifecycle state of the core. The hardware-context
// sub-state (ContextLost) is tracked separately because it is orthogonal
// to content lifecycle.
type State int

const (
	// StateUninitialized is the state before Init and after Deinit.
	StateUninitialized State = iota

	// StateInitialized means the host environment is attached and the
	// background task runner is live. No engine exists. Unloading a game
	// returns here.
	StateInitialized

	// StateGameLoaded means exactly one engine instance is alive.
	StateGameLoaded

	// StateRunning is GameLoaded after the first frame has executed.
	StateRunning
)

// String returns the display name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateGameLoaded:
		return "GameLoaded"
	case StateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// hasEngine reports whether the state implies a live engine instance.
func (s State) hasEngine() bool {
	return s == StateGameLoaded || s == StateRunning
}
