package lifecycle

import (
	"errors"
	"fmt"

	"lifeguard/internal/policy"
)

// State is the lifecycle state of the container.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateStopping     State = "STOPPING"
	StateStopped      State = "STOPPED"
	StateFailed       State = "FAILED"
	StateRestarting   State = "RESTARTING"
)

// AllStates lists every State.
var AllStates = []State{
	StateInitializing, StateStarting, StateRunning,
	StateStopping, StateStopped, StateFailed, StateRestarting,
}

// StateNames returns AllStates as strings.
func StateNames() []string {
	out := make([]string, len(AllStates))
	for i, s := range AllStates {
		out[i] = string(s)
	}
	return out
}

// ErrInvalidTransition is returned when a state change is not permitted.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StateInitializing: {StateStarting, StateStopping},
	StateStarting:     {StateRunning, StateFailed, StateStopping},
	StateRunning:      {StateStopping},
	StateStopping:     {StateStopped},
	StateFailed:       {StateRestarting, StateStopping},
	StateStopped:      {StateRestarting},
	StateRestarting:   {StateStarting, StateStopping},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// exit maps a state onto the restart decision table.
func exit(s State) policy.Exit {
	switch s {
	case StateFailed:
		return policy.ExitFailed
	case StateStopped:
		return policy.ExitStopped
	default:
		return policy.ExitOther
	}
}
