// Package service drives one deployable unit through its lifecycle
// (spec.md §4.7). The state machine is re-expressed as an explicit Go
// type rather than the teacher's status.Conditions list
// (meta.SetStatusCondition in devstagingenvironment_controller.go)
// because this lifecycle is richer than a single ready/not-ready
// condition — but the "record an event and a reason/message on every
// failed step" discipline is kept verbatim.
package service

import (
	"fmt"
)

// State is one node of the per-service lifecycle graph.
type State string

const (
	StateNotDeployed    State = "NotDeployed"
	StateDeploying      State = "Deploying"
	StateDeployed       State = "Deployed"
	StateDeployedError  State = "DeployedError"
	StatePausing        State = "Pausing"
	StatePaused         State = "Paused"
	StatePausedError    State = "PausedError"
	StateDeleting       State = "Deleting"
	StateDeleted        State = "Deleted"
	StateDeletedError   State = "DeletedError"
	StateRestarting     State = "Restarting"
	StateRestarted      State = "Restarted"
	StateRestartedError State = "RestartedError"
	StateCancelled      State = "Cancelled"
)

// Event drives one edge of the graph.
type Event string

const (
	EventCreate  Event = "create"
	EventPause   Event = "pause"
	EventDelete  Event = "delete"
	EventRestart Event = "restart"
	EventOK      Event = "ok"
	EventErr     Event = "err"
	EventCancel  Event = "cancel"
)

// ErrIllegalTransition is returned when an Event has no matching edge
// from the current State.
type ErrIllegalTransition struct {
	From  State
	Event Event
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition: %s does not accept %s", e.From, e.Event)
}

// edges mirrors spec.md §4.7's diagram one-to-one: every arrow is one
// (from, event) -> to entry, plus the implicit "any state -> Cancelled"
// row handled separately in Transition.
var edges = map[State]map[Event]State{
	StateNotDeployed:    {EventCreate: StateDeploying},
	StateDeploying:      {EventOK: StateDeployed, EventErr: StateDeployedError},
	StateDeployed:       {EventPause: StatePausing, EventDelete: StateDeleting, EventRestart: StateRestarting},
	StatePausing:        {EventOK: StatePaused, EventErr: StatePausedError},
	StateDeleting:       {EventOK: StateDeleted, EventErr: StateDeletedError},
	StateRestarting:     {EventOK: StateRestarted, EventErr: StateRestartedError},
}

// Transition computes the next State for (current, evt). Cancel is
// legal from any non-terminal state, matching the diagram's "any state
// --cancel--> Cancelled" row.
func Transition(current State, evt Event) (State, error) {
	if evt == EventCancel {
		if IsTerminal(current) {
			return current, &ErrIllegalTransition{From: current, Event: evt}
		}
		return StateCancelled, nil
	}
	if next, ok := edges[current][evt]; ok {
		return next, nil
	}
	return current, &ErrIllegalTransition{From: current, Event: evt}
}

// IsTerminal reports whether no further transition (other than one
// already excluded above) can leave this state.
func IsTerminal(s State) bool {
	switch s {
	case StateDeployedError, StatePausedError, StateDeletedError, StateRestartedError,
		StateDeleted, StateCancelled:
		return true
	default:
		return false
	}
}

// IsError reports whether s is one of the four per-action error
// terminal states (spec.md §4.7's environment-verdict computation
// inspects exactly this set).
func IsError(s State) bool {
	switch s {
	case StateDeployedError, StatePausedError, StateDeletedError, StateRestartedError:
		return true
	default:
		return false
	}
}
