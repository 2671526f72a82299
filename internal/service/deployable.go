package service

import (
	"context"
)

// Kind tags the polymorphic service payload variants of spec.md §3.
type Kind string

const (
	KindApplication Kind = "Application"
	KindContainer   Kind = "Container"
	KindJob         Kind = "Job"
	KindHelmChart   Kind = "HelmChart"
	KindRouter      Kind = "Router"
	KindDatabase    Kind = "Database"
)

// Action is one of the four verbs a deployment request carries per
// service (spec.md §6 "Environment request").
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionPause   Action = "PAUSE"
	ActionDelete  Action = "DELETE"
	ActionRestart Action = "RESTART"
)

// Deployable is implemented by every service payload variant. Each
// variant owns its own Create/Pause/Delete/Restart behavior; the
// state machine in this package only tracks which node the service is
// on, not how it gets there — the same separation the teacher keeps
// between reconcile<Concern> (the how) and status.Conditions (the
// where).
type Deployable interface {
	ServiceID() string
	Kind() Kind
	Create(ctx context.Context) error
	Pause(ctx context.Context) error
	Delete(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Handle tracks one service's progress through the lifecycle while it
// is driven by Drive.
type Handle struct {
	Deployable Deployable
	State      State
	Err        error
}

// Drive executes act against h.Deployable and advances h.State
// through the matching Deploying/Pausing/Deleting/Restarting
// intermediate node to its Ok/Err resting state. It never panics on
// an illegal transition; it returns the ErrIllegalTransition instead,
// so the caller (the environment-level orchestrator) can classify it
// as an Internal error.
func Drive(ctx context.Context, h *Handle, act Action) error {
	evt, run, err := stepFor(h.Deployable, act)
	if err != nil {
		return err
	}

	next, err := Transition(h.State, evt)
	if err != nil {
		return err
	}
	h.State = next

	runErr := run(ctx)

	resultEvt := EventOK
	if runErr != nil {
		resultEvt = EventErr
	}
	final, terr := Transition(h.State, resultEvt)
	if terr != nil {
		return terr
	}
	h.State = final
	h.Err = runErr
	return runErr
}

// Cancel forces h into StateCancelled, used when the environment-level
// cancel flag is observed before this service's turn to deploy.
func Cancel(h *Handle) error {
	next, err := Transition(h.State, EventCancel)
	if err != nil {
		return err
	}
	h.State = next
	return nil
}

func stepFor(d Deployable, act Action) (Event, func(context.Context) error, error) {
	switch act {
	case ActionCreate:
		return EventCreate, d.Create, nil
	case ActionPause:
		return EventPause, d.Pause, nil
	case ActionDelete:
		return EventDelete, d.Delete, nil
	case ActionRestart:
		return EventRestart, d.Restart, nil
	default:
		return "", nil, &ErrIllegalTransition{From: StateNotDeployed, Event: Event(act)}
	}
}
