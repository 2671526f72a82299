// Package event defines the one-way event sink every layer of the engine
// writes progress and error notifications through. It replaces the global
// mutable listener list design note §9 flags in the source system with an
// injected interface: production wires a logging sink, tests wire an
// in-memory one.
package event

import "time"

// Stage is the coarse phase label attached to an event.
type Stage string

const (
	StageInfrastructureInstantiate Stage = "Infrastructure.Instantiate"
	StageInfrastructureCreate      Stage = "Infrastructure.Create"
	StageInfrastructurePause       Stage = "Infrastructure.Pause"
	StageInfrastructureUpgrade     Stage = "Infrastructure.Upgrade"
	StageInfrastructureDelete      Stage = "Infrastructure.Delete"

	StageEnvironmentBuild         Stage = "Environment.Build"
	StageEnvironmentBuilt         Stage = "Environment.Built"
	StageEnvironmentBuiltError    Stage = "Environment.BuiltError"
	StageEnvironmentDeploy        Stage = "Environment.Deploy"
	StageEnvironmentDeployed      Stage = "Environment.Deployed"
	StageEnvironmentDeployedError Stage = "Environment.DeployedError"
	StageEnvironmentPause         Stage = "Environment.Pause"
	StageEnvironmentPaused        Stage = "Environment.Paused"
	StageEnvironmentPausedError   Stage = "Environment.PausedError"
	StageEnvironmentDelete        Stage = "Environment.Delete"
	StageEnvironmentDeleted       Stage = "Environment.Deleted"
	StageEnvironmentDeletedError  Stage = "Environment.DeletedError"
	StageEnvironmentRestart       Stage = "Environment.Restart"
	StageEnvironmentRestarted     Stage = "Environment.Restarted"
	StageEnvironmentRestartedErr  Stage = "Environment.RestartedError"
	StageEnvironmentCancel        Stage = "Environment.Cancel"
	StageEnvironmentCancelled     Stage = "Environment.Cancelled"
	StageEnvironmentStart         Stage = "Environment.Start"
	StageEnvironmentTerminated    Stage = "Environment.Terminated"
)

// Severity of an event.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// TransmitterKind identifies the kind of component that emitted an event.
type TransmitterKind string

const (
	TransmitterEngine      TransmitterKind = "Engine"
	TransmitterApplication TransmitterKind = "Application"
	TransmitterContainer   TransmitterKind = "Container"
	TransmitterJob         TransmitterKind = "Job"
	TransmitterHelmChart   TransmitterKind = "HelmChart"
	TransmitterRouter      TransmitterKind = "Router"
	TransmitterDatabase    TransmitterKind = "Database"
)

// Transmitter is the opaque identifier of the emitting component.
type Transmitter struct {
	Kind TransmitterKind
	ID   string
	Name string
}

// Details carries the attribution fields every event and error needs.
type Details struct {
	OrganizationID string
	ClusterID      string
	ExecutionID    string
	Region         string
	Stage          Stage
	Transmitter    Transmitter
}

// Event is a single, fire-and-forget progress/error notification. The sink
// must tolerate duplicates: it is acceptable (and expected under retry) for
// the same logical event to be emitted more than once.
type Event struct {
	Details         Details
	Severity        Severity
	SafeMessage     string
	DetailedMessage string
	Timestamp       time.Time
}

// Sink receives events. Implementations must be safe for concurrent use:
// many goroutines (build workers, mirror workers, the deployment
// orchestrator) write to the same sink.
type Sink interface {
	Send(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Send(e Event) { f(e) }

// Emitter is a small helper bound to one Details so call sites don't have to
// repeat OrganizationID/ClusterID/ExecutionID/Region/Transmitter on every
// call. Stage is overridden per call.
type Emitter struct {
	Sink    Sink
	Details Details
	Now     func() time.Time
}

func (e Emitter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Emitter) emit(stage Stage, sev Severity, safeMsg, detailedMsg string) {
	if e.Sink == nil {
		return
	}
	d := e.Details
	d.Stage = stage
	e.Sink.Send(Event{
		Details:         d,
		Severity:        sev,
		SafeMessage:     safeMsg,
		DetailedMessage: detailedMsg,
		Timestamp:       e.now(),
	})
}

// Info emits an informational event at the given stage.
func (e Emitter) Info(stage Stage, safeMsg string) {
	e.emit(stage, SeverityInfo, safeMsg, "")
}

// Warn emits a warning event.
func (e Emitter) Warn(stage Stage, safeMsg string) {
	e.emit(stage, SeverityWarning, safeMsg, "")
}

// Error emits an error event. detailedMsg may contain information not safe
// to show end users (stack traces, raw CLI stderr); safeMsg never contains
// secrets or env-var values — callers are responsible for scrubbing it
// before calling Error.
func (e Emitter) Error(stage Stage, safeMsg, detailedMsg string) {
	e.emit(stage, SeverityError, safeMsg, detailedMsg)
}

// WithTransmitter returns a copy of the emitter scoped to a specific
// service transmitter (used once per service inside the orchestrator).
func (e Emitter) WithTransmitter(t Transmitter) Emitter {
	e2 := e
	e2.Details.Transmitter = t
	return e2
}
