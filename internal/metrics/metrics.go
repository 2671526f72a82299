// Package metrics records per-step timing for every instrumented
// operation (spec.md §3 "Metrics record") and exports it as Prometheus
// collectors, promoting client_golang from the teacher's indirect
// dependency (pulled in transitively via controller-runtime) to direct
// use.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StepLabel distinguishes a Service-scoped step from an Environment-scoped one.
type StepLabel string

const (
	StepLabelService     StepLabel = "Service"
	StepLabelEnvironment StepLabel = "Environment"
)

// StepName enumerates the instrumented steps named in spec.md §3.
// Total is recorded for both the environment and every service.
type StepName string

const (
	StepTotal                    StepName = "Total"
	StepMirrorImage              StepName = "MirrorImage"
	StepRegistryCreateRepository StepName = "RegistryCreateRepository"
	StepBuildQueueing            StepName = "BuildQueueing"
	StepProvisionBuilder         StepName = "ProvisionBuilder"
	StepBuild                    StepName = "Build"
	StepDeploy                   StepName = "Deploy"
)

// Status is the terminal status of a step, set exactly once on Stop.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusSkip    Status = "Skip"
	StatusError   Status = "Error"
)

var (
	stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "engine",
		Subsystem: "deployment",
		Name:      "step_duration_seconds",
		Help:      "Duration of one instrumented deployment step.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"label", "step", "status"})

	stepTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Subsystem: "deployment",
		Name:      "step_total",
		Help:      "Count of instrumented deployment steps by terminal status.",
	}, []string{"label", "step", "status"})
)

// Register adds this package's collectors to reg. Call once per process
// (or per DeploymentTarget that owns its own registry).
func Register(reg prometheus.Registerer) error {
	if err := reg.Register(stepDuration); err != nil {
		return err
	}
	return reg.Register(stepTotal)
}

// Record is one in-flight or finished step timing, matching spec.md §3's
// Metrics record shape exactly (id, label, name, start/stop, status).
type Record struct {
	ServiceOrEnvID string
	Label          StepLabel
	Name           StepName
	StartedAt      time.Time
	StoppedAt      time.Time
	Status         Status

	mu      sync.Mutex
	stopped bool
}

// Report accumulates Records for one deployment run for later
// in-process inspection (e.g. attaching a summary to the task result),
// in addition to what each Record pushes to Prometheus on Stop.
type Report struct {
	mu      sync.Mutex
	records []*Record
	now     func() time.Time
}

// NewReport builds an empty report. now defaults to time.Now; tests
// inject a fixed clock.
func NewReport(now func() time.Time) *Report {
	if now == nil {
		now = time.Now
	}
	return &Report{now: now}
}

// StartStep begins a new Record and appends it to the report.
func (r *Report) StartStep(id string, label StepLabel, name StepName) *Record {
	rec := &Record{ServiceOrEnvID: id, Label: label, Name: name, StartedAt: r.now()}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return rec
}

// Stop records the stop timestamp and terminal status exactly once;
// subsequent calls are no-ops, matching spec.md §3's "stop exactly
// once" invariant. It also pushes the observation to Prometheus.
func (r *Record) Stop(status Status, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.StoppedAt = now
	r.Status = status

	labels := prometheus.Labels{"label": string(r.Label), "step": string(r.Name), "status": string(status)}
	stepDuration.With(labels).Observe(now.Sub(r.StartedAt).Seconds())
	stepTotal.With(labels).Inc()
}

// Records returns a snapshot of every record started so far.
func (r *Report) Records() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.records))
	copy(out, r.records)
	return out
}
