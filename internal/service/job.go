package service

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/kube"
)

const jobPollInterval = 3 * time.Second

// waitTick sleeps jobPollInterval or returns ctx.Err() if the context
// is cancelled first.
func waitTick(ctx context.Context) error {
	t := time.NewTimer(jobPollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Schedule is the Job-specific tagged variant of spec.md §4.7, dispatched
// the same way CloudProvider/DatabaseKind are: a string-backed enum with
// one switch arm per value, never a type hierarchy.
type Schedule string

const (
	ScheduleCron     Schedule = "Cron"
	ScheduleOnStart  Schedule = "OnStart"
	ScheduleOnDelete Schedule = "OnDelete"
	ScheduleOnPause  Schedule = "OnPause"
)

// Job is the Deployable implementation for the Job service variant. Its
// Create/Pause/Delete verbs are legal only for the Schedule values
// spec.md §4.7 names; the others are no-ops (not errors — "runs once
// during X" implies "does nothing outside X"). Mode == DatabaseModeManaged
// with Provider == ProviderGCP routes Create/Delete through CloudRun
// instead of the Helm chart, the
// same Mode-dispatch shape Database uses for Terraform (variants.go).
type Job struct {
	ID       string
	Release  kube.Release
	Target   *kube.Target
	Schedule Schedule
	Emitter  event.Emitter

	Mode     DatabaseMode
	Provider CloudProvider
	CloudRun CloudRunRunner

	// CloudRun-specific provisioning inputs, meaningful only when
	// managed() is true.
	CloudRunImage               string
	CloudRunCommand             string
	CloudRunArgs                []string
	CloudRunServiceAccountEmail string
	CloudRunProjectID           string
	CloudRunRegion              string
	CloudRunLabels              map[string]string
}

func (j *Job) ServiceID() string { return j.ID }
func (j *Job) Kind() Kind        { return KindJob }

func (j *Job) managed() bool {
	return j.Mode == DatabaseModeManaged && j.Provider == ProviderGCP
}

// Create applies the Job/CronJob chart when the schedule runs at
// create time (Cron and OnStart); other schedules are a no-op here.
func (j *Job) Create(ctx context.Context) error {
	if j.managed() {
		return j.createCloudRunJob(ctx)
	}
	switch j.Schedule {
	case ScheduleCron, ScheduleOnStart:
		if err := j.Target.Apply(ctx, j.Release, kube.ActionCreate, j.Emitter); err != nil {
			return err
		}
		if j.Schedule == ScheduleOnStart {
			return j.awaitCompletion(ctx)
		}
		return nil
	default:
		return nil
	}
}

// Pause deletes the CronJob (spec.md: "Cron ... on-pause triggers
// delete of the CronJob") or runs the one-shot OnPause job. A managed
// Cloud Run Job is left running; only the compute in front of it is
// paused elsewhere, mirroring Database.Pause's managed-mode no-op.
func (j *Job) Pause(ctx context.Context) error {
	if j.managed() {
		return nil
	}
	switch j.Schedule {
	case ScheduleCron:
		return j.Target.Apply(ctx, j.Release, kube.ActionDelete, j.Emitter)
	case ScheduleOnPause:
		if err := j.Target.Apply(ctx, j.Release, kube.ActionCreate, j.Emitter); err != nil {
			return err
		}
		return j.awaitCompletion(ctx)
	default:
		return nil
	}
}

// Delete runs the OnDelete job once, then tears down the chart for
// every schedule.
func (j *Job) Delete(ctx context.Context) error {
	if j.managed() {
		return j.deleteCloudRunJob(ctx)
	}
	if j.Schedule == ScheduleOnDelete {
		if err := j.Target.Apply(ctx, j.Release, kube.ActionCreate, j.Emitter); err != nil {
			return err
		}
		if err := j.awaitCompletion(ctx); err != nil {
			return err
		}
	}
	return j.Target.Apply(ctx, j.Release, kube.ActionDelete, j.Emitter)
}

func (j *Job) Restart(ctx context.Context) error {
	if j.managed() {
		return nil
	}
	return j.Target.Apply(ctx, j.Release, kube.ActionRestart, j.Emitter)
}

// awaitCompletion blocks until the batch/v1 Job reports succeeded or
// failed, per spec.md §4.7: "the engine awaits the batch/v1 Job until
// its status.succeeded or status.failed condition; on failure it
// extracts the Failed condition's reason+message."
func (j *Job) awaitCompletion(ctx context.Context) error {
	for {
		var jobObj batchv1.Job
		if err := j.Target.Client.Get(ctx, types.NamespacedName{Name: j.Release.Name, Namespace: j.Release.Namespace}, &jobObj); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "fetching job "+j.Release.Name, err)
		}

		if jobObj.Status.Succeeded > 0 {
			return nil
		}
		if jobObj.Status.Failed > 0 {
			reason, msg := failedCondition(&jobObj)
			return engineerr.New(engineerr.KindUser, event.Details{},
				fmt.Sprintf("job %s failed: %s: %s", j.Release.Name, reason, msg), nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := waitTick(ctx); err != nil {
			return err
		}
	}
}

func failedCondition(jobObj *batchv1.Job) (reason, message string) {
	for _, c := range jobObj.Status.Conditions {
		if c.Type == batchv1.JobFailed && c.Status == "True" {
			return c.Reason, c.Message
		}
	}
	return "Unknown", "job reported Failed with no matching condition"
}
