// Package gcprun shells out to the gcloud CLI to manage GCP Cloud Run
// Jobs, satisfying service.CloudRunRunner. Grounded on
// services/gcp/cloud_job_service.rs's CloudJobService, whose own code
// comment says this should eventually move to a native GCP SDK but for
// now drives gcloud directly — the same shape internal/terraform.Runner
// uses for the `terraform` CLI via internal/command.Runner.
package gcprun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/service"
)

// defaultTimeout bounds one `gcloud run jobs` call; job creation can
// involve a container image pull and is routinely slower than a plain
// API call.
const defaultTimeout = 5 * time.Minute

// Runner shells out to `gcloud run jobs`.
type Runner struct {
	Runner  *command.Runner
	Emitter event.Emitter
}

func New(runner *command.Runner, emitter event.Emitter) *Runner {
	return &Runner{Runner: runner, Emitter: emitter}
}

var _ service.CloudRunRunner = (*Runner)(nil)

// CreateJob runs `gcloud run jobs create`, mirroring cloud_job_service.rs's
// create_job argument assembly: image, region and project are always
// passed; command, args, service-account, --execute-now and --labels
// only when set; and the
// args list is comma-joined the way gcloud expects for repeated flags.
func (r *Runner) CreateJob(ctx context.Context, spec service.CloudRunJobSpec) error {
	args := []string{
		"run", "jobs", "create", spec.Name,
		"--image=" + spec.Image,
		"--region=" + spec.Region,
		"--project=" + spec.ProjectID,
	}
	if spec.Command != "" {
		args = append(args, "--command="+spec.Command)
	}
	if len(spec.Args) > 0 {
		args = append(args, "--args="+strings.Join(spec.Args, ","))
	}
	if spec.ServiceAccountEmail != "" {
		args = append(args, "--service-account="+spec.ServiceAccountEmail)
	}
	if spec.ExecuteNow {
		args = append(args, "--execute-now")
	}
	if len(spec.Labels) > 0 {
		args = append(args, "--labels="+joinLabels(spec.Labels))
	}
	return r.run(ctx, args, fmt.Sprintf("creating cloud run job %s", spec.Name))
}

// DeleteJob runs `gcloud run jobs delete --quiet`.
func (r *Runner) DeleteJob(ctx context.Context, name, projectID, region string) error {
	args := []string{
		"run", "jobs", "delete", name,
		"--region=" + region,
		"--project=" + projectID,
		"--quiet",
	}
	return r.run(ctx, args, fmt.Sprintf("deleting cloud run job %s", name))
}

func joinLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (r *Runner) run(ctx context.Context, args []string, action string) error {
	killer := command.Killer{Deadline: time.Now().Add(defaultTimeout)}
	res := r.Runner.Run(ctx, command.Spec{Bin: "gcloud", Args: args}, killer,
		func(line string) { r.Emitter.Info(event.StageEnvironmentDeploy, line) },
		nil,
	)
	if !res.IsSuccess() {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, action+": "+res.Message, res.Err)
	}
	return nil
}
