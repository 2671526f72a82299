package service

import (
	"context"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// CloudRunRunner provisions a GCP Cloud Run Job, the Managed-mode
// counterpart to TerraformRunner for databases. Grounded on
// services/gcp/cloud_job_service.rs's CloudJobService: the original
// shells out to the gcloud CLI rather than a native SDK (its own TODO
// says as much), the same pattern internal/terraform.Runner already
// uses for `terraform` and internal/mirror for `docker`/`skopeo`.
type CloudRunRunner interface {
	CreateJob(ctx context.Context, spec CloudRunJobSpec) error
	DeleteJob(ctx context.Context, name, projectID, region string) error
}

// CloudRunJobSpec carries everything cloud_job_service.rs's create_job
// takes as arguments, keyed to one Job service.
type CloudRunJobSpec struct {
	Name                string
	Image               string
	Command             string
	Args                []string
	ServiceAccountEmail string
	ProjectID           string
	Region              string
	ExecuteNow          bool
	Labels              map[string]string
}

func (j *Job) cloudRunSpec() CloudRunJobSpec {
	return CloudRunJobSpec{
		Name:                j.ID,
		Image:               j.CloudRunImage,
		Command:             j.CloudRunCommand,
		Args:                j.CloudRunArgs,
		ServiceAccountEmail: j.CloudRunServiceAccountEmail,
		ProjectID:           j.CloudRunProjectID,
		Region:              j.CloudRunRegion,
		Labels:              j.CloudRunLabels,
		// ScheduleOnStart is the only schedule a one-shot Cloud Run Job
		// create call can satisfy synchronously; Cron jobs are
		// provisioned without --execute-now and left for the Cloud
		// Scheduler trigger wiring spec.md §4.7 puts out of scope.
		ExecuteNow: j.Schedule == ScheduleOnStart,
	}
}

func (j *Job) createCloudRunJob(ctx context.Context) error {
	if err := j.CloudRun.CreateJob(ctx, j.cloudRunSpec()); err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "creating cloud run job "+j.ID, err)
	}
	return nil
}

func (j *Job) deleteCloudRunJob(ctx context.Context) error {
	if err := j.CloudRun.DeleteJob(ctx, j.ID, j.CloudRunProjectID, j.CloudRunRegion); err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "deleting cloud run job "+j.ID, err)
	}
	return nil
}
