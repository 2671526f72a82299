package service

import (
	"context"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/deployforge/engine/internal/kube"
)

func newFakeJobTarget(objs ...runtime.Object) *kube.Target {
	scheme := runtime.NewScheme()
	_ = batchv1.AddToScheme(scheme)
	builder := clientfake.NewClientBuilder().WithScheme(scheme)
	for _, o := range objs {
		builder = builder.WithRuntimeObjects(o)
	}
	return kube.NewTarget(builder.Build(), nil, "default")
}

func batchJob(name string, status batchv1.JobStatus) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Status:     status,
	}
}

func TestAwaitCompletionReturnsOnSuccess(t *testing.T) {
	target := newFakeJobTarget(batchJob("migrate", batchv1.JobStatus{Succeeded: 1}))
	j := &Job{ID: "svc-1", Release: kube.Release{Name: "migrate", Namespace: "default"}, Target: target}

	if err := j.awaitCompletion(context.Background()); err != nil {
		t.Fatalf("unexpected error on a succeeded job: %v", err)
	}
}

func TestAwaitCompletionReturnsUserErrorOnFailure(t *testing.T) {
	status := batchv1.JobStatus{
		Failed: 1,
		Conditions: []batchv1.JobCondition{
			{Type: batchv1.JobFailed, Status: "True", Reason: "BackoffLimitExceeded", Message: "too many retries"},
		},
	}
	target := newFakeJobTarget(batchJob("migrate", status))
	j := &Job{ID: "svc-1", Release: kube.Release{Name: "migrate", Namespace: "default"}, Target: target}

	err := j.awaitCompletion(context.Background())
	if err == nil {
		t.Fatal("expected an error on a failed job")
	}
}

func TestAwaitCompletionRespectsCancellation(t *testing.T) {
	target := newFakeJobTarget(batchJob("migrate", batchv1.JobStatus{}))
	j := &Job{ID: "svc-1", Release: kube.Release{Name: "migrate", Namespace: "default"}, Target: target}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := j.awaitCompletion(ctx)
	if err == nil {
		t.Fatal("expected cancellation to surface as an error")
	}
	if time.Since(start) > jobPollInterval {
		t.Fatal("expected cancellation to return before the next poll tick")
	}
}

// S3: an OnDelete-scheduled job only ever runs at Delete time; Pause
// must be a no-op that never touches the chart.
func TestOnDeleteScheduleDoesNotTouchPause(t *testing.T) {
	target := newFakeJobTarget()
	j := &Job{ID: "svc-1", Schedule: ScheduleOnDelete, Release: kube.Release{Name: "cleanup", Namespace: "default"}, Target: target}

	if err := j.Pause(context.Background()); err != nil {
		t.Fatalf("OnDelete schedule's Pause must be a no-op, got %v", err)
	}
}

type fakeCloudRun struct {
	created   *CloudRunJobSpec
	createErr error
	deleted   string
	deleteErr error
}

func (f *fakeCloudRun) CreateJob(ctx context.Context, spec CloudRunJobSpec) error {
	f.created = &spec
	return f.createErr
}

func (f *fakeCloudRun) DeleteJob(ctx context.Context, name, projectID, region string) error {
	f.deleted = name
	return f.deleteErr
}

// A Managed-mode GCP job must go through CloudRun instead of applying a
// Helm chart, whichever Schedule it carries.
func TestManagedGCPJobCreateDispatchesToCloudRun(t *testing.T) {
	cr := &fakeCloudRun{}
	j := &Job{
		ID:             "svc-1",
		Schedule:       ScheduleOnStart,
		Mode:           DatabaseModeManaged,
		Provider:       ProviderGCP,
		CloudRun:       cr,
		CloudRunImage:  "gcr.io/proj/img:tag",
		CloudRunRegion: "us-central1",
	}

	if err := j.Create(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cr.created == nil {
		t.Fatal("expected CreateJob to be called")
	}
	if cr.created.Name != "svc-1" || !cr.created.ExecuteNow {
		t.Fatalf("expected OnStart schedule to request --execute-now, got %+v", cr.created)
	}
}

func TestManagedGCPJobDeleteDispatchesToCloudRun(t *testing.T) {
	cr := &fakeCloudRun{}
	j := &Job{ID: "svc-1", Mode: DatabaseModeManaged, Provider: ProviderGCP, CloudRun: cr}

	if err := j.Delete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cr.deleted != "svc-1" {
		t.Fatalf("expected DeleteJob to be called with svc-1, got %q", cr.deleted)
	}
}

// A managed job's compute is Cloud Run itself, not a Deployment in
// front of it; Pause/Restart must be no-ops the same way a managed
// Database's are.
func TestManagedGCPJobPauseAndRestartAreNoOps(t *testing.T) {
	cr := &fakeCloudRun{}
	j := &Job{ID: "svc-1", Mode: DatabaseModeManaged, Provider: ProviderGCP, CloudRun: cr}

	if err := j.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Restart(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cr.created != nil || cr.deleted != "" {
		t.Fatalf("expected Pause/Restart not to touch CloudRun, got created=%v deleted=%v", cr.created, cr.deleted)
	}
}
