package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deployforge/engine/internal/deployment"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/metrics"
)

type fakeUploader struct {
	calls int
	path  string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, bucket, key string) error {
	f.calls++
	f.path = localPath
	return nil
}

func TestRunnerArchivesAndUploadsOnSuccess(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "file.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &fakeUploader{}
	runner := NewRunner(event.Emitter{})
	req := deployment.Request{
		EnvironmentID: "env-1",
		Action:        "CREATE",
		Report:        metrics.NewReport(nil),
	}

	runner.Start(context.Background(), req, root, &Archive{Uploader: up, Bucket: "b", Key: "k"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := runner.AwaitTerminated(ctx); err != nil {
		t.Fatalf("AwaitTerminated: %v", err)
	}
	if !runner.IsTerminated() {
		t.Fatal("expected IsTerminated true after AwaitTerminated returns")
	}
	if up.calls != 1 {
		t.Fatalf("expected exactly one upload call, got %d", up.calls)
	}
	if _, err := os.Stat(up.path); !os.IsNotExist(err) {
		t.Fatalf("expected local archive to be discarded after upload, stat err = %v", err)
	}
}

func TestRunnerSkipsUploadWhenDeployFromFileSet(t *testing.T) {
	os.Setenv(deployFromFileEnvVar, "1")
	defer os.Unsetenv(deployFromFileEnvVar)

	root := t.TempDir()
	up := &fakeUploader{}
	runner := NewRunner(event.Emitter{})
	req := deployment.Request{
		EnvironmentID: "env-1",
		Action:        "CREATE",
		Report:        metrics.NewReport(nil),
	}

	runner.Start(context.Background(), req, root, &Archive{Uploader: up, Bucket: "b", Key: "k"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = runner.AwaitTerminated(ctx)

	if up.calls != 0 {
		t.Fatalf("expected no upload when %s is set, got %d calls", deployFromFileEnvVar, up.calls)
	}
}

func TestRunnerTerminatesWhenCancelledBeforeStart(t *testing.T) {
	runner := NewRunner(event.Emitter{})
	runner.Cancel()

	req := deployment.Request{
		EnvironmentID: "env-1",
		Action:        "CREATE",
		Report:        metrics.NewReport(nil),
	}
	runner.Start(context.Background(), req, t.TempDir(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := runner.AwaitTerminated(ctx); err != nil {
		t.Fatalf("AwaitTerminated: %v", err)
	}
}
