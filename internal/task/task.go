// Package task runs one EnvironmentEngineRequest end to end: build an
// InfrastructureContext, drive the deployment (internal/deployment),
// then archive and upload the workspace (internal/archive) unless
// disabled. Grounded on cli/cmd/dashboard_actions.go's single
// in-flight-operation pattern (package-level activeSyncMu +
// activeSyncStop channel guarding one background goroutine), here
// scoped to one Runner per request instead of one package-level
// singleton, since production runs many requests concurrently.
package task

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/deployforge/engine/internal/archive"
	"github.com/deployforge/engine/internal/deployment"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// deployFromFileEnvVar disables workspace archive upload when present,
// regardless of value (spec.md §6 "Environment variables consumed").
const deployFromFileEnvVar = "DEPLOY_FROM_FILE_KIND"

// Archive is the resolved upload target for one task; nil means "do not
// upload" (spec.md §6 "Persisted artifacts").
type Archive struct {
	Uploader archive.Uploader
	Bucket   string
	Key      string
}

// Result is what AwaitTerminated's caller receives once the task ends.
type Result struct {
	Deployment deployment.Result
	Err        error
}

// Runner drives exactly one request. It is not reusable after Start.
type Runner struct {
	emitter event.Emitter

	cancelled  atomic.Bool
	terminated chan struct{}

	mu     sync.Mutex
	result Result
	done   bool
}

// NewRunner builds a Runner bound to emitter, used for the
// Environment.Start / Environment.Terminated lifecycle events.
func NewRunner(emitter event.Emitter) *Runner {
	return &Runner{emitter: emitter, terminated: make(chan struct{})}
}

// Start launches the task in a background goroutine and returns
// immediately. workspaceRoot is the directory archived on completion;
// arc is nil to skip archiving. The deployment.Request's IsCancelled is
// overwritten to read this Runner's cancel flag.
func (r *Runner) Start(ctx context.Context, req deployment.Request, workspaceRoot string, arc *Archive) {
	req.IsCancelled = r.cancelled.Load
	r.emitter.Info(event.StageEnvironmentStart, "task started")

	go r.run(ctx, req, workspaceRoot, arc)
}

func (r *Runner) run(ctx context.Context, req deployment.Request, workspaceRoot string, arc *Archive) {
	defer r.finish()

	depResult, depErr := deployment.Drive(ctx, req)

	if depErr == nil && arc != nil && os.Getenv(deployFromFileEnvVar) == "" {
		if err := r.archiveAndUpload(ctx, workspaceRoot, arc); err != nil {
			depErr = err
		}
	}

	r.mu.Lock()
	r.result = Result{Deployment: depResult, Err: depErr}
	r.mu.Unlock()
}

func (r *Runner) archiveAndUpload(ctx context.Context, workspaceRoot string, arc *Archive) error {
	tmp, err := os.CreateTemp("", "workspace-*.tar.gz")
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "creating temp archive file", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := archive.Create(workspaceRoot, path); err != nil {
		return err
	}
	if err := arc.Uploader.Upload(ctx, path, arc.Bucket, arc.Key); err != nil {
		archive.Discard(path)
		return err
	}
	return archive.Discard(path)
}

func (r *Runner) finish() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
	r.emitter.Info(event.StageEnvironmentTerminated, "task terminated")
	close(r.terminated)
}

// Cancel requests cooperative cancellation. It never blocks and may be
// called multiple times.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

// IsTerminated reports whether the task has finished running (success,
// error, or cancelled).
func (r *Runner) IsTerminated() bool {
	select {
	case <-r.terminated:
		return true
	default:
		return false
	}
}

// AwaitTerminated blocks until the task finishes or ctx is done,
// whichever comes first.
func (r *Runner) AwaitTerminated(ctx context.Context) error {
	select {
	case <-r.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the task's outcome. Only meaningful once IsTerminated
// is true; returns the zero Result otherwise.
func (r *Runner) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}
