// Package deployment drives one EnvironmentEngineRequest to the
// desired state (spec.md §4.8). The ordered, fail-fast step sequence
// is grounded on Reconcile()'s own shape
// (internal/controller/devstagingenvironment_controller.go:74):
// reconcileDeployment -> reconcileService -> reconcileIngress ->
// reconcileDependencies -> updateStatus, each step short-circuiting
// the rest on error. Here the steps are services instead of fixed
// reconcile concerns, driven in the Databases-first/Routers-last
// order spec.md §4.8 step 3 names.
package deployment

import (
	"context"
	"sort"
	"time"

	"github.com/deployforge/engine/internal/builder"
	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/metrics"
	"github.com/deployforge/engine/internal/mirror"
	"github.com/deployforge/engine/internal/service"
)

// Verdict is the environment-level outcome computed from every
// service's final state (spec.md §4.7 "environment-level verdict").
type Verdict string

const (
	VerdictSuccess   Verdict = "Success"
	VerdictError     Verdict = "Error"
	VerdictCancelled Verdict = "Cancelled"
)

// Item is one service entry in the ordered deployment list, carrying
// enough type information to sort it into the Databases-first/
// Routers-last order without the orchestrator knowing about every
// concrete Deployable type.
type Item struct {
	Handle *service.Handle
	Kind   service.Kind
}

const (
	orderDatabase = iota
	orderMain
	orderJob
	orderRouter
)

func orderRank(k service.Kind) int {
	switch k {
	case service.KindDatabase:
		return orderDatabase
	case service.KindJob:
		return orderJob
	case service.KindRouter:
		return orderRouter
	default:
		return orderMain
	}
}

// Order sorts items into spec.md §4.8 step 3's sequence: Databases
// first, then Applications+Containers+HelmCharts in their original
// relative order, then Jobs, then Routers last. sort.SliceStable
// preserves "original order" within each bucket.
func Order(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return orderRank(items[i].Kind) < orderRank(items[j].Kind)
	})
}

// BuildAndMirror pairs a builder.Buildable with the mirror request for
// the same service, since both only apply to Applications/Jobs with
// buildable source (spec.md §4.8 step 2).
type BuildAndMirror struct {
	Build  builder.Buildable
	Mirror mirror.Request
}

// Request is everything one Drive call needs.
type Request struct {
	EnvironmentID  string
	Action         service.Action
	Items          []Item
	BuildAndMirror []BuildAndMirror
	BuilderPool    *builder.Pool
	Mirror         *mirror.Mirror
	SourceUsername string
	SourcePassword string
	KillerFor      func(builder.Buildable) command.Killer
	Emitter        event.Emitter
	Report         *metrics.Report
	IsCancelled    func() bool
}

// Result is the per-service and environment-level outcome of one
// Drive call.
type Result struct {
	Verdict      Verdict
	DeployedIDs  map[string]bool
	FirstError   error
	CancelledIDs []string
}

// Drive runs the full §4.8 algorithm: build+mirror (Create only),
// then an ordered, fail-fast service drive, then the cancellation
// bookkeeping for anything not yet attempted.
func Drive(ctx context.Context, req Request) (Result, error) {
	envTotal := req.Report.StartStep(req.EnvironmentID, metrics.StepLabelEnvironment, metrics.StepTotal)

	result := Result{DeployedIDs: map[string]bool{}}

	ordered := append([]Item(nil), req.Items...)
	Order(ordered)

	var firstErr error
	cancelledFromHere := false

	// A build/mirror-phase failure aborts before any service has been
	// applied; every item still falls through the same Cancelled path
	// below as an apply-phase failure would (original_source's
	// environment_task.rs wraps build+mirror+apply in one error
	// handler and cancels everything not yet deployed, regardless of
	// which phase failed).
	if req.Action == service.ActionCreate && len(req.BuildAndMirror) > 0 {
		if err := runBuildAndMirror(ctx, req); err != nil {
			firstErr = err
			cancelledFromHere = true
		}
	}

	for _, item := range ordered {
		id := item.Handle.Deployable.ServiceID()

		if cancelledFromHere || (req.IsCancelled != nil && req.IsCancelled()) {
			cancelledFromHere = true
			if err := service.Cancel(item.Handle); err != nil {
				// Already terminal (e.g. deployed before cancel observed):
				// leave its resting state alone, it is not a Cancelled service.
				continue
			}
			result.CancelledIDs = append(result.CancelledIDs, id)
			req.Emitter.Info(event.StageEnvironmentCancelled, "service "+id+" cancelled")
			continue
		}

		svcTotal := req.Report.StartStep(id, metrics.StepLabelService, metrics.StepTotal)
		err := service.Drive(ctx, item.Handle, req.Action)
		if err != nil {
			svcTotal.Stop(metrics.StatusError, time.Now())
		} else {
			svcTotal.Stop(metrics.StatusSuccess, time.Now())
		}

		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			cancelledFromHere = true
			continue
		}

		result.DeployedIDs[id] = true
	}

	switch {
	case firstErr != nil:
		result.Verdict = VerdictError
		result.FirstError = firstErr
	case len(result.CancelledIDs) > 0:
		result.Verdict = VerdictCancelled
	default:
		result.Verdict = VerdictSuccess
	}

	status := metrics.StatusSuccess
	if result.Verdict == VerdictError {
		status = metrics.StatusError
	}
	envTotal.Stop(status, time.Now())

	if result.Verdict == VerdictError {
		return result, result.FirstError
	}
	return result, nil
}

// runBuildAndMirror implements spec.md §4.8 step 2: build every
// buildable service in one bounded-parallel pass, then mirror each in
// turn. A build-phase error aborts before any mirroring starts.
func runBuildAndMirror(ctx context.Context, req Request) error {
	services := make([]builder.Buildable, 0, len(req.BuildAndMirror))
	for _, bm := range req.BuildAndMirror {
		services = append(services, bm.Build)
	}

	buildResults, err := req.BuilderPool.Run(ctx, services, req.KillerFor)
	if err != nil {
		return engineerr.Wrap(engineerr.KindOf(err), event.Details{}, "build phase failed", err)
	}
	for _, res := range buildResults {
		if res.Kind == builder.BuiltError {
			return engineerr.Wrap(engineerr.KindOf(res.Err), event.Details{}, "build failed for "+res.ServiceID, res.Err)
		}
	}

	for _, bm := range req.BuildAndMirror {
		step := req.Report.StartStep(bm.Mirror.ServiceID, metrics.StepLabelService, metrics.StepMirrorImage)
		status, err := req.Mirror.Run(ctx, bm.Mirror, req.SourceUsername, req.SourcePassword)
		switch status {
		case mirror.StatusSkip:
			step.Stop(metrics.StatusSkip, time.Now())
		case mirror.StatusMirrored:
			step.Stop(metrics.StatusSuccess, time.Now())
		default:
			step.Stop(metrics.StatusError, time.Now())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
