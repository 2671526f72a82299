// Package builder runs a bounded-parallel pool of Docker/buildpacks
// builds, grounded on the teacher's runner-pool reconciliation shape
// (internal/controller/githubactionrunnerpool_controller.go: a desired
// replica count driving a worker set) generalized from a long-lived
// reconciled pool to a one-shot bounded fan-out over errgroup, per
// design note §9 ("thread-pool with unpark signalling").
package builder

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/registry"
)

// Handle sizes the remote builder pool for one deployment, per spec.md
// §4.4's nb_builders/max_cpu/max_ram formula.
type Handle struct {
	NBBuilders int
	MaxCPU     int64 // milli-cpu
	MaxRAM     int64 // GiB
}

// Buildable is the minimal per-service shape the pool needs; cmd/enginectl
// fills one for each service with a buildable source (buildAndMirrorFor).
type Buildable struct {
	ServiceID      string
	UsesBuildpacks bool
	MaxCPUInMilli  int64
	MaxRAMInGiB    int64
	Image          registry.Image
	ForceBuild     bool
	RetentionSecs  int64
	Tags           map[string]string

	// Build invocation inputs.
	ContextDir     string
	DockerfilePath string // empty selects buildpacks
	BuildArgs      map[string]string
	DisableCache   bool

	// RequiredArch lists the target platforms this service's image must
	// support (e.g. "linux/amd64", "linux/arm64"). Every buildable in one
	// pool must agree on it; see ValidateArch.
	RequiredArch []string
}

// ValidateArch rejects a build batch where services disagree on target
// architecture, at provisioning time rather than after builders are
// already running (supplements spec.md §4.4 — original_source's
// application model assumes one Dockerfile resolves to one set of
// architectures per build group).
func ValidateArch(services []Buildable) error {
	var want []string
	var wantFrom string
	for _, s := range services {
		if len(s.RequiredArch) == 0 {
			continue
		}
		if want == nil {
			want = s.RequiredArch
			wantFrom = s.ServiceID
			continue
		}
		if !sameArchSet(want, s.RequiredArch) {
			return fmt.Errorf("mixed architecture requirements in one build batch: %s wants %v, %s wants %v", wantFrom, want, s.ServiceID, s.RequiredArch)
		}
	}
	return nil
}

func sameArchSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			return false
		}
	}
	return true
}

const (
	defaultMaxCPUMilli = 2000
	defaultMaxRAMGiB   = 2
)

// Size computes the Handle per spec.md §4.4. maxParallelBuild is the
// deployment-level cap requested by the caller.
func Size(services []Buildable, maxParallelBuild int, log func(string)) Handle {
	anyBuildpacks := false
	maxCPU := int64(defaultMaxCPUMilli)
	maxRAM := int64(defaultMaxRAMGiB)
	for _, s := range services {
		if s.UsesBuildpacks {
			anyBuildpacks = true
		}
		if s.MaxCPUInMilli > maxCPU {
			maxCPU = s.MaxCPUInMilli
		}
		if s.MaxRAMInGiB > maxRAM {
			maxRAM = s.MaxRAMInGiB
		}
	}

	nb := clamp(maxParallelBuild, 1, len(services))
	if anyBuildpacks {
		if log != nil {
			log("one or more services build with buildpacks, which cannot run in parallel: forcing serial builds")
		}
		nb = 1
	}
	if nb < 1 {
		nb = 1
	}
	return Handle{NBBuilders: nb, MaxCPU: maxCPU, MaxRAM: maxRAM}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ResultKind classifies the outcome of one service's build.
type ResultKind string

const (
	Built         ResultKind = "Built"
	AlreadyExists ResultKind = "AlreadyExists"
	BuiltError    ResultKind = "BuiltError"
	Cancelled     ResultKind = "Cancelled"
)

type Result struct {
	ServiceID string
	Kind      ResultKind
	Err       error
}

// Pool runs one build per Buildable, bounded to Handle.NBBuilders
// concurrent builds, first-error-wins, always draining queued/running
// builds before returning (errgroup.Wait blocks until every goroutine
// launched via g.Go returns, which is the Go idiom for "join all active
// threads" in spec.md §4.4).
type Pool struct {
	Handle   Handle
	Registry registry.Adapter
	Runner   *command.Runner
	Emitter  event.Emitter
}

func NewPool(handle Handle, reg registry.Adapter, runner *command.Runner, emitter event.Emitter) *Pool {
	return &Pool{Handle: handle, Registry: reg, Runner: runner, Emitter: emitter}
}

// Run builds every service, bounded to p.Handle.NBBuilders in-flight
// builds at once. It returns one Result per input service (same order)
// plus the first error observed, if any.
func (p *Pool) Run(ctx context.Context, services []Buildable, killerFor func(Buildable) command.Killer) ([]Result, error) {
	if err := ValidateArch(services); err != nil {
		return nil, engineerr.New(engineerr.KindUser, event.Details{}, err.Error(), nil)
	}

	results := make([]Result, len(services))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Handle.NBBuilders)

	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			res := p.buildOne(gctx, svc, killerFor(svc))
			results[i] = res
			if res.Kind == BuiltError || res.Kind == Cancelled {
				return res.Err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

func (p *Pool) buildOne(ctx context.Context, svc Buildable, killer command.Killer) Result {
	emit := p.Emitter
	if ctx.Err() != nil {
		// errgroup already cancelled gctx for every goroutine once the
		// first build failed; a build still waiting on the semaphore
		// must surface Cancelled, never BuiltError, once it gets its turn.
		return Result{ServiceID: svc.ServiceID, Kind: Cancelled, Err: engineerr.New(engineerr.KindCancelled, event.Details{}, "build cancelled", ctx.Err())}
	}
	if !svc.ForceBuild {
		exists, err := p.Registry.ImageExists(ctx, svc.Image)
		if err != nil {
			return Result{ServiceID: svc.ServiceID, Kind: BuiltError, Err: engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "checking if image already exists", err)}
		}
		if exists {
			emit.Info(event.StageEnvironmentBuild, fmt.Sprintf("image %s:%s already exists, skipping build", svc.Image.Repository, svc.Image.Tag))
			return Result{ServiceID: svc.ServiceID, Kind: AlreadyExists}
		}
	}

	if _, err := p.Registry.CreateRepository(ctx, svc.Image.Repository, svc.RetentionSecs, svc.Tags); err != nil {
		return Result{ServiceID: svc.ServiceID, Kind: BuiltError, Err: engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "creating repository", err)}
	}

	spec := p.buildCommandSpec(svc)
	res := p.Runner.Run(ctx, spec, killer,
		func(line string) { emit.Info(event.StageEnvironmentBuild, line) },
		func(line string) { emit.Warn(event.StageEnvironmentBuild, line) },
	)
	switch res.Kind {
	case command.AbortedKind, command.TimeoutKind:
		return Result{ServiceID: svc.ServiceID, Kind: Cancelled, Err: engineerr.New(engineerr.KindCancelled, event.Details{}, "build cancelled", res.Err)}
	case command.ExitStatusKind:
		return Result{ServiceID: svc.ServiceID, Kind: BuiltError, Err: engineerr.New(engineerr.KindUser, event.Details{}, "Look at the build logs", res.Err)}
	case command.ExecutionError:
		return Result{ServiceID: svc.ServiceID, Kind: BuiltError, Err: engineerr.Wrap(engineerr.KindInternal, event.Details{}, "invoking builder", res.Err)}
	}

	if err := p.tagAndPush(ctx, svc, killer); err != nil {
		return Result{ServiceID: svc.ServiceID, Kind: BuiltError, Err: err}
	}

	emit.Info(event.StageEnvironmentBuild, fmt.Sprintf("built %s:%s", svc.Image.Repository, svc.Image.Tag))
	return Result{ServiceID: svc.ServiceID, Kind: Built}
}

// disableCacheBuildArg is the request-side control variable (spec.md
// §4.8's QOVERY_DISABLE_BUILD_CACHE) that toggles DisableCache; it is
// never forwarded to the build as a real --build-arg/--env pair.
const disableCacheBuildArg = "QOVERY_DISABLE_BUILD_CACHE"

func (p *Pool) buildCommandSpec(svc Buildable) command.Spec {
	ref := fmt.Sprintf("%s/%s:%s", svc.Image.Endpoint, svc.Image.Repository, svc.Image.Tag)

	if svc.DockerfilePath == "" {
		args := []string{"build", svc.ContextDir, "--builder", "heroku/builder:24", "--tag", ref}
		for k, v := range svc.BuildArgs {
			if strings.EqualFold(k, disableCacheBuildArg) {
				continue
			}
			args = append(args, "--env", fmt.Sprintf("%s=%s", k, v))
		}
		return command.Spec{Bin: "pack", Args: args}
	}

	args := []string{"build", "-f", svc.DockerfilePath, "-t", ref}
	for k, v := range svc.BuildArgs {
		if strings.EqualFold(k, disableCacheBuildArg) {
			continue
		}
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, v))
	}
	if svc.DisableCache || strings.EqualFold(svc.BuildArgs[disableCacheBuildArg], "true") {
		args = append(args, "--no-cache")
	}
	args = append(args, svc.ContextDir)
	return command.Spec{Bin: "docker", Args: args}
}

func (p *Pool) tagAndPush(ctx context.Context, svc Buildable, killer command.Killer) error {
	ref := fmt.Sprintf("%s/%s:%s", svc.Image.Endpoint, svc.Image.Repository, svc.Image.Tag)
	res := p.Runner.Run(ctx, command.Spec{Bin: "docker", Args: []string{"push", ref}}, killer, nil, nil)
	if !res.IsSuccess() {
		return engineerr.New(engineerr.KindInfrastructure, event.Details{}, "docker push failed: "+res.Message, res.Err)
	}
	return nil
}
