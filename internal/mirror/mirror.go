// Package mirror copies a source image into a cluster-private mirror
// repository so subsequent pulls don't need rotating user credentials
// (spec.md §4.5). The long-running pull/push watchdog is grounded on
// cli/core/tunnel.go's stderr-polling goroutine paired with process
// lifetime management; here it is generalized into a strict
// start-watchdog / start-worker / join-worker / stop-watchdog /
// join-watchdog sequence using an atomic stop flag instead of a PID
// liveness check.
package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/registry"
	"github.com/deployforge/engine/internal/retry"
)

// Mode records whether the mirror repository is shared cluster-wide or
// owned by one service. Mirror does not read it and never deletes a
// mirrored image, in either mode.
type Mode string

const (
	ModeCluster Mode = "Cluster"
	ModeService Mode = "Service"
)

// Status classifies the outcome of one mirror operation, surfaced in
// per-step metrics (spec.md §8, internal/metrics).
type Status string

const (
	StatusMirrored Status = "Mirrored"
	StatusSkip     Status = "Skip"
	StatusError    Status = "Error"
)

const (
	maxTagLength          = 128
	loginRetryAttempts    = 4
	loginRetryBase        = 2 * time.Second
	transferRetryAttempts = 3
	transferRetryDelay    = 1 * time.Second
	transferTimeout       = 15 * time.Minute
	watchdogInterval      = 60 * time.Second
)

// Destination is the computed (endpoint, repository, tag) of a mirrored
// image, per spec.md §4.5 step 1.
type Destination struct {
	Endpoint   string
	Repository string
	Tag        string
}

func (d Destination) Ref() string {
	return fmt.Sprintf("%s/%s:%s", d.Endpoint, d.Repository, d.Tag)
}

// TagForMirror builds the deterministic mirror tag: the source image
// name with '/' replaced by '.', followed by the original tag and the
// deployment's long id, truncated to 128 ASCII-safe characters per OCI
// tag rules (spec.md §4.5 step 1).
func TagForMirror(imageName, originalTag, longID string) string {
	safeName := strings.ReplaceAll(imageName, "/", ".")
	tag := fmt.Sprintf("%s.%s.%s", safeName, originalTag, longID)
	tag = sanitizeOCITag(tag)
	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}
	return tag
}

// sanitizeOCITag keeps only [A-Za-z0-9_.-], replacing everything else
// with '-', and ensures the tag does not start with '.' or '-' (OCI tag
// grammar: must start with a word character).
func sanitizeOCITag(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	for len(out) > 0 && (out[0] == '.' || out[0] == '-') {
		out = out[1:]
	}
	if out == "" {
		out = "image"
	}
	return out
}

// Request describes one service's mirror operation.
type Request struct {
	ServiceID   string
	Source      registry.Image
	Destination Destination
	Mode        Mode
}

// Mirror runs the pull/tag/push pipeline of spec.md §4.5. The source
// registry credentials are passed to Run, whose login step is retried
// independently of the transfer step.
type Mirror struct {
	DestRegistry registry.Adapter
	Runner       *command.Runner
	Emitter      event.Emitter
}

func New(destRegistry registry.Adapter, runner *command.Runner, emitter event.Emitter) *Mirror {
	return &Mirror{DestRegistry: destRegistry, Runner: runner, Emitter: emitter}
}

// Run executes the full algorithm for one request and returns the
// observed Status.
func (m *Mirror) Run(ctx context.Context, req Request, sourceUsername, sourcePassword string) (Status, error) {
	exists, err := m.DestRegistry.ImageExists(ctx, registry.Image{
		Repository: req.Destination.Repository,
		Tag:        req.Destination.Tag,
	})
	if err != nil {
		return StatusError, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "checking mirror destination", err)
	}
	if exists {
		m.Emitter.Info(event.StageEnvironmentDeploy, fmt.Sprintf("mirror %s already exists, skipping", req.Destination.Ref()))
		return StatusSkip, nil
	}

	if err := m.login(ctx, req.Source.Endpoint, sourceUsername, sourcePassword); err != nil {
		return StatusError, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "logging in to source registry", err)
	}

	if err := m.transfer(ctx, req); err != nil {
		return StatusError, err
	}

	return StatusMirrored, nil
}

func (m *Mirror) login(ctx context.Context, endpoint, username, password string) error {
	if username == "" {
		return nil
	}
	policy := retry.Fibonacci(loginRetryAttempts, loginRetryBase)
	return retry.Do(ctx, policy, func(attempt int) error {
		res := m.Runner.Run(ctx, command.Spec{
			Bin:  "docker",
			Args: []string{"login", endpoint, "--username", username, "--password", password},
		}, command.Killer{}, nil, nil)
		if !res.IsSuccess() {
			return fmt.Errorf("docker login to %s failed: %s", endpoint, res.Message)
		}
		return nil
	})
}

func (m *Mirror) transfer(ctx context.Context, req Request) error {
	policy := retry.Fixed(transferRetryAttempts, transferRetryDelay)
	return retry.Do(ctx, policy, func(attempt int) error {
		sourceRef := fmt.Sprintf("%s/%s:%s", req.Source.Endpoint, req.Source.Repository, req.Source.Tag)
		destRef := req.Destination.Ref()

		deadline := time.Now().Add(transferTimeout)
		killer := command.Killer{Deadline: deadline}

		var stopped int32
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go m.watchdog(req, &stopped, done, &wg)

		stepErr := m.inspectManifest(ctx, sourceRef, killer)
		if stepErr == nil {
			steps := [][]string{
				{"pull", sourceRef},
				{"tag", sourceRef, destRef},
				{"push", destRef},
			}
			for _, args := range steps {
				res := m.Runner.Run(ctx, command.Spec{Bin: "docker", Args: args}, killer, nil, nil)
				if !res.IsSuccess() {
					stepErr = fmt.Errorf("docker %s failed: %s", args[0], res.Message)
					break
				}
			}
		}

		atomic.StoreInt32(&stopped, 1)
		close(done)
		wg.Wait()

		return stepErr
	})
}

// inspectManifest confirms the source reference actually resolves before
// the pull, per spec.md §4.5 step 4. `docker manifest inspect` fails
// against registries that reject anonymous manifest-list queries, so a
// failed docker inspect falls back to `skopeo inspect`, which carries its
// own auth flow.
func (m *Mirror) inspectManifest(ctx context.Context, sourceRef string, killer command.Killer) error {
	res := m.Runner.Run(ctx, command.Spec{Bin: "docker", Args: []string{"manifest", "inspect", sourceRef}}, killer, nil, nil)
	if res.IsSuccess() {
		return nil
	}
	res = m.Runner.Run(ctx, command.Spec{Bin: "skopeo", Args: []string{"inspect", "docker://" + sourceRef}}, killer, nil, nil)
	if !res.IsSuccess() {
		return fmt.Errorf("inspecting source manifest %s failed: %s", sourceRef, res.Message)
	}
	return nil
}

// watchdog logs a "still in progress" line every watchdogInterval until
// told to stop, mirroring tunnel.go's stderr-polling goroutine but
// driven by an atomic flag instead of PID liveness (the command package
// already owns process lifecycle).
func (m *Mirror) watchdog(req Request, stopped *int32, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if atomic.LoadInt32(stopped) == 1 {
				return
			}
			m.Emitter.Info(event.StageEnvironmentDeploy, fmt.Sprintf("mirroring %s still in progress", req.ServiceID))
		}
	}
}
