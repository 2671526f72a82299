// Package kube wraps one Helm release per service (spec.md §4.6),
// re-targeting the teacher's reconcile-one-concern-per-function shape
// (internal/controller/devstagingenvironment_controller.go:
// reconcileDeployment/reconcileService/reconcileIngress/
// reconcileDependencies, each returning early on error and recording a
// status condition) from a CR-watching loop into an imperative
// one-shot apply driven by the deployment orchestrator.
package kube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// Target bundles the pieces of cluster access every kube operation
// needs: the Helm action configuration (already scoped to a namespace)
// and a controller-runtime client.Client for the introspection and
// object patches Helm doesn't cover (pod listing, event listing, PVC
// resize), the same client type the teacher's reconciler embeds.
type Target struct {
	HelmCfg   *action.Configuration
	Client    client.Client
	Namespace string
}

// NewTarget builds a Target from an already-configured Helm action
// configuration and controller-runtime client, scoped to namespace.
func NewTarget(c client.Client, helmCfg *action.Configuration, namespace string) *Target {
	return &Target{HelmCfg: helmCfg, Client: c, Namespace: namespace}
}

// Release describes one Helm-managed service deployment (spec.md §4.6
// "Inputs").
type Release struct {
	Name              string
	ChartPath         string
	Namespace         string
	Values            map[string]interface{}
	OverrideValuesDir string
	Selector          string // label selector for post-apply introspection
	StartupTimeout    time.Duration
}

// Action is one of the five lifecycle verbs below: the four of spec.md
// §4.6/§4.7 plus unpause.
type Action string

const (
	ActionCreate  Action = "Create"
	ActionDelete  Action = "Delete"
	ActionRestart Action = "Restart"
	ActionPause   Action = "Pause"
	ActionUnpause Action = "Unpause"
)

// Apply dispatches to the concern-specific function for the action,
// the same one-function-per-concern shape as reconcileDeployment/
// reconcileService/reconcileIngress, just driven imperatively instead
// of by a watch event.
func (t *Target) Apply(ctx context.Context, rel Release, act Action, emit event.Emitter) error {
	switch act {
	case ActionCreate:
		return t.create(ctx, rel, emit)
	case ActionDelete:
		return t.delete(ctx, rel, emit)
	case ActionRestart:
		return t.restart(ctx, rel, emit)
	case ActionPause:
		return t.pause(ctx, rel, emit)
	case ActionUnpause:
		return t.unpause(ctx, rel, emit)
	default:
		return engineerr.New(engineerr.KindInternal, event.Details{}, fmt.Sprintf("unknown kube action %q", act), nil)
	}
}

// create runs `helm upgrade --install --atomic --wait`. On non-zero
// exit it collects a post-mortem (pod status and warning-event snapshot;
// container logs are not collected) and attaches
// it to the returned error instead of retrying, per spec.md §4.6.
func (t *Target) create(ctx context.Context, rel Release, emit event.Emitter) error {
	chart, err := loader.Load(rel.ChartPath)
	if err != nil {
		return engineerr.Wrap(engineerr.KindUser, event.Details{}, "loading chart "+rel.ChartPath, err)
	}

	install := action.NewUpgrade(t.HelmCfg)
	install.Install = true
	install.Atomic = true
	install.Wait = true
	install.Namespace = rel.Namespace
	install.Timeout = rel.StartupTimeout

	hist := action.NewHistory(t.HelmCfg)
	hist.Max = 1
	exists := true
	if _, err := hist.Run(rel.Name); err != nil {
		exists = false
	}

	var runErr error
	if exists {
		_, runErr = install.Run(rel.Name, chart, rel.Values)
	} else {
		inst := action.NewInstall(t.HelmCfg)
		inst.ReleaseName = rel.Name
		inst.Namespace = rel.Namespace
		inst.Atomic = true
		inst.Wait = true
		inst.Timeout = rel.StartupTimeout
		_, runErr = inst.Run(chart, rel.Values)
	}

	if runErr != nil {
		postMortem := t.collectPostMortem(ctx, rel)
		emit.Error(event.StageEnvironmentDeploy, "deployment failed", postMortem)
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "helm upgrade --install failed: "+postMortem, runErr)
	}

	emit.Info(event.StageEnvironmentDeployed, "release "+rel.Name+" applied")
	return nil
}

// delete runs `helm uninstall`, idempotent on "release not found".
func (t *Target) delete(ctx context.Context, rel Release, emit event.Emitter) error {
	uninstall := action.NewUninstall(t.HelmCfg)
	if _, err := uninstall.Run(rel.Name); err != nil {
		if isReleaseNotFound(err) {
			return nil
		}
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "helm uninstall failed", err)
	}
	emit.Info(event.StageEnvironmentDeleted, "release "+rel.Name+" deleted")
	return nil
}

func isReleaseNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
