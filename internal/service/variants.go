package service

import (
	"context"
	"fmt"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/kube"
)

// CloudProvider, DatabaseKind and DatabaseMode are string-backed tagged
// enums (design note §9: no generic phantom-type hierarchy; dispatch
// on the tag at the point where the Helm chart directory or Terraform
// module is chosen).
type CloudProvider string

const (
	ProviderAWS         CloudProvider = "AWS"
	ProviderGCP         CloudProvider = "GCP"
	ProviderScaleway    CloudProvider = "Scaleway"
	ProviderDO          CloudProvider = "DigitalOcean"
	ProviderSelfManaged CloudProvider = "SelfManaged"
)

type DatabaseKind string

const (
	DatabasePostgreSQL DatabaseKind = "PostgreSQL"
	DatabaseMySQL      DatabaseKind = "MySQL"
	DatabaseMongoDB    DatabaseKind = "MongoDB"
	DatabaseRedis      DatabaseKind = "Redis"
)

type DatabaseMode string

const (
	DatabaseModeManaged   DatabaseMode = "Managed"
	DatabaseModeContainer DatabaseMode = "Container"
)

// ErrUnsupportedManagedMode replaces the source's unimplemented!() panics
// (design note: "Panics on unimplemented variants") with an explicit,
// request-validation-time error.
type ErrUnsupportedManagedMode struct {
	Kind     DatabaseKind
	Provider CloudProvider
}

func (e *ErrUnsupportedManagedMode) Error() string {
	return fmt.Sprintf("managed %s databases are not supported on %s", e.Kind, e.Provider)
}

// managedSupport is the validated set of (provider, kind) pairs this
// engine can provision via Terraform. Anything absent here must be
// rejected by ValidateManagedDatabase before a deployment is ever
// attempted, never discovered mid-deploy.
var managedSupport = map[CloudProvider]map[DatabaseKind]bool{
	ProviderAWS: {DatabasePostgreSQL: true, DatabaseMySQL: true},
	ProviderGCP: {DatabasePostgreSQL: true, DatabaseMySQL: true},
}

// ValidateManagedDatabase rejects a (provider, kind) combination this
// engine has no Terraform module for, at request-parsing time.
func ValidateManagedDatabase(provider CloudProvider, kind DatabaseKind) error {
	if managedSupport[provider][kind] {
		return nil
	}
	return &ErrUnsupportedManagedMode{Kind: kind, Provider: provider}
}

// TerraformRunner is the external collaborator interface for managed
// database provisioning (spec.md §7 Non-goals: "cluster bootstrap /
// lifecycle Terraform stacks ... out of scope"). This engine only
// invokes it and waits; it cannot interrupt a running apply (spec.md
// §5 "Terraform runs cannot be interrupted").
type TerraformRunner interface {
	Apply(ctx context.Context, module string, vars map[string]string) error
	Destroy(ctx context.Context, module string) error
}

// Database is the Deployable for both managed (Terraform) and
// container (Helm) database services, dispatched on Mode.
type Database struct {
	ID        string
	DBKind    DatabaseKind
	Mode      DatabaseMode
	Provider  CloudProvider
	Module    string
	Variables map[string]string
	Terraform TerraformRunner
	Release   kube.Release
	Target    *kube.Target
	Emitter   event.Emitter
}

func (d *Database) ServiceID() string { return d.ID }
func (d *Database) Kind() Kind         { return KindDatabase }

func (d *Database) Create(ctx context.Context) error {
	if d.Mode == DatabaseModeManaged {
		if err := ValidateManagedDatabase(d.Provider, d.DBKind); err != nil {
			return engineerr.Wrap(engineerr.KindUser, event.Details{}, err.Error(), err)
		}
		if err := d.Terraform.Apply(ctx, d.Module, d.Variables); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "provisioning managed database "+d.ID, err)
		}
		return nil
	}
	return d.Target.Apply(ctx, d.Release, kube.ActionCreate, d.Emitter)
}

func (d *Database) Pause(ctx context.Context) error {
	if d.Mode == DatabaseModeManaged {
		return nil // managed databases are not paused, only the compute in front of them is
	}
	return d.Target.Apply(ctx, d.Release, kube.ActionPause, d.Emitter)
}

func (d *Database) Delete(ctx context.Context) error {
	if d.Mode == DatabaseModeManaged {
		if err := d.Terraform.Destroy(ctx, d.Module); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "destroying managed database "+d.ID, err)
		}
		return nil
	}
	return d.Target.Apply(ctx, d.Release, kube.ActionDelete, d.Emitter)
}

func (d *Database) Restart(ctx context.Context) error {
	if d.Mode == DatabaseModeManaged {
		return nil
	}
	return d.Target.Apply(ctx, d.Release, kube.ActionRestart, d.Emitter)
}

// Application is a service built from source (spec.md §3); by the
// time Create runs, the image has already been built and mirrored
// (spec.md §4.8 step 2) — this Deployable only applies the chart.
type Application struct {
	ID      string
	Release kube.Release
	Target  *kube.Target
	Emitter event.Emitter
}

func (a *Application) ServiceID() string { return a.ID }
func (a *Application) Kind() Kind        { return KindApplication }
func (a *Application) Create(ctx context.Context) error  { return a.Target.Apply(ctx, a.Release, kube.ActionCreate, a.Emitter) }
func (a *Application) Pause(ctx context.Context) error   { return a.Target.Apply(ctx, a.Release, kube.ActionPause, a.Emitter) }
func (a *Application) Delete(ctx context.Context) error  { return a.Target.Apply(ctx, a.Release, kube.ActionDelete, a.Emitter) }
func (a *Application) Restart(ctx context.Context) error { return a.Target.Apply(ctx, a.Release, kube.ActionRestart, a.Emitter) }

// Container is a prebuilt-image service; identical apply behavior to
// Application, distinguished only by the absence of a build step
// upstream in the orchestrator.
type Container struct {
	ID      string
	Release kube.Release
	Target  *kube.Target
	Emitter event.Emitter
}

func (c *Container) ServiceID() string { return c.ID }
func (c *Container) Kind() Kind        { return KindContainer }
func (c *Container) Create(ctx context.Context) error  { return c.Target.Apply(ctx, c.Release, kube.ActionCreate, c.Emitter) }
func (c *Container) Pause(ctx context.Context) error   { return c.Target.Apply(ctx, c.Release, kube.ActionPause, c.Emitter) }
func (c *Container) Delete(ctx context.Context) error  { return c.Target.Apply(ctx, c.Release, kube.ActionDelete, c.Emitter) }
func (c *Container) Restart(ctx context.Context) error { return c.Target.Apply(ctx, c.Release, kube.ActionRestart, c.Emitter) }

// HelmChart is a user-supplied chart; apply behavior is identical to
// Application, the distinction is entirely in how Release.ChartPath
// and Release.Values were assembled upstream (from the user's chart
// plus OverrideValuesDir rather than a generated chart).
type HelmChart struct {
	ID      string
	Release kube.Release
	Target  *kube.Target
	Emitter event.Emitter
}

func (h *HelmChart) ServiceID() string { return h.ID }
func (h *HelmChart) Kind() Kind        { return KindHelmChart }
func (h *HelmChart) Create(ctx context.Context) error  { return h.Target.Apply(ctx, h.Release, kube.ActionCreate, h.Emitter) }
func (h *HelmChart) Pause(ctx context.Context) error   { return h.Target.Apply(ctx, h.Release, kube.ActionPause, h.Emitter) }
func (h *HelmChart) Delete(ctx context.Context) error  { return h.Target.Apply(ctx, h.Release, kube.ActionDelete, h.Emitter) }
func (h *HelmChart) Restart(ctx context.Context) error { return h.Target.Apply(ctx, h.Release, kube.ActionRestart, h.Emitter) }

// Router is ingress+TLS; deployed last in the environment ordering
// (spec.md §4.8 step 3) so its certificate requests don't race ahead
// of unhealthy backends. Create additionally verifies the configured
// domain resolves before applying the chart.
type Router struct {
	ID      string
	Domain  string
	Release kube.Release
	Target  *kube.Target
	Emitter event.Emitter
}

func (r *Router) ServiceID() string { return r.ID }
func (r *Router) Kind() Kind        { return KindRouter }

func (r *Router) Create(ctx context.Context) error {
	if r.Domain != "" {
		if err := kube.CheckDomain(ctx, r.Domain); err != nil {
			return err
		}
	}
	return r.Target.Apply(ctx, r.Release, kube.ActionCreate, r.Emitter)
}

func (r *Router) Pause(ctx context.Context) error   { return r.Target.Apply(ctx, r.Release, kube.ActionPause, r.Emitter) }
func (r *Router) Delete(ctx context.Context) error   { return r.Target.Apply(ctx, r.Release, kube.ActionDelete, r.Emitter) }
func (r *Router) Restart(ctx context.Context) error  { return r.Target.Apply(ctx, r.Release, kube.ActionRestart, r.Emitter) }
