package main

import (
	"time"

	"github.com/deployforge/engine/internal/builder"
	"github.com/deployforge/engine/internal/deployment"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/kube"
	"github.com/deployforge/engine/internal/mirror"
	"github.com/deployforge/engine/internal/registry"
	"github.com/deployforge/engine/internal/service"
	apiv1 "github.com/deployforge/engine/pkg/apiv1"
)

// chartPathFor returns kind's chart directory under root, the on-disk
// directory this engine renders Helm releases from (one subdirectory
// per service Kind); their contents are out of
// scope (spec.md §1's "individual provider Helm-chart trees").
func chartPathFor(root, kind string) string {
	return root + "/" + kind
}

// startupTimeoutFor derives a release's StartupTimeout from its probes
// (spec.md §5): initialDelay + (timeout+period)*failureThreshold for
// whichever of readiness/liveness is larger, floored at 10 minutes.
func startupTimeoutFor(readiness, liveness *apiv1.ProbeSpec) time.Duration {
	best := 10 * time.Minute
	for _, p := range []*apiv1.ProbeSpec{readiness, liveness} {
		if p == nil {
			continue
		}
		d := p.InitialDelay + (p.Timeout+p.Period)*time.Duration(p.FailureThreshold)
		if d > best {
			best = d
		}
	}
	return best
}

// valuesFor projects the common service fields into the Helm values a
// generated chart reads (spec.md §4.6 "Values"): resource requests/
// limits, ports, storage claims, env vars, and labels/annotations.
func valuesFor(c apiv1.ServiceCommon) map[string]interface{} {
	ports := make([]map[string]interface{}, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, map[string]interface{}{"name": p.Name, "port": p.Port})
	}
	storage := make([]map[string]interface{}, 0, len(c.Storage))
	for _, s := range c.Storage {
		storage = append(storage, map[string]interface{}{"name": s.Name, "sizeGiB": s.SizeGiB, "path": s.Path})
	}
	return map[string]interface{}{
		"resources": map[string]interface{}{
			"cpuRequestMilli": c.Resources.CPURequestMilli,
			"cpuLimitMilli":   c.Resources.CPULimitMilli,
			"ramRequestGiB":   c.Resources.RAMRequestGiB,
			"ramLimitGiB":     c.Resources.RAMLimitGiB,
		},
		"ports":       ports,
		"storage":     storage,
		"env":         c.EnvVars,
		"labels":      c.Labels,
		"annotations": c.Annotations,
	}
}

func releaseFor(chartsRootDir, kind, id, namespace string, startup time.Duration, values map[string]interface{}) kube.Release {
	return kube.Release{
		Name:           id,
		ChartPath:      chartPathFor(chartsRootDir, kind),
		Namespace:      namespace,
		Values:         values,
		Selector:       "app.kubernetes.io/instance=" + id,
		StartupTimeout: startup,
	}
}

// initialStateFor is the Handle.State a service starts this request in:
// CREATE always starts un-deployed, the other three verbs only ever
// operate on an already-deployed release (this engine does not persist
// state across requests, spec.md §3 "the request is the source of
// truth for the desired end state").
func initialStateFor(act service.Action) service.State {
	if act == service.ActionCreate {
		return service.StateNotDeployed
	}
	return service.StateDeployed
}

// transmitterFor scopes an emitter to one service for attribution in
// its events and wrapped errors.
func transmitterFor(base event.Emitter, kind event.TransmitterKind, id, name string) event.Emitter {
	return base.WithTransmitter(event.Transmitter{Kind: kind, ID: id, Name: name})
}

// buildContext carries everything buildItems needs to translate one
// apiv1.Environment into deployment.Items plus the build/mirror work
// that must run before CREATE applies anything (spec.md §4.8 step 2).
type buildContext struct {
	Target        *kube.Target
	ChartsRoot    string
	Namespace     string
	Action        service.Action
	Provider      service.CloudProvider
	Emitter       event.Emitter
	Terraform     service.TerraformRunner
	CloudRun      service.CloudRunRunner
	DestRegistry  registry.Adapter
	SourceImageOf func(logical string) registry.Image // resolves a build's prebuilt/pushed source image
	LongID        string
}

// buildItems translates one apiv1.Environment into the deployment.Item
// set (unordered; deployment.Order applies spec.md §4.8 step 3's
// sequence) plus the BuildAndMirror work CREATE must run first.
func buildItems(env apiv1.Environment, bc buildContext) ([]deployment.Item, []deployment.BuildAndMirror) {
	var items []deployment.Item
	var buildAndMirror []deployment.BuildAndMirror

	for _, a := range env.Applications {
		emit := transmitterFor(bc.Emitter, event.TransmitterApplication, a.ID, a.Name)
		rel := releaseFor(bc.ChartsRoot, "application", a.ID, bc.Namespace, startupTimeoutFor(a.Readiness, a.Liveness), valuesFor(a.ServiceCommon))
		dep := &service.Application{ID: a.ID, Release: rel, Target: bc.Target, Emitter: emit}
		items = append(items, deployment.Item{Handle: &service.Handle{Deployable: dep, State: initialStateFor(bc.Action)}, Kind: service.KindApplication})

		if bc.Action == service.ActionCreate && a.Build.GitURL != "" {
			buildAndMirror = append(buildAndMirror, buildAndMirrorFor(a.ID, a.Build, a.Resources, bc))
		}
	}

	for _, c := range env.Containers {
		emit := transmitterFor(bc.Emitter, event.TransmitterContainer, c.ID, c.Name)
		rel := releaseFor(bc.ChartsRoot, "container", c.ID, bc.Namespace, startupTimeoutFor(c.Readiness, c.Liveness), valuesFor(c.ServiceCommon))
		dep := &service.Container{ID: c.ID, Release: rel, Target: bc.Target, Emitter: emit}
		items = append(items, deployment.Item{Handle: &service.Handle{Deployable: dep, State: initialStateFor(bc.Action)}, Kind: service.KindContainer})
	}

	for _, j := range env.Jobs {
		emit := transmitterFor(bc.Emitter, event.TransmitterJob, j.ID, j.Name)
		rel := releaseFor(bc.ChartsRoot, "job", j.ID, bc.Namespace, startupTimeoutFor(j.Readiness, j.Liveness), valuesFor(j.ServiceCommon))
		dep := &service.Job{
			ID:       j.ID,
			Release:  rel,
			Target:   bc.Target,
			Schedule: service.Schedule(j.Schedule.Kind),
			Emitter:  emit,
			Mode:     service.DatabaseMode(j.Mode),
			Provider: bc.Provider,
			CloudRun: bc.CloudRun,
		}
		if j.CloudRun != nil {
			dep.CloudRunImage = j.CloudRun.Image
			dep.CloudRunCommand = j.CloudRun.Command
			dep.CloudRunArgs = j.CloudRun.Args
			dep.CloudRunServiceAccountEmail = j.CloudRun.ServiceAccountEmail
			dep.CloudRunProjectID = j.CloudRun.ProjectID
			dep.CloudRunRegion = j.CloudRun.Region
			dep.CloudRunLabels = j.CloudRun.Labels
		}
		items = append(items, deployment.Item{Handle: &service.Handle{Deployable: dep, State: initialStateFor(bc.Action)}, Kind: service.KindJob})

		if bc.Action == service.ActionCreate && j.Build.GitURL != "" {
			buildAndMirror = append(buildAndMirror, buildAndMirrorFor(j.ID, j.Build, j.Resources, bc))
		}
	}

	for _, h := range env.HelmCharts {
		emit := transmitterFor(bc.Emitter, event.TransmitterHelmChart, h.ID, h.Name)
		values := make(map[string]interface{}, len(h.Values))
		for k, v := range h.Values {
			values[k] = v
		}
		rel := kube.Release{
			Name:              h.ID,
			ChartPath:         h.ChartPath,
			Namespace:         bc.Namespace,
			Values:            values,
			OverrideValuesDir: h.OverrideValuesDir,
			Selector:          "app.kubernetes.io/instance=" + h.ID,
			StartupTimeout:    startupTimeoutFor(h.Readiness, h.Liveness),
		}
		dep := &service.HelmChart{ID: h.ID, Release: rel, Target: bc.Target, Emitter: emit}
		items = append(items, deployment.Item{Handle: &service.Handle{Deployable: dep, State: initialStateFor(bc.Action)}, Kind: service.KindHelmChart})
	}

	for _, r := range env.Routers {
		emit := transmitterFor(bc.Emitter, event.TransmitterRouter, r.ID, r.Name)
		values := map[string]interface{}{
			"domain":     r.Domain,
			"targetPort": r.TargetPort,
			"tlsEnabled": r.TLSEnabled,
		}
		rel := releaseFor(bc.ChartsRoot, "router", r.ID, bc.Namespace, startupTimeoutFor(r.Readiness, r.Liveness), values)
		dep := &service.Router{ID: r.ID, Domain: r.Domain, Release: rel, Target: bc.Target, Emitter: emit}
		items = append(items, deployment.Item{Handle: &service.Handle{Deployable: dep, State: initialStateFor(bc.Action)}, Kind: service.KindRouter})
	}

	for _, d := range env.Databases {
		emit := transmitterFor(bc.Emitter, event.TransmitterDatabase, d.ID, d.Name)
		values := map[string]interface{}{"kind": string(d.Kind), "mode": string(d.Mode)}
		rel := releaseFor(bc.ChartsRoot, "database", d.ID, bc.Namespace, startupTimeoutFor(d.Readiness, d.Liveness), values)
		dep := &service.Database{
			ID:        d.ID,
			DBKind:    service.DatabaseKind(d.Kind),
			Mode:      service.DatabaseMode(d.Mode),
			Provider:  bc.Provider,
			Module:    d.Module,
			Variables: d.Variables,
			Terraform: bc.Terraform,
			Release:   rel,
			Target:    bc.Target,
			Emitter:   emit,
		}
		items = append(items, deployment.Item{Handle: &service.Handle{Deployable: dep, State: initialStateFor(bc.Action)}, Kind: service.KindDatabase})
	}

	return items, buildAndMirror
}

// buildAndMirrorFor assembles the builder.Buildable + mirror.Request
// pair for one service with a buildable source (spec.md §4.8 step 2).
func buildAndMirrorFor(serviceID string, src apiv1.BuildSource, res apiv1.ResourceLimits, bc buildContext) deployment.BuildAndMirror {
	sourceImage := bc.SourceImageOf(serviceID)
	destTag := mirror.TagForMirror(sourceImage.Name, sourceImage.Tag, bc.LongID)
	info := bc.DestRegistry.Info()
	destRepo := bc.DestRegistry.GetRepositoryName(serviceID)

	return deployment.BuildAndMirror{
		Build: builder.Buildable{
			ServiceID:      serviceID,
			UsesBuildpacks: src.UsesBuildpacks,
			MaxCPUInMilli:  res.CPULimitMilli,
			MaxRAMInGiB:    res.RAMLimitGiB,
			Image:          sourceImage,
			ForceBuild:     src.ForceBuild,
			ContextDir:     src.RootPath,
			DockerfilePath: src.DockerfilePath,
			RequiredArch:   src.RequiredArch,
		},
		Mirror: mirror.Request{
			ServiceID: serviceID,
			Source:    sourceImage,
			Destination: mirror.Destination{
				Endpoint:   info.Endpoint,
				Repository: destRepo,
				Tag:        destTag,
			},
			Mode: mirror.ModeService,
		},
	}
}
