// Package apiv1 defines the wire types the engine accepts and emits:
// EnvironmentEngineRequest (spec.md §6 "Environment request (input)") and
// its nested service payloads. Struct/tag conventions are carried over
// from the teacher's CRD types (api/v1alpha1/devstagingenvironment_types.go:
// one struct per concern, `+optional` fields as pointers or omitempty,
// json tags on every field) generalized from a CRD spec/status split to a
// plain request/response DTO with no Kubernetes machinery attached.
package apiv1

import "time"

// Action is one of the four verbs a request can carry for a service or
// for the whole environment.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionPause   Action = "PAUSE"
	ActionDelete  Action = "DELETE"
	ActionRestart Action = "RESTART"
)

// CloudProvider is the target cluster's cloud, carried on the request so
// the engine can pick the right managed-database Terraform module and
// chart variant.
type CloudProvider string

const (
	ProviderAWS         CloudProvider = "AWS"
	ProviderGCP         CloudProvider = "GCP"
	ProviderScaleway    CloudProvider = "Scaleway"
	ProviderDO          CloudProvider = "DigitalOcean"
	ProviderSelfManaged CloudProvider = "SelfManaged"
)

// EnvironmentEngineRequest is the top-level input document (spec.md §6).
type EnvironmentEngineRequest struct {
	ExecutionID    string        `json:"executionId"`
	OrganizationID string        `json:"organizationId"`
	ProjectID      string        `json:"projectId"`
	ClusterID      string        `json:"clusterId"`
	Region         string        `json:"region"`
	Provider       CloudProvider `json:"provider"`

	Environment Environment `json:"environment"`

	// SourceEnvironmentID, when set, names an existing environment this
	// request clones service definitions from before applying overrides.
	SourceEnvironmentID string `json:"sourceEnvironmentId,omitempty"`

	// WorkspaceRoot is the filesystem root the engine lays out
	// <execution id>/applications|jobs|helm_charts/<service id>/ under.
	WorkspaceRoot string `json:"workspaceRoot"`

	// Archive configures workspace upload on task completion; nil means
	// "do not upload" (spec.md §6 "Persisted artifacts").
	Archive *ArchiveTarget `json:"archive,omitempty"`
}

// Environment is the target namespace plus its ordered service sets
// (spec.md §3 "Environment").
type Environment struct {
	ID               string `json:"id"`
	Namespace        string `json:"namespace"`
	Action           Action `json:"action"`
	MaxParallelBuild int    `json:"maxParallelBuild"`

	Applications []Application `json:"applications,omitempty"`
	Containers   []Container   `json:"containers,omitempty"`
	Jobs         []Job         `json:"jobs,omitempty"`
	HelmCharts   []HelmChart   `json:"helmCharts,omitempty"`
	Routers      []Router      `json:"routers,omitempty"`
	Databases    []Database    `json:"databases,omitempty"`
}

// ServiceCommon fields every polymorphic service variant carries
// (spec.md §3 "Service").
type ServiceCommon struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	KubeName string `json:"kubeName"`
	Action   Action `json:"action"`

	Resources   ResourceLimits    `json:"resources"`
	Ports       []Port            `json:"ports,omitempty"`
	Readiness   *ProbeSpec        `json:"readiness,omitempty"`
	Liveness    *ProbeSpec        `json:"liveness,omitempty"`
	Storage     []StorageClaim    `json:"storage,omitempty"`
	EnvVars     map[string]string `json:"envVars,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ResourceLimits are CPU/RAM requests and limits (spec.md §3 invariant:
// request <= limit, both > 0).
type ResourceLimits struct {
	CPURequestMilli int64 `json:"cpuRequestMilli"`
	CPULimitMilli   int64 `json:"cpuLimitMilli"`
	RAMRequestGiB   int64 `json:"ramRequestGiB"`
	RAMLimitGiB     int64 `json:"ramLimitGiB"`
}

// Port is one exposed container port.
type Port struct {
	Name string `json:"name"`
	Port int32  `json:"port"`
}

// ProbeSpec is a readiness or liveness probe definition, used to derive
// the per-service startup timeout (spec.md §5): max(readiness, liveness,
// 10m) where each probe-derived timeout is
// initialDelay + (timeout+period)*failureThreshold.
type ProbeSpec struct {
	Path             string        `json:"path"`
	Port             int32         `json:"port"`
	InitialDelay     time.Duration `json:"initialDelay"`
	Timeout          time.Duration `json:"timeout"`
	Period           time.Duration `json:"period"`
	FailureThreshold int           `json:"failureThreshold"`
}

// StorageClaim is one PVC this service mounts.
type StorageClaim struct {
	Name    string `json:"name"`
	SizeGiB int64  `json:"sizeGiB"`
	Path    string `json:"path"`
}

// BuildSource is either a git commit or a prebuilt image (spec.md §3
// "Build"). Exactly one of GitCommit/PrebuiltImage is set.
type BuildSource struct {
	GitURL         string   `json:"gitUrl,omitempty"`
	GitCommit      string   `json:"gitCommit,omitempty"`
	RootPath       string   `json:"rootPath,omitempty"`
	DockerfilePath string   `json:"dockerfilePath,omitempty"`
	UsesBuildpacks bool     `json:"usesBuildpacks,omitempty"`
	ForceBuild     bool     `json:"forceBuild,omitempty"`
	RequiredArch   []string `json:"requiredArch,omitempty"`

	PrebuiltImage string `json:"prebuiltImage,omitempty"`

	GitSSHKey        string `json:"gitSshKey,omitempty"`
	GitSSHPassphrase string `json:"gitSshPassphrase,omitempty"`
	GitSSHPublicKey  string `json:"gitSshPublicKey,omitempty"`
}

// Application is a service built from source or a prebuilt image and
// deployed as a Kubernetes Deployment.
type Application struct {
	ServiceCommon
	Build        BuildSource `json:"build"`
	MinInstances int32       `json:"minInstances"`
	MaxInstances int32       `json:"maxInstances"`
}

// Container is a prebuilt-image service; identical shape to Application
// minus the build step.
type Container struct {
	ServiceCommon
	Image        string `json:"image"`
	MinInstances int32  `json:"minInstances"`
}

// Schedule is a Job's trigger kind (spec.md §4.7).
type Schedule struct {
	Kind string `json:"kind"` // Cron | OnStart | OnDelete | OnPause
	Cron string `json:"cron,omitempty"`
}

// Job is a one-shot or scheduled workload (spec.md §3, §4.7). Mode ==
// "Managed" on GCP routes the job through Cloud Run Jobs instead of the
// batch/v1 Helm chart, mirroring Database's Managed/Container split.
type Job struct {
	ServiceCommon
	Build    BuildSource `json:"build"`
	Schedule Schedule    `json:"schedule"`

	Mode     string        `json:"mode,omitempty"` // Managed | Container
	CloudRun *CloudRunSpec `json:"cloudRun,omitempty"`
}

// CloudRunSpec configures a Mode=Managed Job on GCP.
type CloudRunSpec struct {
	Image               string            `json:"image"`
	Command             string            `json:"command,omitempty"`
	Args                []string          `json:"args,omitempty"`
	ServiceAccountEmail string            `json:"serviceAccountEmail,omitempty"`
	ProjectID           string            `json:"projectId"`
	Region              string            `json:"region"`
	Labels              map[string]string `json:"labels,omitempty"`
}

// HelmChart is a user-supplied chart.
type HelmChart struct {
	ServiceCommon
	ChartPath         string            `json:"chartPath"`
	OverrideValuesDir string            `json:"overrideValuesDir,omitempty"`
	Values            map[string]string `json:"values,omitempty"`
}

// Router is ingress + TLS termination in front of other services.
type Router struct {
	ServiceCommon
	Domain     string `json:"domain"`
	TargetPort int32  `json:"targetPort"`
	TLSEnabled bool   `json:"tlsEnabled"`
}

// Database is either managed (provisioned via Terraform) or a
// container database deployed via Helm (spec.md §4.8 step 3).
type Database struct {
	ServiceCommon
	Kind      string            `json:"kind"` // PostgreSQL | MySQL | MongoDB | Redis
	Mode      string            `json:"mode"` // Managed | Container
	Module    string            `json:"module,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// ArchiveTarget is the S3-compatible upload destination for the
// workspace archive (spec.md §6 "Persisted artifacts").
type ArchiveTarget struct {
	URL             string `json:"url"`
	Bucket          string `json:"bucket"`
	Key             string `json:"key"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Provider        string `json:"provider,omitempty"` // "s3" (default) | "do-spaces"
}
