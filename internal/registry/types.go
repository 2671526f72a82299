// Package registry is a polymorphic container-registry adapter (spec.md
// §4.3) over {DockerHub, AWS-ECR, GCP-AR, Scaleway-CR, GitHub-CR, Generic}.
// It is grounded on the teacher's pkg/ci package: a Provider interface plus
// a package-level, mutex-guarded registration map populated by each
// provider's init() (pkg/ci/registry.go, pkg/ci/types.go, pkg/ci/base.go),
// generalized from CI platforms to container registries.
package registry

import "context"

// Kind identifies a registry provider variant.
type Kind string

const (
	KindDockerHub Kind = "DockerHub"
	KindECR       Kind = "AwsEcr"
	KindGAR       Kind = "GcpArtifactRegistry"
	KindScaleway  Kind = "ScalewayCr"
	KindGitHubCR  Kind = "GithubCr"
	KindGeneric   Kind = "Generic"
)

// Image identifies one image coordinate (spec.md §3 "Image coordinate").
type Image struct {
	Endpoint   string
	Repository string
	Name       string
	Tag        string
	Digest     string
}

// Repository is the result of creating or fetching a repository.
type Repository struct {
	Name string
	URL  string
}

// Info exposes provider-level facts that don't depend on a specific image.
type Info struct {
	// Endpoint is the base registry endpoint, e.g.
	// "123456789.dkr.ecr.eu-west-3.amazonaws.com".
	Endpoint string
	// DockerConfigJSON is a base64-encoded docker config.json used to
	// materialize a Kubernetes image-pull secret, or "" if the registry
	// needs no pull secret (e.g. public DockerHub repositories).
	DockerConfigJSON string
}

// GetImageName maps a logical (service-local) image name to the
// provider's actual repository-local image name.
type ImageNamer interface {
	GetImageName(logical string) string
	GetRepositoryName(logical string) string
}

// CreateRepositoryResult reports whether create_repository actually
// created a new repository or found one that already existed
// (idempotency, spec.md §4.3).
type CreateRepositoryResult struct {
	Repository Repository
	Created    bool
}

// Adapter is the per-provider contract of spec.md §4.3.
type Adapter interface {
	Kind() Kind

	// CreateRegistry is a no-op where the registry is implicit
	// (DockerHub, ECR, GAR all have an account-wide implicit registry;
	// only Scaleway models an explicit registry-namespace resource).
	// Scaleway's is a no-op too: this package does not create the
	// registry namespace.
	CreateRegistry(ctx context.Context) error

	// CreateRepository is idempotent. retentionSeconds <= 0 means no
	// retention policy is requested. For providers with rule-based
	// repositories (ECR, GAR) this installs a retention lifecycle rule
	// at creation time.
	CreateRepository(ctx context.Context, name string, retentionSeconds int64, tags map[string]string) (CreateRepositoryResult, error)

	GetRepository(ctx context.Context, name string) (Repository, bool, error)

	// DeleteRepository is idempotent: a missing repository is not an
	// error.
	DeleteRepository(ctx context.Context, name string) error

	// DeleteImage is idempotent: a missing image is not an error.
	DeleteImage(ctx context.Context, image Image) error

	ImageExists(ctx context.Context, image Image) (bool, error)

	Info() Info
	ImageNamer
}

// Factory builds an Adapter instance from provider-specific credentials.
// Providers register a Factory, not a ready instance, because credentials
// are only known per-DeploymentTarget.
type Factory func(cfg Config) (Adapter, error)

// Config is the provider-agnostic bag of credentials/settings passed to a
// Factory. Providers read only the fields they need.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	ProjectID       string
	ServiceAccount  string // base64 JSON key or token, provider-specific
	Organization    string
	Username        string
	Token           string
	Endpoint        string
	// TestCluster lowers retention policy defaults the way ORIG's
	// context.is_test_cluster() does (1 day vs. 365 days for ECR).
	TestCluster bool
}
