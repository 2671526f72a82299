package registry

import (
	"context"
	"fmt"
)

func init() {
	Register(KindScaleway, func(cfg Config) (Adapter, error) {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("rg.%s.scw.cloud", cfg.Region)
		}
		return NewScaleway(endpoint, cfg.Token), nil
	})
}

// RepositoryNameNotValid is returned by CreateRepository/GetRepository
// when name fails CheckScalewayNamingRules, carrying the broken rule set
// (spec.md §4.3 "Scaleway: repository naming rules enforced locally").
type RepositoryNameNotValid struct {
	Name        string
	BrokenRules map[NamingRule]bool
}

func (e *RepositoryNameNotValid) Error() string {
	return fmt.Sprintf("repository name %q violates Scaleway naming rules: %v", e.Name, e.BrokenRules)
}

// Scaleway wraps Scaleway Container Registry, which is Registry V2
// compliant but additionally enforces a naming convention the engine must
// check client-side before ever calling the API (spec.md §4.3).
type Scaleway struct {
	generic *Generic
}

func NewScaleway(endpoint, secretToken string) *Scaleway {
	return &Scaleway{generic: NewGeneric(endpoint, "", secretToken)}
}

func (s *Scaleway) Kind() Kind { return KindScaleway }

func (s *Scaleway) CreateRegistry(context.Context) error { return nil }

func (s *Scaleway) CreateRepository(ctx context.Context, name string, retentionSeconds int64, tags map[string]string) (CreateRepositoryResult, error) {
	if broken := CheckScalewayNamingRules(name); broken != nil {
		return CreateRepositoryResult{}, &RepositoryNameNotValid{Name: name, BrokenRules: broken}
	}
	return s.generic.CreateRepository(ctx, name, retentionSeconds, tags)
}

func (s *Scaleway) GetRepository(ctx context.Context, name string) (Repository, bool, error) {
	if broken := CheckScalewayNamingRules(name); broken != nil {
		return Repository{}, false, &RepositoryNameNotValid{Name: name, BrokenRules: broken}
	}
	return s.generic.GetRepository(ctx, name)
}

func (s *Scaleway) DeleteRepository(ctx context.Context, name string) error {
	return s.generic.DeleteRepository(ctx, name)
}

func (s *Scaleway) DeleteImage(ctx context.Context, image Image) error {
	return s.generic.DeleteImage(ctx, image)
}

func (s *Scaleway) ImageExists(ctx context.Context, image Image) (bool, error) {
	return s.generic.ImageExists(ctx, image)
}

func (s *Scaleway) Info() Info { return s.generic.Info() }

func (s *Scaleway) GetImageName(logical string) string      { return s.generic.GetImageName(logical) }
func (s *Scaleway) GetRepositoryName(logical string) string { return s.generic.GetRepositoryName(logical) }
