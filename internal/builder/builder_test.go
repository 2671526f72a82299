package builder

import (
	"context"
	"testing"

	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/registry"
)

func TestSizeClampsToServiceCount(t *testing.T) {
	services := []Buildable{{ServiceID: "a"}, {ServiceID: "b"}}
	h := Size(services, 10, nil)
	if h.NBBuilders != 2 {
		t.Fatalf("expected NBBuilders=2, got %d", h.NBBuilders)
	}
}

func TestSizeForcesSerialOnBuildpacks(t *testing.T) {
	services := []Buildable{{ServiceID: "a"}, {ServiceID: "b", UsesBuildpacks: true}}
	var warned string
	h := Size(services, 10, func(msg string) { warned = msg })
	if h.NBBuilders != 1 {
		t.Fatalf("expected NBBuilders=1 when buildpacks present, got %d", h.NBBuilders)
	}
	if warned == "" {
		t.Fatal("expected a warning to be logged for buildpacks")
	}
}

func TestSizeUsesMaxOfRequestedResources(t *testing.T) {
	services := []Buildable{{ServiceID: "a", MaxCPUInMilli: 4000, MaxRAMInGiB: 8}}
	h := Size(services, 1, nil)
	if h.MaxCPU != 4000 || h.MaxRAM != 8 {
		t.Fatalf("expected resources to follow the max requested service, got %+v", h)
	}
}

func TestSizeFloorsAtDefaults(t *testing.T) {
	services := []Buildable{{ServiceID: "a"}}
	h := Size(services, 1, nil)
	if h.MaxCPU != defaultMaxCPUMilli || h.MaxRAM != defaultMaxRAMGiB {
		t.Fatalf("expected defaults when no service requests more, got %+v", h)
	}
}

func TestValidateArchRejectsMismatch(t *testing.T) {
	services := []Buildable{
		{ServiceID: "a", RequiredArch: []string{"linux/amd64"}},
		{ServiceID: "b", RequiredArch: []string{"linux/arm64"}},
	}
	if err := ValidateArch(services); err == nil {
		t.Fatal("expected an error for mismatched architecture requirements")
	}
}

func TestValidateArchAllowsMatchingOrAbsent(t *testing.T) {
	services := []Buildable{
		{ServiceID: "a", RequiredArch: []string{"linux/amd64", "linux/arm64"}},
		{ServiceID: "b", RequiredArch: []string{"linux/arm64", "linux/amd64"}},
		{ServiceID: "c"},
	}
	if err := ValidateArch(services); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type stubAdapter struct {
	exists  bool
	existsErr error
}

func (s *stubAdapter) Kind() registry.Kind { return registry.KindGeneric }
func (s *stubAdapter) CreateRegistry(context.Context) error { return nil }
func (s *stubAdapter) CreateRepository(context.Context, string, int64, map[string]string) (registry.CreateRepositoryResult, error) {
	return registry.CreateRepositoryResult{Created: true}, nil
}
func (s *stubAdapter) GetRepository(context.Context, string) (registry.Repository, bool, error) {
	return registry.Repository{}, false, nil
}
func (s *stubAdapter) DeleteRepository(context.Context, string) error { return nil }
func (s *stubAdapter) DeleteImage(context.Context, registry.Image) error { return nil }
func (s *stubAdapter) ImageExists(context.Context, registry.Image) (bool, error) {
	return s.exists, s.existsErr
}
func (s *stubAdapter) Info() registry.Info { return registry.Info{} }
func (s *stubAdapter) GetImageName(logical string) string      { return logical }
func (s *stubAdapter) GetRepositoryName(logical string) string { return logical }

func TestBuildOneSkipsWhenImageExists(t *testing.T) {
	p := NewPool(Handle{NBBuilders: 1}, &stubAdapter{exists: true}, command.NewRunner(), event.Emitter{})
	res := p.buildOne(context.Background(), Buildable{ServiceID: "svc-1", Image: registry.Image{Repository: "r", Tag: "t"}}, command.Killer{})
	if res.Kind != AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v (%v)", res.Kind, res.Err)
	}
}

// S4: once the pool's shared context is cancelled (errgroup cancels
// every goroutine after the first failure), a build still waiting its
// turn must report Cancelled, never BuiltError, even though the very
// first call it would make (ImageExists) could itself return a wrapped
// context.Canceled that looks like an infrastructure failure.
func TestBuildOneReturnsCancelledOnAlreadyCancelledContext(t *testing.T) {
	p := NewPool(Handle{NBBuilders: 1}, &stubAdapter{existsErr: context.Canceled}, command.NewRunner(), event.Emitter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.buildOne(ctx, Buildable{ServiceID: "svc-1", Image: registry.Image{Repository: "r", Tag: "t"}}, command.Killer{})
	if res.Kind != Cancelled {
		t.Fatalf("expected Cancelled, got %v (%v)", res.Kind, res.Err)
	}
}

func TestBuildCommandSpecDisablesCacheViaControlVariable(t *testing.T) {
	p := &Pool{}
	svc := Buildable{
		ServiceID:      "svc-1",
		DockerfilePath: "Dockerfile",
		ContextDir:     ".",
		BuildArgs:      map[string]string{"QOVERY_DISABLE_BUILD_CACHE": "true", "PORT": "8080"},
	}
	spec := p.buildCommandSpec(svc)

	foundNoCache := false
	for _, a := range spec.Args {
		if a == "--no-cache" {
			foundNoCache = true
		}
		if a == "QOVERY_DISABLE_BUILD_CACHE=true" {
			t.Fatalf("control variable must not be forwarded as a --build-arg, got args %v", spec.Args)
		}
	}
	if !foundNoCache {
		t.Fatalf("expected --no-cache in docker build args, got %v", spec.Args)
	}
}

func TestBuildCommandSpecKeepsOtherBuildArgs(t *testing.T) {
	p := &Pool{}
	svc := Buildable{
		ServiceID:      "svc-1",
		DockerfilePath: "Dockerfile",
		ContextDir:     ".",
		BuildArgs:      map[string]string{"PORT": "8080"},
	}
	spec := p.buildCommandSpec(svc)

	found := false
	for i, a := range spec.Args {
		if a == "--build-arg" && i+1 < len(spec.Args) && spec.Args[i+1] == "PORT=8080" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PORT=8080 among --build-arg pairs, got %v", spec.Args)
	}
}
