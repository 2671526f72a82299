package mirror

import (
	"context"
	"strings"
	"testing"

	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/registry"
)

type stubAdapter struct {
	exists    bool
	existsErr error
}

func (s *stubAdapter) Kind() registry.Kind { return registry.KindGeneric }
func (s *stubAdapter) CreateRegistry(context.Context) error { return nil }
func (s *stubAdapter) CreateRepository(context.Context, string, int64, map[string]string) (registry.CreateRepositoryResult, error) {
	return registry.CreateRepositoryResult{}, nil
}
func (s *stubAdapter) GetRepository(context.Context, string) (registry.Repository, bool, error) {
	return registry.Repository{}, false, nil
}
func (s *stubAdapter) DeleteRepository(context.Context, string) error    { return nil }
func (s *stubAdapter) DeleteImage(context.Context, registry.Image) error { return nil }
func (s *stubAdapter) ImageExists(context.Context, registry.Image) (bool, error) {
	return s.exists, s.existsErr
}
func (s *stubAdapter) Info() registry.Info                     { return registry.Info{} }
func (s *stubAdapter) GetImageName(logical string) string      { return logical }
func (s *stubAdapter) GetRepositoryName(logical string) string { return logical }

// S3: when the destination image already exists, Run must report
// StatusSkip without attempting a login or transfer.
func TestRunSkipsWhenDestinationImageExists(t *testing.T) {
	m := New(&stubAdapter{exists: true}, command.NewRunner(), event.Emitter{})
	status, err := m.Run(context.Background(), Request{
		ServiceID:   "svc-1",
		Destination: Destination{Endpoint: "registry.example.com", Repository: "svc-1", Tag: "t1"},
	}, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSkip {
		t.Fatalf("got status %v, want StatusSkip", status)
	}
}

func TestTagForMirrorReplacesSlashes(t *testing.T) {
	tag := TagForMirror("my-org/my-image", "v1.2.3", "abcd1234")
	if strings.Contains(tag, "/") {
		t.Fatalf("expected no slashes in mirror tag, got %q", tag)
	}
	if !strings.Contains(tag, "my-org.my-image") {
		t.Fatalf("expected image name preserved with dots, got %q", tag)
	}
}

func TestTagForMirrorTruncatesTo128(t *testing.T) {
	longID := strings.Repeat("a", 200)
	tag := TagForMirror("image", "tag", longID)
	if len(tag) > maxTagLength {
		t.Fatalf("expected tag truncated to %d chars, got %d", maxTagLength, len(tag))
	}
}

func TestTagForMirrorStripsInvalidLeadingChars(t *testing.T) {
	tag := TagForMirror("/leading-slash", "t", "id")
	if tag[0] == '.' || tag[0] == '-' {
		t.Fatalf("expected tag not to start with '.' or '-', got %q", tag)
	}
}

func TestDestinationRef(t *testing.T) {
	d := Destination{Endpoint: "registry.example.com", Repository: "repo", Tag: "t1"}
	if got := d.Ref(); got != "registry.example.com/repo:t1" {
		t.Fatalf("unexpected ref: %q", got)
	}
}
