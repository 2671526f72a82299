package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

func init() {
	Register(KindGeneric, func(cfg Config) (Adapter, error) {
		return NewGeneric(cfg.Endpoint, cfg.Username, cfg.Token), nil
	})
}

// Generic is the fallback adapter for any Docker Registry HTTP API V2
// compliant endpoint without a richer management API (spec.md §4.3
// "Generic"). DockerHub, Scaleway and GitHub providers embed it for the
// bits of behavior (image existence, pull-secret materialization) that
// don't differ from one Registry V2 implementation to the next.
type Generic struct {
	endpoint string
	username string
	password string
	client   *http.Client
}

func NewGeneric(endpoint, username, password string) *Generic {
	return &Generic{
		endpoint: strings.TrimRight(endpoint, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *Generic) Kind() Kind { return KindGeneric }

func (g *Generic) CreateRegistry(ctx context.Context) error { return nil }

func (g *Generic) CreateRepository(ctx context.Context, name string, retentionSeconds int64, tags map[string]string) (CreateRepositoryResult, error) {
	// Most Registry V2 implementations create repositories implicitly on
	// first push; nothing to provision ahead of time.
	repo, exists, err := g.GetRepository(ctx, name)
	if err != nil {
		return CreateRepositoryResult{}, err
	}
	if exists {
		return CreateRepositoryResult{Repository: repo, Created: false}, nil
	}
	return CreateRepositoryResult{Repository: Repository{Name: name, URL: g.endpoint + "/" + name}, Created: true}, nil
}

func (g *Generic) GetRepository(ctx context.Context, name string) (Repository, bool, error) {
	// A repository "exists" on a bare Registry V2 endpoint once it has at
	// least one tag.
	tags, err := g.listTags(ctx, name)
	if err != nil {
		return Repository{}, false, err
	}
	if len(tags) == 0 {
		return Repository{}, false, nil
	}
	return Repository{Name: name, URL: g.endpoint + "/" + name}, true, nil
}

func (g *Generic) DeleteRepository(ctx context.Context, name string) error {
	tags, err := g.listTags(ctx, name)
	if err != nil {
		return nil // missing repository is not an error
	}
	for _, tag := range tags {
		_ = g.DeleteImage(ctx, Image{Repository: name, Tag: tag})
	}
	return nil
}

func (g *Generic) DeleteImage(ctx context.Context, image Image) error {
	digest, err := g.manifestDigest(ctx, image.Repository, image.Tag)
	if err != nil {
		// Missing image is not an error (idempotent delete).
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/v2/%s/manifests/%s", g.endpoint, image.Repository, digest), nil)
	if err != nil {
		return err
	}
	g.authenticate(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete image %s:%s failed: HTTP %d", image.Repository, image.Tag, resp.StatusCode)
	}
	return nil
}

func (g *Generic) ImageExists(ctx context.Context, image Image) (bool, error) {
	_, err := g.manifestDigest(ctx, image.Repository, image.Tag)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (g *Generic) Info() Info {
	return Info{Endpoint: g.endpoint}
}

func (g *Generic) GetImageName(logical string) string      { return logical }
func (g *Generic) GetRepositoryName(logical string) string { return logical }

func (g *Generic) authenticate(req *http.Request) {
	if g.username != "" {
		req.SetBasicAuth(g.username, g.password)
	}
}

func (g *Generic) manifestDigest(ctx context.Context, repository, tag string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/v2/%s/manifests/%s", g.endpoint, repository, tag), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.docker.distribution.manifest.v2+json")
	g.authenticate(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("manifest HEAD for %s:%s returned HTTP %d", repository, tag, resp.StatusCode)
	}
	return resp.Header.Get("Docker-Content-Digest"), nil
}

func (g *Generic) listTags(ctx context.Context, repository string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v2/%s/tags/list", g.endpoint, repository), nil)
	if err != nil {
		return nil, err
	}
	g.authenticate(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags list for %s returned HTTP %d", repository, resp.StatusCode)
	}
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Tags, nil
}
