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
	Register(KindGitHubCR, func(cfg Config) (Adapter, error) {
		return NewGitHubCR(cfg.Organization, cfg.Token), nil
	})
}

// GitHubCR wraps GitHub Container Registry. Image deletion does not map
// onto the plain Registry V2 API: GitHub tracks its own package
// "versions" (one per digest) instead of tags, forbids deleting a
// version that carries the last remaining tag, and leaves orphaned
// multi-arch layers behind unless their digests are deleted explicitly.
// Ported from original_source/src/container_registry/github_cr.rs
// delete_image.
type GitHubCR struct {
	generic      *Generic
	organization string
	token        string
	client       *http.Client
}

func NewGitHubCR(organization, token string) *GitHubCR {
	return &GitHubCR{
		generic:      NewGeneric("https://ghcr.io", organization, token),
		organization: organization,
		token:        token,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GitHubCR) Kind() Kind { return KindGitHubCR }

func (g *GitHubCR) CreateRegistry(context.Context) error { return nil }

func (g *GitHubCR) CreateRepository(ctx context.Context, name string, retentionSeconds int64, tags map[string]string) (CreateRepositoryResult, error) {
	return g.generic.CreateRepository(ctx, name, retentionSeconds, tags)
}

func (g *GitHubCR) GetRepository(ctx context.Context, name string) (Repository, bool, error) {
	return g.generic.GetRepository(ctx, name)
}

// packageName strips the organization prefix: GitHub's package API wants
// "engine", not "org/engine" (original_source: "Github api does not want
// the user prefix. i.e: qovery/engine -> engine").
func packageName(name string) string {
	if _, repo, found := strings.Cut(name, "/"); found {
		return repo
	}
	return name
}

func (g *GitHubCR) DeleteRepository(ctx context.Context, name string) error {
	url := fmt.Sprintf("https://api.github.com/orgs/%s/packages/container/%s", g.organization, packageName(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	g.authenticate(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete GitHub package %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete GitHub package %s failed: HTTP %d", name, resp.StatusCode)
	}
	return nil
}

type githubPackageVersion struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"` // digest, starts with sha256:
	Metadata struct {
		Container struct {
			Tags []string `json:"tags"`
		} `json:"container"`
	} `json:"metadata"`
}

func (g *GitHubCR) listVersions(ctx context.Context, repository string) ([]githubPackageVersion, error) {
	url := fmt.Sprintf("https://api.github.com/orgs/%s/packages/container/%s/versions", g.organization, packageName(repository))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list GitHub package versions for %s failed: HTTP %d", repository, resp.StatusCode)
	}
	var versions []githubPackageVersion
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return nil, fmt.Errorf("decode GitHub package versions for %s: %w", repository, err)
	}
	return versions, nil
}

func (g *GitHubCR) deleteVersion(ctx context.Context, repository string, versionID int64) error {
	url := fmt.Sprintf("https://api.github.com/orgs/%s/packages/container/%s/versions/%d", g.organization, packageName(repository), versionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	g.authenticate(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("delete GitHub package version %d failed: HTTP %d", versionID, resp.StatusCode)
}

func (g *GitHubCR) DeleteImage(ctx context.Context, image Image) error {
	versions, err := g.listVersions(ctx, image.Repository)
	if err != nil {
		return fmt.Errorf("delete GitHub image %s:%s: %w", image.Repository, image.Tag, err)
	}

	var tags []string
	for _, v := range versions {
		tags = append(tags, v.Metadata.Container.Tags...)
	}
	// GitHub forbids deleting the last remaining tag of a package; the
	// whole package must go instead.
	if len(tags) == 1 && tags[0] == image.Tag {
		return g.DeleteRepository(ctx, image.Repository)
	}

	digests, err := g.manifestDigests(ctx, image.Repository, image.Tag)
	if err != nil {
		// Image already gone.
		return nil
	}
	matchingDigests := make(map[string]bool, len(digests))
	for _, d := range digests {
		matchingDigests[d] = true
	}

	for _, v := range versions {
		if matchingDigests[v.Name] {
			_ = g.deleteVersion(ctx, image.Repository, v.ID)
		}
	}
	return nil
}

// manifestDigests returns every digest belonging to the given tag: the
// manifest's own digest, plus, when it is a multi-arch manifest list/OCI
// index, every per-architecture image digest it references. GHCR tracks
// each of these as its own package version, and deleting only the tag's
// top-level digest orphans the per-arch layers forever (original_source's
// github_cr.rs delete_image: "they stay there forever, so we need to
// delete them manually").
func (g *GitHubCR) manifestDigests(ctx context.Context, repository, tag string) ([]string, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", g.generic.endpoint, repository, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", strings.Join([]string{
		"application/vnd.docker.distribution.manifest.v2+json",
		"application/vnd.docker.distribution.manifest.list.v2+json",
		"application/vnd.oci.image.manifest.v1+json",
		"application/vnd.oci.image.index.v1+json",
	}, ", "))
	g.generic.authenticate(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest GET for %s:%s returned HTTP %d", repository, tag, resp.StatusCode)
	}

	topDigest := resp.Header.Get("Docker-Content-Digest")
	var parsed struct {
		Manifests []struct {
			Digest string `json:"digest"`
		} `json:"manifests"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode manifest for %s:%s: %w", repository, tag, err)
	}

	digests := []string{topDigest}
	for _, m := range parsed.Manifests {
		digests = append(digests, m.Digest)
	}
	return digests, nil
}

func (g *GitHubCR) ImageExists(ctx context.Context, image Image) (bool, error) {
	return g.generic.ImageExists(ctx, image)
}

func (g *GitHubCR) Info() Info {
	return Info{Endpoint: "ghcr.io"}
}

func (g *GitHubCR) GetImageName(logical string) string      { return logical }
func (g *GitHubCR) GetRepositoryName(logical string) string { return logical }

func (g *GitHubCR) authenticate(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("User-Agent", "deployforge-engine")
}
