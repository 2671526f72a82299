package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	artifactregistry "cloud.google.com/go/artifactregistry/apiv1"
	"cloud.google.com/go/artifactregistry/apiv1/artifactregistrypb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func init() {
	Register(KindGAR, func(cfg Config) (Adapter, error) {
		return NewGAR(cfg)
	})
}

// GAR wraps Google Artifact Registry. Repository names map 1:1 onto
// Artifact Registry "repositories" inside the project's region; images
// live at <region>-docker.pkg.dev/<project>/<repository>/<image>, which
// is why GetImageName nests the image under the repository twice
// (ported from original_source/src/container_registry/google_artifact_registry.rs
// get_image_name: "{project}/{img_name}/{img_name}").
type GAR struct {
	client    *artifactregistry.Client
	projectID string
	region    string
	account   string
}

func NewGAR(cfg Config) (*GAR, error) {
	ctx := context.Background()
	var opts []option.ClientOption
	if cfg.ServiceAccount != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccount)))
	}
	client, err := artifactregistry.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create Artifact Registry client: %w", err)
	}
	return &GAR{client: client, projectID: cfg.ProjectID, region: cfg.Region, account: cfg.ServiceAccount}, nil
}

func (g *GAR) Kind() Kind { return KindGAR }

func (g *GAR) CreateRegistry(context.Context) error { return nil }

func (g *GAR) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", g.projectID, g.region)
}

func (g *GAR) repoPath(name string) string {
	return fmt.Sprintf("%s/repositories/%s", g.parent(), name)
}

func (g *GAR) CreateRepository(ctx context.Context, name string, retentionSeconds int64, tags map[string]string) (CreateRepositoryResult, error) {
	if repo, exists, err := g.GetRepository(ctx, name); err != nil {
		return CreateRepositoryResult{}, err
	} else if exists {
		return CreateRepositoryResult{Repository: repo, Created: false}, nil
	}

	labels := map[string]string{
		"creation_date": fmt.Sprintf("%d", time.Now().Unix()),
		"ttl":           fmt.Sprintf("%d", retentionSeconds),
	}
	for k, v := range tags {
		labels[k] = v
	}

	op, err := g.client.CreateRepository(ctx, &artifactregistrypb.CreateRepositoryRequest{
		Parent:       g.parent(),
		RepositoryId: name,
		Repository: &artifactregistrypb.Repository{
			Format: artifactregistrypb.Repository_DOCKER,
			Labels: labels,
		},
	})
	if err != nil {
		return CreateRepositoryResult{}, fmt.Errorf("create Artifact Registry repository %s: %w", name, err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return CreateRepositoryResult{}, fmt.Errorf("wait for Artifact Registry repository %s: %w", name, err)
	}

	repo, _, err := g.GetRepository(ctx, name)
	if err != nil {
		return CreateRepositoryResult{}, err
	}
	return CreateRepositoryResult{Repository: repo, Created: true}, nil
}

func (g *GAR) GetRepository(ctx context.Context, name string) (Repository, bool, error) {
	resp, err := g.client.GetRepository(ctx, &artifactregistrypb.GetRepositoryRequest{Name: g.repoPath(name)})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Repository{}, false, nil
		}
		return Repository{}, false, fmt.Errorf("get Artifact Registry repository %s: %w", name, err)
	}
	return Repository{Name: name, URL: fmt.Sprintf("%s-docker.pkg.dev/%s/%s", g.region, g.projectID, name)}, resp != nil, nil
}

func (g *GAR) DeleteRepository(ctx context.Context, name string) error {
	op, err := g.client.DeleteRepository(ctx, &artifactregistrypb.DeleteRepositoryRequest{Name: g.repoPath(name)})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("delete Artifact Registry repository %s: %w", name, err)
	}
	return op.Wait(ctx)
}

func (g *GAR) imageName(image Image) string {
	prefix := fmt.Sprintf("%s/%s/", g.projectID, image.Repository)
	return strings.TrimPrefix(image.Name, prefix)
}

func (g *GAR) DeleteImage(ctx context.Context, image Image) error {
	packagePath := fmt.Sprintf("%s/packages/%s", g.repoPath(image.Repository), g.imageName(image))
	_, err := g.client.DeleteTag(ctx, &artifactregistrypb.DeleteTagRequest{Name: fmt.Sprintf("%s/tags/%s", packagePath, image.Tag)})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete Artifact Registry image %s:%s: %w", image.Repository, image.Tag, err)
	}
	return nil
}

func (g *GAR) ImageExists(ctx context.Context, image Image) (bool, error) {
	packagePath := fmt.Sprintf("%s/packages/%s", g.repoPath(image.Repository), g.imageName(image))
	_, err := g.client.GetTag(ctx, &artifactregistrypb.GetTagRequest{Name: fmt.Sprintf("%s/tags/%s", packagePath, image.Tag)})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("get Artifact Registry tag %s:%s: %w", image.Repository, image.Tag, err)
	}
	return true, nil
}

func (g *GAR) Info() Info {
	return Info{
		Endpoint:         fmt.Sprintf("%s-docker.pkg.dev", g.region),
		DockerConfigJSON: g.dockerConfigJSON(),
	}
}

func (g *GAR) dockerConfigJSON() string {
	auth := base64.StdEncoding.EncodeToString([]byte("_json_key:" + g.account))
	cfg := map[string]any{
		"auths": map[string]any{
			fmt.Sprintf("%s-docker.pkg.dev", g.region): map[string]string{"auth": auth},
		},
	}
	b, _ := json.Marshal(cfg)
	return base64.StdEncoding.EncodeToString(b)
}

// GetImageName nests the image twice under the project, mirroring the
// original's `{project}/{img_name}/{img_name}` layout.
func (g *GAR) GetImageName(logical string) string {
	return fmt.Sprintf("%s/%s/%s", g.projectID, logical, logical)
}

func (g *GAR) GetRepositoryName(logical string) string { return logical }
