package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

func init() {
	Register(KindDockerHub, func(cfg Config) (Adapter, error) {
		return NewDockerHub(cfg.Username, cfg.Token), nil
	})
}

// DockerHub wraps the Docker Hub v2 registry. Repository creation and
// retention rules are unsupported by Docker Hub's public API, so
// CreateRepository is a thin existence-check (spec.md §4.3 "no-op where
// the registry is implicit").
type DockerHub struct {
	generic *Generic
}

func NewDockerHub(username, password string) *DockerHub {
	return &DockerHub{generic: NewGeneric("https://registry-1.docker.io", username, password)}
}

func (d *DockerHub) Kind() Kind                      { return KindDockerHub }
func (d *DockerHub) CreateRegistry(context.Context) error { return nil }

func (d *DockerHub) CreateRepository(ctx context.Context, name string, retentionSeconds int64, tags map[string]string) (CreateRepositoryResult, error) {
	return d.generic.CreateRepository(ctx, name, retentionSeconds, tags)
}

func (d *DockerHub) GetRepository(ctx context.Context, name string) (Repository, bool, error) {
	return d.generic.GetRepository(ctx, name)
}

func (d *DockerHub) DeleteRepository(ctx context.Context, name string) error {
	return d.generic.DeleteRepository(ctx, name)
}

func (d *DockerHub) DeleteImage(ctx context.Context, image Image) error {
	return d.generic.DeleteImage(ctx, image)
}

func (d *DockerHub) ImageExists(ctx context.Context, image Image) (bool, error) {
	return d.generic.ImageExists(ctx, image)
}

func (d *DockerHub) Info() Info {
	info := d.generic.Info()
	info.DockerConfigJSON = d.dockerConfigJSON()
	return info
}

func (d *DockerHub) GetImageName(logical string) string      { return d.generic.GetImageName(logical) }
func (d *DockerHub) GetRepositoryName(logical string) string { return d.generic.GetRepositoryName(logical) }

func (d *DockerHub) dockerConfigJSON() string {
	auth := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", d.generic.username, d.generic.password)))
	cfg := map[string]any{
		"auths": map[string]any{
			"https://index.docker.io/v1/": map[string]string{"auth": auth},
		},
	}
	b, _ := json.Marshal(cfg)
	return base64.StdEncoding.EncodeToString(b)
}
