// Package gitadapter wraps git and git-lfs invocations (spec.md §4.2),
// grounded on the teacher's git clone/pull handling in
// cli/cmd/helpers.go's resolveProjectDir and original_source/src/git.rs.
package gitadapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/deployforge/engine/internal/command"
)

// Credentials for HTTPS basic-auth embedded in the clone URL.
type Credentials struct {
	Username string
	Password string
}

// Adapter clones and checks out git repositories over HTTPS only.
type Adapter struct {
	Runner *command.Runner
}

func New() *Adapter {
	return &Adapter{Runner: command.NewRunner()}
}

// withAuth rejects any non-HTTPS URL and embeds basic-auth credentials
// into it, if provided.
func withAuth(rawURL string, creds *Credentials) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid git url %q: %w", rawURL, err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("git clone only supports https urls, got scheme %q", u.Scheme)
	}
	if creds == nil {
		return rawURL, nil
	}
	u.User = url.UserPassword(creds.Username, creds.Password)
	return u.String(), nil
}

// CloneAtCommit clones repoURL into dir and checks out commitID with
// --force, removing untracked files, then updates submodules.
func (a *Adapter) CloneAtCommit(ctx context.Context, repoURL, commitID, dir string, creds *Credentials, killer command.Killer, log command.LineSink) error {
	authedURL, err := withAuth(repoURL, creds)
	if err != nil {
		return err
	}

	if res := a.Runner.Run(ctx, command.Spec{Bin: "git", Args: []string{"clone", authedURL, dir}}, killer, log, log); !res.IsSuccess() {
		return fmt.Errorf("git clone failed: %s", res.Error())
	}

	if res := a.Runner.Run(ctx, command.Spec{Bin: "git", Args: []string{"-C", dir, "fetch", "--all"}}, killer, log, log); !res.IsSuccess() {
		return fmt.Errorf("git fetch failed: %s", res.Error())
	}

	if res := a.Runner.Run(ctx, command.Spec{Bin: "git", Args: []string{"-C", dir, "checkout", "--force", commitID}}, killer, log, log); !res.IsSuccess() {
		return fmt.Errorf("git checkout %s failed: %s", commitID, res.Error())
	}

	if res := a.Runner.Run(ctx, command.Spec{Bin: "git", Args: []string{"-C", dir, "clean", "-fdx"}}, killer, log, log); !res.IsSuccess() {
		return fmt.Errorf("git clean failed: %s", res.Error())
	}

	if res := a.Runner.Run(ctx, command.Spec{Bin: "git", Args: []string{"-C", dir, "submodule", "update", "--init", "--recursive"}}, killer, log, log); !res.IsSuccess() {
		return fmt.Errorf("git submodule update failed: %s", res.Error())
	}

	return nil
}

// DefaultCloneTimeout matches the builder's per-command defaults (spec.md
// §5 "Timeouts"); callers may override via their own Killer.
const DefaultCloneTimeout = 30 * time.Minute
