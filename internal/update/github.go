package update

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// GitHubSource reads the latest published release of a repository.
type GitHubSource struct {
	client *github.Client
}

// NewGitHubSource builds a source on httpClient; nil uses a client with a
// 15 second timeout.
func NewGitHubSource(httpClient *http.Client) *GitHubSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &GitHubSource{client: github.NewClient(httpClient)}
}

// SetBaseURL points the client at another API root (tests, GitHub Enterprise).
func (g *GitHubSource) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	g.client.BaseURL = u
	return nil
}

// LatestTag returns tag_name of the latest release of repo ("owner/name").
func (g *GitHubSource) LatestTag(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	release, _, err := g.client.Repositories.GetLatestRelease(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("latest release of %s: %w", repo, err)
	}
	tag := release.GetTagName()
	if tag == "" {
		return "", fmt.Errorf("latest release of %s has no tag", repo)
	}
	return tag, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo path %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}
