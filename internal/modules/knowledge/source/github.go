package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v58/github"
)

var errRepoFetch = errors.New("could not fetch repository readme")

// parseRepoPath extracts owner and repo from a GitHub URL. Trailing path
// segments (tree/blob/...) are ignored.
func parseRepoPath(repoURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errRepoFetch, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: url must contain owner/repo", errRepoFetch)
	}
	return parts[0], parts[1], nil
}

// fetchReadme downloads the decoded README of a repository. A configured
// GitHub token raises the rate limit but is not required for public repos.
func (s *Service) fetchReadme(ctx context.Context, repoURL string) (string, error) {
	owner, repo, err := parseRepoPath(repoURL)
	if err != nil {
		return "", err
	}

	client := github.NewClient(nil)
	if token := s.githubToken(); token != "" {
		client = client.WithAuthToken(token)
	}

	readme, _, err := client.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errRepoFetch, err)
	}

	content, err := readme.GetContent()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errRepoFetch, err)
	}
	return content, nil
}

func (s *Service) githubToken() string {
	if s.cfgSvc == nil {
		return ""
	}
	cfg, err := s.cfgSvc.Get()
	if err != nil || cfg == nil {
		return ""
	}
	return strings.TrimSpace(cfg.ThirdPartyServiceIntegration.GitHubToken)
}
