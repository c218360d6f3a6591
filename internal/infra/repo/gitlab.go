// Package repo materializes repository checkouts for scans.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/domain/shared"
)

const (
	defaultGitLabURL = "https://gitlab.com"
	defaultUserAgent = "auditflow-scanner"
)

// GitLabResolver looks up clone URLs through the GitLab projects API.
type GitLabResolver struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGitLabResolver creates a resolver for cfg.
func NewGitLabResolver(cfg *config.GitLabConfig) *GitLabResolver {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultGitLabURL
	}
	return &GitLabResolver{
		baseURL:    base + "/api/v4",
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type glProject struct {
	ID            int64  `json:"id"`
	HTTPURLToRepo string `json:"http_url_to_repo"`
}

// CloneURL returns the HTTP clone URL of a project.
func (r *GitLabResolver) CloneURL(ctx context.Context, repoID int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/projects/%d", r.baseURL, repoID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", r.token)
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gitlab request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", shared.NotFound("repository", fmt.Sprint(repoID))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gitlab returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var project glProject
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return "", fmt.Errorf("failed to decode project: %w", err)
	}
	if project.HTTPURLToRepo == "" {
		return "", fmt.Errorf("project %d has no http clone url", repoID)
	}
	return project.HTTPURLToRepo, nil
}
