package sources

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/git"
	"github.com/openwrt-feedsync/feedsync/internal/logger"
)

// gitSourceHandler keeps one working copy per source under the work dir
type gitSourceHandler struct {
	gitClient git.Client
	workDir   string
}

// NewGitSourceHandler creates a new Git source handler
func NewGitSourceHandler(gitClient git.Client, workDir string) SourceHandler {
	return &gitSourceHandler{
		gitClient: gitClient,
		workDir:   workDir,
	}
}

// Validate validates the Git source configuration
func (*gitSourceHandler) Validate(source *config.SourceConfig) error {
	if source == nil {
		return fmt.Errorf("source configuration cannot be nil")
	}
	if source.Git == nil {
		return fmt.Errorf("git configuration is required")
	}
	if source.Git.Repository == "" {
		return fmt.Errorf("git repository URL cannot be empty")
	}
	if source.Name == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	return nil
}

// Fetch clones or refreshes the source's working copy
func (h *gitSourceHandler) Fetch(ctx context.Context, source *config.SourceConfig) (*FetchResult, error) {
	if err := h.Validate(source); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}

	gitSource := source.Git
	cloneConfig := &git.CloneConfig{
		URL:         gitSource.Repository,
		Branch:      gitSource.Branch,
		Path:        filepath.Join(h.workDir, source.Name),
		MaxAttempts: gitSource.MaxAttempts,
	}

	if gitSource.Auth != nil && gitSource.Auth.Username != "" {
		password, err := gitSource.Auth.GetPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to get git password: %w", err)
		}
		cloneConfig.Auth = &git.AuthConfig{
			Username: gitSource.Auth.Username,
			Password: password,
		}
	}

	startTime := time.Now()
	logger.Infow("Fetching git source",
		"source", source.Name,
		"repository", cloneConfig.URL,
		"branch", cloneConfig.Branch)

	repoInfo, err := h.gitClient.CloneOrPull(ctx, cloneConfig)
	if err != nil {
		logger.Errorw("Git fetch failed",
			"source", source.Name,
			"error", err,
			"duration", time.Since(startTime).String())
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}

	logger.Infow("Git fetch completed",
		"source", source.Name,
		"branch", repoInfo.Branch,
		"commit_sha", repoInfo.Commit,
		"duration", time.Since(startTime).String())

	return &FetchResult{Path: repoInfo.Path, Revision: repoInfo.Commit}, nil
}
