package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-logr/logr"
)

const (
	// DefaultMaxAttempts is the number of clone attempts when none is configured
	DefaultMaxAttempts uint = 3

	remoteName = "origin"
)

// Client defines the interface for Git operations
type Client interface {
	// CloneOrPull brings the working copy at config.Path up to date with the remote
	CloneOrPull(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error)

	// Cleanup removes the local working copy
	Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct {
	initialInterval time.Duration
}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{initialInterval: 2 * time.Second}
}

// CloneOrPull refreshes an existing working copy or clones a new one
func (c *defaultGitClient) CloneOrPull(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error) {
	if config == nil || config.URL == "" || config.Path == "" {
		return nil, fmt.Errorf("clone config requires a URL and a path")
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("url", config.URL, "path", config.Path)

	repo, err := git.PlainOpen(config.Path)
	switch {
	case err == nil:
		info, refreshErr := c.refresh(ctx, repo, config)
		if refreshErr == nil {
			log.V(1).Info("Refreshed working copy", "commit", info.Commit)
			return info, nil
		}
		log.Info("Refresh failed, cloning again", "error", refreshErr.Error())
	case errors.Is(err, git.ErrRepositoryNotExists):
		log.V(1).Info("No working copy yet")
	default:
		log.Info("Working copy unreadable, cloning again", "error", err.Error())
	}

	if err := os.RemoveAll(config.Path); err != nil {
		return nil, fmt.Errorf("failed to remove working copy: %w", err)
	}
	return c.cloneWithRetry(ctx, config, log)
}

func (c *defaultGitClient) cloneWithRetry(ctx context.Context, config *CloneConfig, log logr.Logger) (*RepositoryInfo, error) {
	attempts := config.MaxAttempts
	if attempts == 0 {
		attempts = DefaultMaxAttempts
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval

	return backoff.Retry(ctx, func() (*RepositoryInfo, error) {
		info, err := c.clone(ctx, config)
		if err == nil {
			return info, nil
		}
		// A failed clone can leave a partial checkout behind
		_ = os.RemoveAll(config.Path)
		if isPermanent(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Info("Clone failed, retrying", "error", err.Error(), "retryIn", next.String())
		}),
	)
}

func (*defaultGitClient) clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error) {
	cloneOptions := &git.CloneOptions{
		URL:          config.URL,
		RemoteName:   remoteName,
		Depth:        1,
		Auth:         authMethod(config.Auth),
		SingleBranch: config.Branch != "",
	}
	if config.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(config.Branch)
	}

	repo, err := git.PlainCloneContext(ctx, config.Path, false, cloneOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}
	return repositoryInfo(repo, config)
}

// refresh fetches the tracked branch and hard resets the working copy onto it
func (*defaultGitClient) refresh(ctx context.Context, repo *git.Repository, config *CloneConfig) (*RepositoryInfo, error) {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return nil, fmt.Errorf("failed to get remote: %w", err)
	}
	if urls := remote.Config().URLs; len(urls) == 0 || urls[0] != config.URL {
		return nil, fmt.Errorf("working copy tracks %v, not %s", urls, config.URL)
	}

	branch := config.Branch
	if branch == "" {
		head, err := repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
		}
		if !head.Name().IsBranch() {
			return nil, fmt.Errorf("HEAD is not on a branch")
		}
		branch = head.Name().Short()
	}

	remoteRef := plumbing.NewRemoteReferenceName(remoteName, branch)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), remoteRef)),
		},
		Depth: 1,
		Auth:  authMethod(config.Auth),
		Force: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	ref, err := repo.Reference(remoteRef, true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", remoteRef, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("failed to reset to %s: %w", ref.Hash(), err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return nil, fmt.Errorf("failed to clean worktree: %w", err)
	}

	return repositoryInfo(repo, config)
}

// Cleanup removes the local working copy
func (*defaultGitClient) Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Path == "" {
		return fmt.Errorf("repository is nil")
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("Removing working copy", "path", repoInfo.Path)

	if err := os.RemoveAll(repoInfo.Path); err != nil {
		return fmt.Errorf("failed to remove working copy: %w", err)
	}
	repoInfo.Repository = nil
	return nil
}

func repositoryInfo(repo *git.Repository, config *CloneConfig) (*RepositoryInfo, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	info := &RepositoryInfo{
		Repository: repo,
		Path:       config.Path,
		RemoteURL:  config.URL,
		Branch:     config.Branch,
		Commit:     ref.Hash().String(),
	}
	if ref.Name().IsBranch() {
		info.Branch = ref.Name().Short()
	}
	return info, nil
}

func authMethod(auth *AuthConfig) transport.AuthMethod {
	if auth == nil || auth.Username == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: auth.Username,
		Password: auth.Password,
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, git.NoMatchingRefSpecError{})
}
