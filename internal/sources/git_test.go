package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/git"
)

const (
	testGitRepoURL = "https://github.com/example/test-repo.git"
	testBranch     = "main"
)

// MockGitClient is a mock implementation of git.Client
type MockGitClient struct {
	mock.Mock
}

func (m *MockGitClient) CloneOrPull(ctx context.Context, cfg *git.CloneConfig) (*git.RepositoryInfo, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*git.RepositoryInfo), args.Error(1)
}

func (m *MockGitClient) Cleanup(_ context.Context, repoInfo *git.RepositoryInfo) error {
	args := m.Called(repoInfo)
	return args.Error(0)
}

func TestGitSourceHandler_Validate(t *testing.T) {
	t.Parallel()

	handler := NewGitSourceHandler(&MockGitClient{}, t.TempDir())

	tests := []struct {
		name    string
		source  *config.SourceConfig
		wantErr bool
	}{
		{name: "nil source", source: nil, wantErr: true},
		{name: "missing git config", source: &config.SourceConfig{Name: "a"}, wantErr: true},
		{
			name:    "empty repository",
			source:  &config.SourceConfig{Name: "a", Git: &config.GitConfig{}},
			wantErr: true,
		},
		{
			name:    "empty name",
			source:  &config.SourceConfig{Git: &config.GitConfig{Repository: testGitRepoURL}},
			wantErr: true,
		},
		{
			name:   "valid",
			source: &config.SourceConfig{Name: "a", Git: &config.GitConfig{Repository: testGitRepoURL}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := handler.Validate(tt.source)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGitSourceHandler_Fetch(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	source := &config.SourceConfig{
		Name: "small-package",
		Git: &config.GitConfig{
			Repository:  testGitRepoURL,
			Branch:      testBranch,
			MaxAttempts: 5,
		},
	}

	client := &MockGitClient{}
	client.On("CloneOrPull", mock.Anything, &git.CloneConfig{
		URL:         testGitRepoURL,
		Branch:      testBranch,
		Path:        filepath.Join(workDir, "small-package"),
		MaxAttempts: 5,
	}).Return(&git.RepositoryInfo{
		Path:   filepath.Join(workDir, "small-package"),
		Branch: testBranch,
		Commit: "abc123",
	}, nil)

	result, err := NewGitSourceHandler(client, workDir).Fetch(t.Context(), source)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "small-package"), result.Path)
	assert.Equal(t, "abc123", result.Revision)
	client.AssertExpectations(t)
}

func TestGitSourceHandler_FetchWithAuth(t *testing.T) {
	t.Parallel()

	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("token\n"), 0600))

	source := &config.SourceConfig{
		Name: "private",
		Git: &config.GitConfig{
			Repository: testGitRepoURL,
			Auth:       &config.GitAuthConfig{Username: "bot", PasswordFile: passwordFile},
		},
	}

	client := &MockGitClient{}
	client.On("CloneOrPull", mock.Anything, mock.MatchedBy(func(cfg *git.CloneConfig) bool {
		return cfg.Auth != nil && cfg.Auth.Username == "bot" && cfg.Auth.Password == "token"
	})).Return(&git.RepositoryInfo{Path: "/work/private"}, nil)

	_, err := NewGitSourceHandler(client, "/work").Fetch(t.Context(), source)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestGitSourceHandler_FetchErrors(t *testing.T) {
	t.Parallel()

	client := &MockGitClient{}
	client.On("CloneOrPull", mock.Anything, mock.Anything).Return(nil, errors.New("network down"))
	handler := NewGitSourceHandler(client, t.TempDir())

	_, err := handler.Fetch(t.Context(), &config.SourceConfig{Name: "a", Git: &config.GitConfig{Repository: testGitRepoURL}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")

	_, err = handler.Fetch(t.Context(), &config.SourceConfig{Name: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source validation failed")
}

func TestGitSourceHandler_FetchLocalRepository(t *testing.T) {
	t.Parallel()

	upstream := git.CreateTestRepo(t, git.TestRepoConfig{
		Files: map[string]string{
			"net/curl/Makefile": "PKG_NAME:=curl\nPKG_VERSION:=8.0\n",
		},
	})

	workDir := t.TempDir()
	factory := NewSourceHandlerFactory(workDir)
	handler, err := factory.CreateHandler(config.SourceTypeGit)
	require.NoError(t, err)

	result, err := handler.Fetch(t.Context(), &config.SourceConfig{
		Name: "local-git",
		Git:  &config.GitConfig{Repository: upstream},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "local-git"), result.Path)
	assert.NotEmpty(t, result.Revision)
	assert.FileExists(t, filepath.Join(result.Path, "net", "curl", "Makefile"))
}
