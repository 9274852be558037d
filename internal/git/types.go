package git

import (
	"github.com/go-git/go-git/v5"
)

// AuthConfig holds HTTP basic authentication credentials
type AuthConfig struct {
	Username string
	Password string
}

// CloneConfig contains configuration for cloning or refreshing a repository
type CloneConfig struct {
	// URL is the repository URL to clone
	URL string

	// Branch is the branch to track (optional, defaults to the remote HEAD)
	Branch string

	// Path is the local directory holding the working copy
	Path string

	// Auth enables HTTP basic authentication when set with a username
	Auth *AuthConfig

	// MaxAttempts bounds clone attempts; zero means DefaultMaxAttempts
	MaxAttempts uint
}

// RepositoryInfo contains information about a checked out repository
type RepositoryInfo struct {
	// Repository is the go-git repository instance
	Repository *git.Repository

	// Path is the working copy directory
	Path string

	// Branch is the checked out branch name
	Branch string

	// RemoteURL is the remote repository URL
	RemoteURL string

	// Commit is the HEAD commit hash
	Commit string
}
