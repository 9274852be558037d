// Package status provides run status tracking and persistence for feedsync.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// Persistence defines the interface for run status persistence
type Persistence interface {
	// Save writes the run status, replacing the previous one atomically
	Save(ctx context.Context, status *RunStatus) error

	// Load reads the last run status.
	// Returns an empty RunStatus if the file doesn't exist (first run)
	Load(ctx context.Context) (*RunStatus, error)
}

// filePersistence implements Persistence using local filesystem
type filePersistence struct {
	basePath string
}

// NewFilePersistence creates a new file-based status persistence storing
// status.json in basePath
func NewFilePersistence(basePath string) Persistence {
	return &filePersistence{basePath: basePath}
}

// Path returns the status file location below basePath
func Path(basePath string) string {
	return filepath.Join(basePath, StatusFileName)
}

// Save writes the status to a temporary file and renames it into place
func (f *filePersistence) Save(_ context.Context, status *RunStatus) error {
	if status == nil {
		return fmt.Errorf("status cannot be nil")
	}
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	filePath := Path(f.basePath)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// Load reads the status file. A missing file yields an empty status.
func (f *filePersistence) Load(_ context.Context) (*RunStatus, error) {
	// #nosec G304 -- the path is built from the configured work dir
	data, err := os.ReadFile(Path(f.basePath))
	if err != nil {
		if os.IsNotExist(err) {
			return &RunStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status RunStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}
	return &status, nil
}
