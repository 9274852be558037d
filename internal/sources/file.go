package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openwrt-feedsync/feedsync/internal/config"
)

// fileSourceHandler uses a local directory in place
type fileSourceHandler struct{}

// NewFileSourceHandler creates a new file source handler
func NewFileSourceHandler() SourceHandler {
	return &fileSourceHandler{}
}

// Validate validates the file source configuration
func (*fileSourceHandler) Validate(source *config.SourceConfig) error {
	if source == nil {
		return fmt.Errorf("source configuration cannot be nil")
	}
	if source.File == nil {
		return fmt.Errorf("file configuration is required")
	}
	if source.File.Path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	return nil
}

// Fetch checks the directory exists and returns its absolute path
func (h *fileSourceHandler) Fetch(_ context.Context, source *config.SourceConfig) (*FetchResult, error) {
	if err := h.Validate(source); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}

	path, err := filepath.Abs(source.File.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", source.File.Path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", source.File.Path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", source.File.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", source.File.Path)
	}

	return &FetchResult{Path: path}, nil
}
