package sources

import (
	"context"
	"errors"

	"github.com/openwrt-feedsync/feedsync/internal/config"
)

// ErrUnsupportedSourceType is returned by the factory for an unknown source type
var ErrUnsupportedSourceType = errors.New("unsupported source type")

//go:generate mockgen -destination=mocks/mock_source_handler.go -package=mocks -source=types.go SourceHandler,SourceHandlerFactory

// SourceHandler is an interface with methods to fetch package collections from external sources
type SourceHandler interface {
	// Validate validates the source configuration
	Validate(source *config.SourceConfig) error

	// Fetch brings the source onto local disk and returns where it is
	Fetch(ctx context.Context, source *config.SourceConfig) (*FetchResult, error)
}

// FetchResult contains the result of a fetch operation
type FetchResult struct {
	// Path is the local directory holding the source snapshot
	Path string

	// Revision identifies the snapshot, the commit hash for git sources
	Revision string
}

// SourceHandlerFactory creates source handlers based on source type
type SourceHandlerFactory interface {
	// CreateHandler creates a source handler for the given source type
	CreateHandler(sourceType string) (SourceHandler, error)
}
