package sources

import (
	"fmt"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/git"
)

// defaultSourceHandlerFactory is the default implementation of SourceHandlerFactory
type defaultSourceHandlerFactory struct {
	workDir   string
	gitClient git.Client
}

var _ SourceHandlerFactory = (*defaultSourceHandlerFactory)(nil)

// NewSourceHandlerFactory creates a new source handler factory. Git working
// copies are kept below workDir.
func NewSourceHandlerFactory(workDir string) SourceHandlerFactory {
	return &defaultSourceHandlerFactory{
		workDir:   workDir,
		gitClient: git.NewDefaultGitClient(),
	}
}

// CreateHandler creates a source handler for the given source type
func (f *defaultSourceHandlerFactory) CreateHandler(sourceType string) (SourceHandler, error) {
	switch sourceType {
	case config.SourceTypeGit:
		return NewGitSourceHandler(f.gitClient, f.workDir), nil
	case config.SourceTypeFile:
		return NewFileSourceHandler(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, sourceType)
	}
}
