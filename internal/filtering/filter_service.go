package filtering

import (
	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/recipe"
)

// FilterService applies a source's name patterns to its packages
type FilterService interface {
	// ApplyFilters returns the descriptors that pass the patterns, in their
	// original order, and the number excluded
	ApplyFilters(descs []recipe.Descriptor, include, exclude []string) ([]recipe.Descriptor, int)
}

// defaultFilterService implements FilterService with a NameFilter
type defaultFilterService struct {
	nameFilter NameFilter
}

// NewDefaultFilterService creates a new defaultFilterService with the default name filter
func NewDefaultFilterService() FilterService {
	return &defaultFilterService{nameFilter: NewDefaultNameFilter()}
}

// NewFilterService creates a new defaultFilterService with a custom name filter
func NewFilterService(nameFilter NameFilter) FilterService {
	return &defaultFilterService{nameFilter: nameFilter}
}

// ApplyFilters implements FilterService
func (s *defaultFilterService) ApplyFilters(
	descs []recipe.Descriptor, include, exclude []string,
) ([]recipe.Descriptor, int) {
	if len(include) == 0 && len(exclude) == 0 {
		return descs, 0
	}

	kept := make([]recipe.Descriptor, 0, len(descs))
	excluded := 0
	for _, d := range descs {
		included, reason := s.nameFilter.ShouldInclude(d.Name.Key, include, exclude)
		if !included {
			excluded++
			logger.Debugw("Excluding package", "package", d.Name.Effective, "source", d.SourceID, "reason", reason)
			continue
		}
		kept = append(kept, d)
	}

	logger.Infow("Package filtering completed", "included", len(kept), "excluded", excluded)
	return kept, excluded
}
