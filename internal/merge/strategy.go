package merge

import (
	"errors"
	"fmt"

	"github.com/openwrt-feedsync/feedsync/internal/recipe"
	"github.com/openwrt-feedsync/feedsync/internal/versions"
)

const (
	// PolicyPriority picks the candidate from the highest-ranked source
	PolicyPriority = "priority"
	// PolicyVersion picks the candidate with the newest version and release
	PolicyVersion = "version"
)

// ErrUnknownPolicy is returned for a merge policy with no strategy
var ErrUnknownPolicy = errors.New("unknown merge policy")

// Strategy decides between two candidates sharing a package key
type Strategy interface {
	// Name returns the policy name
	Name() string
	// Prefer reports whether candidate should replace incumbent. Incumbent was seen first.
	Prefer(candidate, incumbent recipe.Descriptor) bool
	// AlwaysMaterialize reports whether winners are written even when the output
	// tree already holds the same version and release
	AlwaysMaterialize() bool
}

// NewStrategy returns the strategy for a policy name
func NewStrategy(policy string) (Strategy, error) {
	switch policy {
	case PolicyPriority:
		return PriorityStrategy{}, nil
	case PolicyVersion:
		return VersionStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// PriorityStrategy prefers the lower source priority; ties keep the first seen
type PriorityStrategy struct{}

// Name implements Strategy
func (PriorityStrategy) Name() string { return PolicyPriority }

// Prefer implements Strategy
func (PriorityStrategy) Prefer(candidate, incumbent recipe.Descriptor) bool {
	return candidate.Priority < incumbent.Priority
}

// AlwaysMaterialize implements Strategy
func (PriorityStrategy) AlwaysMaterialize() bool { return true }

// VersionStrategy prefers a strictly newer version, then a strictly newer release
type VersionStrategy struct{}

// Name implements Strategy
func (VersionStrategy) Name() string { return PolicyVersion }

// Prefer implements Strategy
func (VersionStrategy) Prefer(candidate, incumbent recipe.Descriptor) bool {
	return versions.CompareVersionRelease(
		candidate.Version, candidate.Release,
		incumbent.Version, incumbent.Release,
	) == versions.Greater
}

// AlwaysMaterialize implements Strategy
func (VersionStrategy) AlwaysMaterialize() bool { return false }
