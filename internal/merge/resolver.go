// Package merge picks one winner per package key across all sources and decides
// whether the winner has to be written to the output tree.
package merge

import (
	"github.com/openwrt-feedsync/feedsync/internal/recipe"
	"github.com/openwrt-feedsync/feedsync/internal/registry"
	"github.com/openwrt-feedsync/feedsync/internal/versions"
)

// Outcome classifies a winner against the current output tree
type Outcome int

const (
	// OutcomeNew means the key is absent from the output tree
	OutcomeNew Outcome = iota
	// OutcomeUpdated means the output tree holds a different version or release.
	// Difference is judged by versions.CompareVersionRelease, so strings that
	// compare Equal, such as "1.0.0+a" and "1.0.0+b", are not an update.
	OutcomeUpdated
	// OutcomeSkipped means the output tree already holds the same version and release
	OutcomeSkipped
)

// String returns the lower-case outcome name used in logs and metrics
func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Decision is the resolution for one package key
type Decision struct {
	Winner  recipe.Descriptor
	Outcome Outcome
	// Losers are the other candidates for the key, in the order they were seen
	Losers []recipe.Descriptor
	// Materialize is set when the winner must be written to the output tree: for
	// New and Updated outcomes, for every winner of a strategy that always
	// materializes, and for a Skipped winner whose key is not held by exactly its
	// destination directory. The last case rewrites an up to date package so that
	// stray or misnamed copies collapse into the destination.
	Materialize bool
}

// Key returns the package key the decision is for
func (d Decision) Key() string {
	return d.Winner.Name.Key
}

// State is the read side of the output tree registry
type State interface {
	Get(key string) (registry.Entry, bool)
}

// Resolver deduplicates descriptors with a strategy
type Resolver struct {
	strategy Strategy
}

// NewResolver creates a resolver for the given strategy
func NewResolver(strategy Strategy) *Resolver {
	return &Resolver{strategy: strategy}
}

// Strategy returns the resolver's strategy
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

type candidates struct {
	winner recipe.Descriptor
	losers []recipe.Descriptor
}

// Resolve returns one decision per distinct key in descs, in the order keys were
// first seen. descs must be in source configuration order.
func (r *Resolver) Resolve(descs []recipe.Descriptor, state State) []Decision {
	var order []string
	groups := make(map[string]*candidates)

	for _, d := range descs {
		key := d.Name.Key
		g, ok := groups[key]
		if !ok {
			groups[key] = &candidates{winner: d}
			order = append(order, key)
			continue
		}
		if r.strategy.Prefer(d, g.winner) {
			g.losers = append(g.losers, g.winner)
			g.winner = d
		} else {
			g.losers = append(g.losers, d)
		}
	}

	decisions := make([]Decision, 0, len(order))
	for _, key := range order {
		g := groups[key]
		decisions = append(decisions, r.classify(g.winner, g.losers, state))
	}
	return decisions
}

func (r *Resolver) classify(winner recipe.Descriptor, losers []recipe.Descriptor, state State) Decision {
	d := Decision{Winner: winner, Losers: losers}

	entry, ok := state.Get(winner.Name.Key)
	switch {
	case !ok:
		d.Outcome = OutcomeNew
	case versions.CompareVersionRelease(winner.Version, winner.Release, entry.Version, entry.Release) != versions.Equal:
		d.Outcome = OutcomeUpdated
	default:
		d.Outcome = OutcomeSkipped
	}

	d.Materialize = d.Outcome != OutcomeSkipped ||
		r.strategy.AlwaysMaterialize() ||
		!canonical(entry.Dirs, winner.Name.Effective)
	return d
}

// canonical reports whether dirs is exactly the destination directory
func canonical(dirs []string, dest string) bool {
	return len(dirs) == 1 && dirs[0] == dest
}
