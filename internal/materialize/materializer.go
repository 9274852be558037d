// Package materialize writes winning packages into the output tree and keeps the
// registry in step with what is on disk.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/merge"
	"github.com/openwrt-feedsync/feedsync/internal/registry"
)

// ErrInvalidDestination is returned when a package name cannot be used as an
// output directory name
var ErrInvalidDestination = errors.New("invalid destination directory name")

// Materializer applies merge decisions to an output tree
type Materializer struct {
	reg *registry.Registry
}

// New creates a materializer writing into the registry's output tree
func New(reg *registry.Registry) *Materializer {
	return &Materializer{reg: reg}
}

// Apply writes the winner of d to the output tree.
//
// Other directories holding the same key are deleted first, then whatever occupies
// the destination, then the source tree is copied and the provenance file written.
// A directory another key has claimed is never deleted as stale, and overwriting
// the destination takes it away from any key that held it. On success the registry
// entry collapses to the destination directory. On failure the registry forgets
// every directory that was already deleted.
func (m *Materializer) Apply(ctx context.Context, d merge.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	winner := d.Winner
	key := winner.Name.Key
	dest := winner.Name.Effective
	if err := m.validateDestination(dest); err != nil {
		return err
	}

	root := m.reg.Root()
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	entry, _ := m.reg.Get(key)
	for _, dir := range entry.Dirs {
		if dir == dest {
			continue
		}
		if owner, ok := m.reg.Owner(dir); ok && owner != key {
			logger.Debugf("Not removing %s: it now holds package %s", dir, owner)
			continue
		}
		stale := filepath.Join(root, dir)
		if sameFile(stale, winner.SourcePath) {
			logger.Warnf("Not removing %s: it is the source of %s", stale, dest)
			continue
		}
		logger.Debugf("Removing stale directory %s for package %s", stale, dest)
		if err := os.RemoveAll(stale); err != nil {
			return fmt.Errorf("failed to remove stale directory %s: %w", stale, err)
		}
		m.reg.Forget(key, dir)
	}

	destPath := filepath.Join(root, dest)
	if sameFile(destPath, winner.SourcePath) {
		logger.Debugf("Package %s is already in place", dest)
	} else {
		if err := m.replace(ctx, dest, destPath, winner.SourcePath); err != nil {
			return err
		}
	}

	if err := registry.WriteProvenance(destPath, registry.Provenance{
		Repo:    winner.SourceID,
		Package: dest,
		Version: winner.Version,
		Release: winner.Release,
	}); err != nil {
		return fmt.Errorf("package %s: %w", dest, err)
	}

	m.reg.Set(key, winner.Version, winner.Release, dest, winner.SourceID)
	return nil
}

func (m *Materializer) replace(ctx context.Context, dest, destPath, source string) error {
	if _, err := os.Lstat(destPath); err == nil {
		if err := os.RemoveAll(destPath); err != nil {
			return fmt.Errorf("failed to clear destination %s: %w", destPath, err)
		}
		m.reg.Release(dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to inspect destination %s: %w", destPath, err)
	}

	if err := copyTree(ctx, source, destPath); err != nil {
		// Leave no half-written package behind
		_ = os.RemoveAll(destPath)
		m.reg.Release(dest)
		return fmt.Errorf("failed to copy package %s: %w", dest, err)
	}
	return nil
}

// Prune deletes every directory of key from the output tree and drops the key
func (m *Materializer) Prune(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry, ok := m.reg.Get(key)
	if !ok {
		return nil
	}
	for _, dir := range entry.Dirs {
		path := filepath.Join(m.reg.Root(), dir)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to prune %s: %w", path, err)
		}
		m.reg.Forget(key, dir)
	}
	m.reg.Remove(key)
	return nil
}

func (m *Materializer) validateDestination(name string) error {
	switch {
	case name == "", name == ".", strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidDestination, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidDestination, name)
	case m.reg.IsReserved(name):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidDestination, name)
	}
	return nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
