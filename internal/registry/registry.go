package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/recipe"
	"github.com/openwrt-feedsync/feedsync/internal/scanner"
)

// DefaultReserved lists output tree entries that are never treated as packages
var DefaultReserved = []string{
	".git",
	".github",
	".gitignore",
	"README.md",
	"feedsync",
	"feedsync.yaml",
}

// Entry is the state of one package key in the output tree
type Entry struct {
	Version string
	Release string
	// Dirs holds the physical directory names for the key, in discovery order
	Dirs []string
	// Origin is the source collection named in the provenance file, if any
	Origin string
}

// Registry maps normalized package names to their output tree entries
type Registry struct {
	root     string
	reserved map[string]struct{}
	entries  map[string]*Entry
	// owners maps each physical directory name to the key that holds it
	owners   map[string]string
}

// New returns an empty registry for the output tree at root
func New(root string, reserved []string) *Registry {
	r := &Registry{
		root:     root,
		reserved: make(map[string]struct{}, len(DefaultReserved)+len(reserved)),
		entries:  make(map[string]*Entry),
		owners:   make(map[string]string),
	}
	for _, name := range DefaultReserved {
		r.reserved[name] = struct{}{}
	}
	for _, name := range reserved {
		r.reserved[name] = struct{}{}
	}
	return r
}

// Load reads the immediate children of root. A missing root yields an empty
// registry.
func Load(root string, reserved []string) (*Registry, error) {
	r := New(root, reserved)

	children, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read output directory %s: %w", root, err)
	}

	for _, child := range children {
		if !child.IsDir() || r.IsReserved(child.Name()) {
			continue
		}
		dir := filepath.Join(root, child.Name())
		if !scanner.IsPackageDir(dir) {
			continue
		}

		d := recipe.Describe(dir, "", 0)
		e, ok := r.entries[d.Name.Key]
		if !ok {
			e = &Entry{Version: d.Version, Release: d.Release}
			r.entries[d.Name.Key] = e
		}
		e.Dirs = append(e.Dirs, child.Name())
		r.owners[child.Name()] = d.Name.Key

		if p, err := ReadProvenance(dir); err == nil && e.Origin == "" {
			e.Origin = p.Repo
		}
	}

	for key, e := range r.entries {
		if len(e.Dirs) > 1 {
			logger.Debugf("Package %s is present in %d directories: %v", key, len(e.Dirs), e.Dirs)
		}
	}
	return r, nil
}

// Root returns the output tree directory
func (r *Registry) Root() string {
	return r.root
}

// IsReserved reports whether name is excluded from package handling
func (r *Registry) IsReserved(name string) bool {
	_, ok := r.reserved[name]
	return ok
}

// Get returns a copy of the entry for key
func (r *Registry) Get(key string) (Entry, bool) {
	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Dirs = slices.Clone(e.Dirs)
	return out, true
}

// Len returns the number of package keys
func (r *Registry) Len() int {
	return len(r.entries)
}

// Keys returns all package keys in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Owner returns the key holding the directory dir
func (r *Registry) Owner(dir string) (string, bool) {
	key, ok := r.owners[dir]
	return key, ok
}

// Set records a successful write of key into dir, collapsing the key's
// directories to exactly dir. A different key that held dir loses it.
func (r *Registry) Set(key, version, release, dir, origin string) {
	if e, ok := r.entries[key]; ok {
		for _, old := range e.Dirs {
			if r.owners[old] == key {
				delete(r.owners, old)
			}
		}
	}
	r.Release(dir)

	r.entries[key] = &Entry{
		Version: version,
		Release: release,
		Dirs:    []string{dir},
		Origin:  origin,
	}
	r.owners[dir] = key
}

// Forget drops dir from the directories of key. The key itself stays.
func (r *Registry) Forget(key, dir string) {
	e, ok := r.entries[key]
	if !ok {
		return
	}
	e.Dirs = slices.DeleteFunc(e.Dirs, func(d string) bool { return d == dir })
	if r.owners[dir] == key {
		delete(r.owners, dir)
	}
}

// Release drops dir from whichever key holds it
func (r *Registry) Release(dir string) {
	if key, ok := r.owners[dir]; ok {
		r.Forget(key, dir)
	}
}

// Remove deletes key from the registry
func (r *Registry) Remove(key string) {
	if e, ok := r.entries[key]; ok {
		for _, dir := range e.Dirs {
			if r.owners[dir] == key {
				delete(r.owners, dir)
			}
		}
	}
	delete(r.entries, key)
}
