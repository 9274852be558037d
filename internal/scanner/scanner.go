// Package scanner discovers package directories inside a fetched source tree.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openwrt-feedsync/feedsync/internal/recipe"
)

// luciAppMarker identifies LuCI application directories that may carry no recipe
// at their top level
const luciAppMarker = "luci-app-"

var skippedNames = map[string]struct{}{
	"temp": {},
	"tmp":  {},
}

// Scan returns every package directory below root in lexical order.
//
// The root itself is never reported. Hidden directories and ones named temp or tmp
// are skipped, package directories are not descended into, and symlinked
// directories are not followed.
func Scan(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	var packages []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable subtree is skipped; an unreadable root is fatal
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		// WalkDir reports symlinks as non-directories, so they are never followed
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if IsPackageDir(path) {
			packages = append(packages, path)
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, walkErr)
	}
	return packages, nil
}

// IsPackageDir reports whether dir holds a package: it has a recipe, or it is a
// LuCI application with a luasrc or root subdirectory.
func IsPackageDir(dir string) bool {
	if exists(filepath.Join(dir, recipe.MakefileName)) {
		return true
	}
	if !strings.Contains(filepath.Base(dir), luciAppMarker) {
		return false
	}
	return exists(filepath.Join(dir, "luasrc")) || exists(filepath.Join(dir, "root"))
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := skippedNames[name]
	return ok
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
