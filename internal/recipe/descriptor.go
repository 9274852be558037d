package recipe

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/openwrt-feedsync/feedsync/internal/logger"
)

// Name pairs the on-disk package name with its case-insensitive identity key
type Name struct {
	// Effective is the name used for the output directory, original casing preserved
	Effective string
	// Key is the lower-cased Effective name used for deduplication
	Key string
}

// NewName builds a Name from its effective form
func NewName(effective string) Name {
	return Name{Effective: effective, Key: strings.ToLower(effective)}
}

// String returns the effective name
func (n Name) String() string {
	return n.Effective
}

// Descriptor identifies one package found in a source tree
type Descriptor struct {
	// RawDirName is the package directory name as found on disk
	RawDirName string
	// DeclaredName is PKG_NAME as written in the recipe, possibly empty or unresolved
	DeclaredName string
	// Name is the identity used for deduplication and the output directory
	Name Name

	Version string
	Release string

	// SourcePath is the package directory inside the source tree
	SourcePath string
	// SourceID names the source collection the package came from
	SourceID string
	// Priority is the rank of the source, lower is preferred
	Priority int

	// SpecialCase marks a directory or declared name that still contains make
	// variable syntax after substitution
	SpecialCase bool
}

// NewDescriptor derives a descriptor from recipe metadata.
//
// A declared name that still holds unexpanded variables is not usable as an
// identity, so the directory name is used instead and the descriptor is flagged
// as a special case.
func NewDescriptor(dir string, md Metadata, sourceID string, priority int) Descriptor {
	raw := filepath.Base(dir)
	declared := md.Name

	effective := declared
	if effective == "" || HasUnresolved(effective) {
		effective = raw
	}

	return Descriptor{
		RawDirName:   raw,
		DeclaredName: declared,
		Name:         NewName(effective),
		Version:      orDefault(md.Version),
		Release:      orDefault(md.Release),
		SourcePath:   dir,
		SourceID:     sourceID,
		Priority:     priority,
		SpecialCase:  HasUnresolved(raw) || HasUnresolved(declared),
	}
}

// Describe reads the recipe inside dir and returns its descriptor. Recipe failures
// are logged and yield default metadata.
func Describe(dir, sourceID string, priority int) Descriptor {
	md, err := Extract(filepath.Join(dir, MakefileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debugf("Package %s has no %s, using directory name", dir, MakefileName)
		} else {
			logger.Warnf("Failed to read recipe in %s, using defaults: %v", dir, err)
		}
	}

	d := NewDescriptor(dir, md, sourceID, priority)
	if d.SpecialCase {
		logger.Debugw("Package name contains unresolved variables",
			"dir", d.RawDirName, "declared", d.DeclaredName, "effective", d.Name.Effective)
	}
	return d
}
