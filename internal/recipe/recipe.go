// Package recipe extracts package identity from OpenWrt-style Makefile recipes.
//
// Only three assignments matter to feedsync: PKG_NAME, PKG_VERSION and
// PKG_RELEASE. Everything else in a recipe is opaque and copied verbatim.
package recipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	// MakefileName is the recipe file every package directory carries
	MakefileName = "Makefile"

	// KeyName is the recipe variable declaring the package name
	KeyName = "PKG_NAME"
	// KeyVersion is the recipe variable declaring the upstream version
	KeyVersion = "PKG_VERSION"
	// KeyRelease is the recipe variable declaring the package release
	KeyRelease = "PKG_RELEASE"

	// DefaultVersion is used for an absent version or release
	DefaultVersion = "0"
)

var (
	assignmentRe = regexp.MustCompile(`^\s*([A-Za-z0-9_.-]+)\s*:=\s*(.*)$`)
	referenceRe  = regexp.MustCompile(`\$\(([A-Za-z0-9_.-]+)\)|\$\{([A-Za-z0-9_.-]+)\}`)
)

// Metadata holds the tracked assignments of one recipe
type Metadata struct {
	Name    string
	Version string
	Release string

	// Unresolved lists the tracked keys whose value still contains variable syntax
	Unresolved []string
}

// DefaultMetadata is the result for a recipe that could not be read
func DefaultMetadata() Metadata {
	return Metadata{Version: DefaultVersion, Release: DefaultVersion}
}

// HasUnresolved reports whether s still contains make variable syntax
func HasUnresolved(s string) bool {
	return strings.Contains(s, "$(") || strings.Contains(s, "${")
}

// Extract reads the recipe at path. On failure it returns default metadata together
// with the error so callers can log and carry on.
func Extract(path string) (Metadata, error) {
	//nolint:gosec // recipe paths come from scanning configured source trees
	f, err := os.Open(path)
	if err != nil {
		return DefaultMetadata(), fmt.Errorf("failed to open recipe %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	md, err := Parse(f)
	if err != nil {
		return DefaultMetadata(), fmt.Errorf("failed to parse recipe %s: %w", path, err)
	}
	return md, nil
}

// Parse scans recipe text for KEY:=VALUE assignments.
//
// Every assignment is recorded in file order. A tracked value has references to
// variables defined on earlier lines substituted in a single pass; substituted text
// is not expanded again and references to later definitions stay as written.
func Parse(r io.Reader) (Metadata, error) {
	md := DefaultMetadata()
	vars := make(map[string]string)
	unresolved := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := parseAssignment(scanner.Text())
		if !ok {
			continue
		}

		switch key {
		case KeyName, KeyVersion, KeyRelease:
			resolved := substitute(value, vars)
			unresolved[key] = HasUnresolved(resolved)
			md.set(key, resolved)
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return DefaultMetadata(), err
	}

	for _, key := range []string{KeyName, KeyVersion, KeyRelease} {
		if unresolved[key] {
			md.Unresolved = append(md.Unresolved, key)
		}
	}
	return md, nil
}

func (m *Metadata) set(key, value string) {
	switch key {
	case KeyName:
		m.Name = value
	case KeyVersion:
		m.Version = orDefault(value)
	case KeyRelease:
		m.Release = orDefault(value)
	}
}

func orDefault(value string) string {
	if value == "" {
		return DefaultVersion
	}
	return value
}

func parseAssignment(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}

	m := assignmentRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(stripComment(m[2])), true
}

// stripComment drops a trailing make comment; an escaped \# is kept
func stripComment(value string) string {
	for i := 0; i < len(value); i++ {
		if value[i] == '#' && (i == 0 || value[i-1] != '\\') {
			return value[:i]
		}
	}
	return value
}

func substitute(value string, vars map[string]string) string {
	return referenceRe.ReplaceAllStringFunc(value, func(ref string) string {
		m := referenceRe.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return ref
	})
}
