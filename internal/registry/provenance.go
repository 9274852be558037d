package registry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProvenanceFile is written into every materialized package directory
const ProvenanceFile = ".sync_source"

// Provenance records where a materialized package came from
type Provenance struct {
	Repo    string
	Package string
	Version string
	Release string
}

// WriteProvenance writes p into dir as four "key: value" lines
func WriteProvenance(dir string, p Provenance) error {
	content := fmt.Sprintf("repo: %s\npackage: %s\nversion: %s\nrelease: %s\n",
		p.Repo, p.Package, p.Version, p.Release)
	//nolint:gosec // provenance is not secret and must be readable by build tooling
	if err := os.WriteFile(filepath.Join(dir, ProvenanceFile), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write provenance: %w", err)
	}
	return nil
}

// ReadProvenance reads the provenance file in dir. Unknown lines are ignored.
func ReadProvenance(dir string) (Provenance, error) {
	f, err := os.Open(filepath.Join(dir, ProvenanceFile))
	if err != nil {
		return Provenance{}, err
	}
	defer func() { _ = f.Close() }()

	var p Provenance
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "repo":
			p.Repo = value
		case "package":
			p.Package = value
		case "version":
			p.Version = value
		case "release":
			p.Release = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Provenance{}, fmt.Errorf("failed to read provenance: %w", err)
	}
	return p, nil
}
