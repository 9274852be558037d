// Package config provides configuration loading and validation for feedsync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openwrt-feedsync/feedsync/internal/filtering"
	"github.com/openwrt-feedsync/feedsync/internal/merge"
)

const (
	// SourceTypeGit is the type for sources cloned from Git repositories
	SourceTypeGit = "git"

	// SourceTypeFile is the type for sources read in place from a local directory
	SourceTypeFile = "file"
)

const (
	// DefaultOutputDir is the consolidated output tree
	DefaultOutputDir = "."

	// DefaultWorkDir holds working copies of git sources
	DefaultWorkDir = "./temp_repos"

	// DefaultPriority ranks sources without an explicit priority
	DefaultPriority = 100

	// DefaultFetchConcurrency is the number of sources fetched at once
	DefaultFetchConcurrency = 1

	// GitPasswordEnvVar is read when a git source has auth but no password file
	GitPasswordEnvVar = "FEEDSYNC_GIT_PASSWORD"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path      string
	overrides []func(*Config)
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		cfg.path = realPath
		return nil
	}
}

// WithOverrides applies fn to the parsed configuration before defaults and
// validation, so command line flags are validated like file settings
func WithOverrides(fn func(*Config)) Option {
	return func(cfg *loaderConfig) error {
		if fn == nil {
			return fmt.Errorf("override function is required")
		}
		cfg.overrides = append(cfg.overrides, fn)
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// OutputDir is the consolidated package tree
	OutputDir string `yaml:"outputDir,omitempty" json:"outputDir,omitempty"`

	// WorkDir holds git working copies, the run lock and the status file
	WorkDir string `yaml:"workDir,omitempty" json:"workDir,omitempty"`

	// Policy selects the merge strategy: priority or version
	Policy string `yaml:"policy,omitempty" json:"policy,omitempty"`

	// FetchConcurrency bounds parallel source fetches
	FetchConcurrency int `yaml:"fetchConcurrency,omitempty" json:"fetchConcurrency,omitempty"`

	// Prune deletes output packages no source produced, after a fully successful fetch
	Prune bool `yaml:"prune,omitempty" json:"prune,omitempty"`

	// Reserved lists extra output tree entries that are never treated as packages
	Reserved []string `yaml:"reserved,omitempty" json:"reserved,omitempty"`

	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// Sources are ordered; the order breaks ties between equally ranked candidates
	Sources []SourceConfig `yaml:"sources" json:"sources"`
}

// SourceConfig defines a single upstream package collection
type SourceConfig struct {
	// Name identifies the source in logs, provenance files and the work dir
	Name string `yaml:"name" json:"name"`

	// Priority ranks the source, lower is preferred. Unset means DefaultPriority.
	Priority *int `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Type-specific configurations (only one should be set)
	Git  *GitConfig  `yaml:"git,omitempty" json:"git,omitempty"`
	File *FileConfig `yaml:"file,omitempty" json:"file,omitempty"`

	// Filter limits which packages of the source take part in the merge
	Filter *FilterConfig `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// GitConfig defines Git source settings
type GitConfig struct {
	// Repository is the Git repository URL (HTTP/HTTPS or a local path)
	Repository string `yaml:"repository" json:"repository"`

	// Branch is the Git branch to track, the remote HEAD when empty
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`

	// MaxAttempts bounds clone retries
	MaxAttempts uint `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`

	Auth *GitAuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// GitAuthConfig defines HTTP basic authentication for a Git source
type GitAuthConfig struct {
	Username string `yaml:"username" json:"username"`

	// PasswordFile is read for the password; FEEDSYNC_GIT_PASSWORD is used otherwise
	PasswordFile string `yaml:"passwordFile,omitempty" json:"passwordFile,omitempty"`
}

// FileConfig defines a local directory source
type FileConfig struct {
	// Path is the source tree on the local filesystem
	Path string `yaml:"path" json:"path"`
}

// FilterConfig defines package filtering rules for a source
type FilterConfig struct {
	Names *NameFilterConfig `yaml:"names,omitempty" json:"names,omitempty"`
}

// NameFilterConfig defines glob patterns matched against package names
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// MetricsConfig defines metrics export
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after each run
	Textfile string `yaml:"textfile,omitempty" json:"textfile,omitempty"`
}

// GetPassword returns the git password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from FEEDSYNC_GIT_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (a *GitAuthConfig) GetPassword() (string, error) {
	if a.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(a.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", a.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(GitPasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no git password configured: set passwordFile or %s environment variable", GitPasswordEnvVar,
	)
}

// LoadConfig loads, defaults and validates configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	for _, override := range loaderCfg.overrides {
		override(&config)
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.Policy == "" {
		c.Policy = merge.PolicyPriority
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
}

// ReservedNames returns the output tree entries to leave alone: the configured
// extras and the work dir name
func (c *Config) ReservedNames() []string {
	names := append([]string{}, c.Reserved...)
	if c.WorkDir != "" {
		names = append(names, filepath.Base(filepath.Clean(c.WorkDir)))
	}
	return names
}

// MetricsTextfile returns the metrics output path, empty when disabled
func (c *Config) MetricsTextfile() string {
	if c.Metrics == nil {
		return ""
	}
	return c.Metrics.Textfile
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if _, err := merge.NewStrategy(c.Policy); err != nil {
		return err
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("fetchConcurrency must be at least 1, got %d", c.FetchConcurrency)
	}

	outputAbs, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("invalid outputDir: %w", err)
	}
	workAbs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("invalid workDir: %w", err)
	}
	if outputAbs == workAbs {
		return fmt.Errorf("workDir and outputDir must differ")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	names := make(map[string]bool)
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name == "" {
			return fmt.Errorf("source[%d]: name is required", i)
		}
		if names[src.Name] {
			return fmt.Errorf("source[%d]: duplicate source name '%s'", i, src.Name)
		}
		names[src.Name] = true

		if err := validateSourceConfig(src, i); err != nil {
			return err
		}
	}

	return nil
}

// validateSourceConfig validates a single source configuration
func validateSourceConfig(src *SourceConfig, index int) error {
	prefix := fmt.Sprintf("source[%d] (%s)", index, src.Name)

	if !filepath.IsLocal(src.Name) || strings.ContainsAny(src.Name, `/\`) {
		return fmt.Errorf("%s: name must be a plain directory name", prefix)
	}
	if src.Priority != nil && *src.Priority < 0 {
		return fmt.Errorf("%s: priority must not be negative", prefix)
	}

	switch {
	case src.Git == nil && src.File == nil:
		return fmt.Errorf("%s: one of git or file configuration must be specified", prefix)
	case src.Git != nil && src.File != nil:
		return fmt.Errorf("%s: only one of git or file configuration may be specified", prefix)
	case src.Git != nil && src.Git.Repository == "":
		return fmt.Errorf("%s: git.repository is required", prefix)
	case src.Git != nil && src.Git.Auth != nil && src.Git.Auth.Username == "":
		return fmt.Errorf("%s: git.auth.username is required", prefix)
	case src.File != nil && src.File.Path == "":
		return fmt.Errorf("%s: file.path is required", prefix)
	}

	include, exclude := src.NamePatterns()
	for _, pattern := range append(append([]string{}, include...), exclude...) {
		if err := filtering.ValidatePattern(pattern); err != nil {
			return fmt.Errorf("%s: filter: %w", prefix, err)
		}
	}
	return nil
}

// GetType returns the inferred type of the source config based on which field is present
func (s *SourceConfig) GetType() string {
	if s.Git != nil {
		return SourceTypeGit
	}
	if s.File != nil {
		return SourceTypeFile
	}
	return ""
}

// NamePatterns returns the include and exclude name patterns of the source
func (s *SourceConfig) NamePatterns() (include, exclude []string) {
	if s.Filter == nil || s.Filter.Names == nil {
		return nil, nil
	}
	return s.Filter.Names.Include, s.Filter.Names.Exclude
}

// GetPriority returns the source rank, DefaultPriority when unset
func (s *SourceConfig) GetPriority() int {
	if s.Priority == nil {
		return DefaultPriority
	}
	return *s.Priority
}
