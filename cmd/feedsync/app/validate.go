package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openwrt-feedsync/feedsync/internal/config"
)

func newValidateCmd() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load and validate a configuration file without fetching anything, then print
the sources in the order they are merged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(w, "Valid configuration\n  Policy: %s\n  Output: %s\n  Work dir: %s\n",
				cfg.Policy, cfg.OutputDir, cfg.WorkDir); err != nil {
				return err
			}

			rows := make([][]string, 0, len(cfg.Sources))
			for i := range cfg.Sources {
				src := &cfg.Sources[i]
				include, exclude := src.NamePatterns()
				rows = append(rows, []string{
					src.Name,
					src.GetType(),
					strconv.Itoa(src.GetPriority()),
					sourceLocation(src),
					strings.Join(include, " "),
					strings.Join(exclude, " "),
				})
			}

			table := tablewriter.NewWriter(w)
			table.Header("Source", "Type", "Priority", "Location", "Include", "Exclude")
			if err := table.Bulk(rows); err != nil {
				return fmt.Errorf("failed to render sources: %w", err)
			}
			return table.Render()
		},
	}

	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	bindFlags(v, cmd.Flags().Lookup("config"))
	return cmd
}

func sourceLocation(src *config.SourceConfig) string {
	switch {
	case src.Git != nil && src.Git.Branch != "":
		return src.Git.Repository + "@" + src.Git.Branch
	case src.Git != nil:
		return src.Git.Repository
	case src.File != nil:
		return src.File.Path
	}
	return ""
}
