package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/registry"
	"github.com/openwrt-feedsync/feedsync/internal/status"
)

func newListCmd() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the packages in the output tree",
		Long: `List every package in the output tree with its version and the source it was
copied from. With --config, the summary of the last sync run is printed as well.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outputDir := v.GetString("output-dir")
			var (
				reserved []string
				workDir  string
			)

			if v.GetString("config") != "" {
				cfg, err := loadConfig(v)
				if err != nil {
					return err
				}
				outputDir = cfg.OutputDir
				workDir = cfg.WorkDir
				reserved = cfg.ReservedNames()
			}
			if outputDir == "" {
				return fmt.Errorf("one of --config or --output-dir is required")
			}

			reg, err := registry.Load(outputDir, reserved)
			if err != nil {
				return err
			}
			if err := printRegistry(cmd.OutOrStdout(), reg); err != nil {
				return err
			}

			if workDir == "" {
				return nil
			}
			last, err := status.NewFilePersistence(workDir).Load(cmd.Context())
			if err != nil {
				return err
			}
			return printLastRun(cmd.OutOrStdout(), last)
		},
	}

	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	cmd.Flags().String("output-dir", config.DefaultOutputDir, "Output tree to list when no configuration is given")
	bindFlags(v, cmd.Flags().Lookup("config"), cmd.Flags().Lookup("output-dir"))

	return cmd
}

func printRegistry(w io.Writer, reg *registry.Registry) error {
	keys := reg.Keys()
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "No packages found")
		return err
	}

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		entry, _ := reg.Get(key)
		rows = append(rows, []string{
			key,
			entry.Version,
			entry.Release,
			entry.Origin,
			strings.Join(entry.Dirs, ", "),
		})
	}

	table := tablewriter.NewWriter(w)
	table.Header("Package", "Version", "Release", "Source", "Directories")
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("failed to render packages: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render packages: %w", err)
	}
	_, err := fmt.Fprintf(w, "%d packages\n", len(keys))
	return err
}

func printLastRun(w io.Writer, last *status.RunStatus) error {
	if last.RunID == "" {
		_, err := fmt.Fprintln(w, "No sync run recorded")
		return err
	}

	finished := "in progress"
	if last.FinishedAt != nil {
		finished = last.FinishedAt.Format(time.RFC3339)
	}
	c := last.Counts
	_, err := fmt.Fprintf(w,
		"Last run %s: %s (%s), policy %s, new: %d, updated: %d, skipped: %d, failed: %d, pruned: %d\n",
		last.RunID, last.Phase, finished, last.Policy, c.New, c.Updated, c.Skipped, c.Failed, c.Pruned)
	if err != nil {
		return err
	}
	if failed := last.FailedSources(); len(failed) > 0 {
		if _, err := fmt.Fprintf(w, "Failed sources: %s\n", strings.Join(failed, ", ")); err != nil {
			return err
		}
	}
	return nil
}
