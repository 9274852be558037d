package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/merge"
	"github.com/openwrt-feedsync/feedsync/internal/sources"
	pkgsync "github.com/openwrt-feedsync/feedsync/internal/sync"
	"github.com/openwrt-feedsync/feedsync/internal/telemetry"
)

func newSyncCmd() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch all sources and merge them into the output tree",
		Long: `Fetch every configured source, resolve packages present in more than one source
with the merge policy, and write the winners into the output tree.

The configuration file (--config) lists the sources and the merge policy. Flags
override the corresponding file settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, v)
		},
	}

	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().String("output-dir", "", "Output tree (overrides outputDir)")
	cmd.Flags().String("work-dir", "", "Working directory for git sources (overrides workDir)")
	cmd.Flags().String("policy", "", "Merge policy: priority or version (overrides policy)")
	cmd.Flags().Bool("dry-run", false, "Print decisions without touching the output tree")
	cmd.Flags().Bool("prune", false, "Delete packages no source provides (overrides prune)")
	bindFlags(v,
		cmd.Flags().Lookup("config"),
		cmd.Flags().Lookup("output-dir"),
		cmd.Flags().Lookup("work-dir"),
		cmd.Flags().Lookup("policy"),
		cmd.Flags().Lookup("dry-run"),
		cmd.Flags().Lookup("prune"),
	)

	return cmd
}

// loadConfig loads the configuration named by --config and applies flag overrides
func loadConfig(v *viper.Viper) (*config.Config, error) {
	configPath := v.GetString("config")
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadConfig(
		config.WithConfigPath(configPath),
		config.WithOverrides(func(c *config.Config) {
			if v.IsSet("output-dir") && v.GetString("output-dir") != "" {
				c.OutputDir = v.GetString("output-dir")
			}
			if v.IsSet("work-dir") && v.GetString("work-dir") != "" {
				c.WorkDir = v.GetString("work-dir")
			}
			if v.IsSet("policy") && v.GetString("policy") != "" {
				c.Policy = v.GetString("policy")
			}
			if v.IsSet("prune") {
				c.Prune = v.GetBool("prune")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runSync(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	dryRun := v.GetBool("dry-run")
	logger.Infof("Loaded configuration from %s (%d sources, policy: %s)",
		v.GetString("config"), len(cfg.Sources), cfg.Policy)

	opts := []pkgsync.Option{pkgsync.WithDryRun(dryRun)}

	var exporter *telemetry.TextfileExporter
	if textfile := cfg.MetricsTextfile(); textfile != "" && !dryRun {
		exporter, err = telemetry.NewTextfileExporter(textfile)
		if err != nil {
			return err
		}
		defer func() {
			if err := exporter.Shutdown(context.Background()); err != nil {
				logger.Warnf("Failed to shut down metrics: %v", err)
			}
		}()

		metrics, err := telemetry.NewSyncMetrics(exporter.MeterProvider())
		if err != nil {
			return fmt.Errorf("failed to create sync metrics: %w", err)
		}
		opts = append(opts, pkgsync.WithSyncMetrics(metrics))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := pkgsync.NewManager(cfg, sources.NewSourceHandlerFactory(cfg.WorkDir), opts...)
	result, syncErr := manager.Run(ctx)

	if exporter != nil {
		if err := exporter.Write(); err != nil {
			logger.Warnf("Failed to write metrics: %v", err)
		}
	}

	if syncErr != nil {
		return fmt.Errorf("sync failed: %w", syncErr)
	}
	return printSummary(cmd.OutOrStdout(), result)
}

// printSummary renders the decisions that changed something, then the totals
func printSummary(w io.Writer, result *pkgsync.Result) error {
	var rows [][]string
	for _, d := range result.Decisions {
		if d.Outcome == merge.OutcomeSkipped {
			continue
		}
		rows = append(rows, []string{
			d.Winner.Name.Effective,
			d.Winner.Version,
			d.Winner.Release,
			d.Winner.SourceID,
			d.Outcome.String(),
			strconv.Itoa(len(d.Losers)),
		})
	}
	for _, failure := range result.FailedPackages {
		rows = append(rows, []string{failure.Name, "", "", failure.Source, "failed", ""})
	}
	for _, key := range result.Pruned {
		rows = append(rows, []string{key, "", "", "", "pruned", ""})
	}

	if len(rows) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Package", "Version", "Release", "Source", "Outcome", "Overridden")
		if err := table.Bulk(rows); err != nil {
			return fmt.Errorf("failed to render summary: %w", err)
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render summary: %w", err)
		}
	}

	prefix := ""
	if result.DryRun {
		prefix = "(dry run) "
	}
	c := result.Counts
	if _, err := fmt.Fprintf(w, "%snew: %d, updated: %d, skipped: %d, failed: %d, pruned: %d\n",
		prefix, c.New, c.Updated, c.Skipped, c.Failed, c.Pruned); err != nil {
		return err
	}
	if failed := result.FailedSources(); len(failed) > 0 {
		if _, err := fmt.Fprintf(w, "failed sources: %s\n", strings.Join(failed, ", ")); err != nil {
			return err
		}
	}
	return nil
}
