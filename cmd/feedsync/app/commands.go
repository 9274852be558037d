// Package app provides the command line interface of feedsync.
package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/versions"
)

// EnvPrefix is the prefix of environment variables read by feedsync
const EnvPrefix = "FEEDSYNC"

// NewRootCmd creates the feedsync root command with all subcommands
func NewRootCmd() *cobra.Command {
	v := newViper()

	rootCmd := &cobra.Command{
		Use:               "feedsync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Merge OpenWrt package feeds into one tree",
		Long: `feedsync mirrors several OpenWrt package collections and merges them into a
single output tree, keeping one copy of every package chosen by a merge policy.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogger(v)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	bindFlags(v, rootCmd.PersistentFlags().Lookup("log-level"), rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func initLogger(v *viper.Viper) error {
	level, err := logger.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	if v.GetBool("debug") {
		level, _ = logger.ParseLevel("debug")
	}
	return logger.Initialize(level)
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}

			switch format {
			case "json":
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("error formatting version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			case "":
				_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
				return err
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
