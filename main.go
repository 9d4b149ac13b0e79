// Package main provides the airtime CLI entry point.
// airtime tracks who gets heard in meetings: it times speaking turns per
// category and reports how the airtime was actually distributed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/airtimehq/airtime/cmd"
	"github.com/airtimehq/airtime/config"
	"github.com/airtimehq/airtime/pkg/buildinfo"
)

// Global flags and state.
var (
	dataDir      string
	redisAddr    string
	tickInterval time.Duration
	outputFormat string
	debug        bool

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "airtime",
	Short: "Speaking-time tracker for fair meetings",
	Long: `airtime times who is speaking in a meeting, per category, and reports
how speaking time was distributed against a fair per-head split.

A meeting runs as one main session that owns the record, plus an
optional popout remote control in a second terminal. The two stay in
sync over a redis message channel; if the channel drops, the main
session keeps measuring and the popout freezes at its last known state.

TYPICAL FLOW:
  airtime setup                 Create the meeting (name, date, head counts)
  airtime meeting run           Start timing (keys: m/w/n, p, e, q)
  airtime meeting popout        Optional remote control, second terminal
  airtime stats                 Fairness report after the meeting

DISCOVERY:
  airtime <command> --help      Subcommands, flags, and examples
  airtime config show           Effective configuration
  airtime meeting status        Last persisted meeting state`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if redisAddr != "" {
			cfg.Redis.Address = redisAddr
		}
		if tickInterval != 0 {
			cfg.TickInterval = tickInterval
		}
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
		}
		if debug {
			cfg.Debug = true
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		cmd.SetConfig(cfg)
		return nil
	},
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the airtime CLI.

Examples:
  airtime version
  airtime version --output-json`,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get("airtime")

		if versionOutputJSON {
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		out := c.OutOrStdout()
		fmt.Fprintf(out, "airtime version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for meeting records (default ~/.airtime/data)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address for the message channel (default localhost:6379)")
	rootCmd.PersistentFlags().DurationVar(&tickInterval, "tick-interval", 0, "Timer display refresh cadence (default 100ms)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "Output format: text, json, or yaml (default text)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output version as JSON")

	rootCmd.AddCommand(cmd.SetupCmd)
	rootCmd.AddCommand(cmd.MeetingCmd)
	rootCmd.AddCommand(cmd.StatsCmd)
	rootCmd.AddCommand(cmd.ConfigCmd)
	rootCmd.AddCommand(cmd.AuthCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
