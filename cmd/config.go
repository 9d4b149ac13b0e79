package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/airtimehq/airtime/config"
)

// ConfigCmd represents the config command group.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage the airtime CLI configuration.

Configuration is read from ~/.airtime/config.yaml (or
$AIRTIME_CONFIG_DIR/config.yaml), overridden by AIRTIME_* environment
variables, overridden by command-line flags.`,
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration after file, environment, and flag
overrides.

Examples:
  airtime config show
  airtime config show --output yaml`,
	RunE: runConfigShow,
}

// configInitCmd writes a default config file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to ~/.airtime/config.yaml.

An existing file is not overwritten.

Examples:
  airtime config init`,
	RunE: runConfigInit,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}

	return renderOutput(cmd, cfg.OutputFormat, cfg, func() string {
		dataDir, _ := cfg.GetDataDir()
		return fmt.Sprintf(`data_dir:        %s
redis.address:   %s
redis.db:        %d
use_redis_store: %t
tick_interval:   %s
output_format:   %s
journal:         %t
metrics_address: %s
debug:           %t
`,
			dataDir, cfg.Redis.Address, cfg.Redis.DB, cfg.UseRedisStore,
			cfg.TickInterval, cfg.OutputFormat, cfg.Journal,
			cfg.MetricsAddress, cfg.Debug)
	})
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.SaveConfig(config.DefaultConfig()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}
