// Package cmd provides CLI commands for the airtime tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/airtimehq/airtime/config"
	"github.com/airtimehq/airtime/credentials"
	"github.com/airtimehq/airtime/pkg/logging"
	"github.com/airtimehq/airtime/pkg/store"
)

// activeConfig is the loaded configuration, set by the root command
// before any subcommand runs.
var activeConfig *config.CLIConfig

// SetConfig hands the loaded configuration to the command layer.
func SetConfig(cfg *config.CLIConfig) {
	activeConfig = cfg
}

// getConfig returns the active configuration, loading it lazily when the
// root command has not done so (tests, direct invocation).
func getConfig() (*config.CLIConfig, error) {
	if activeConfig != nil {
		return activeConfig, nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	activeConfig = cfg
	return cfg, nil
}

// newLogger builds the logger for a command, honoring --debug.
func newLogger(cfg *config.CLIConfig, component string, sinks ...logging.Sink) logging.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Component = component
	logCfg.Sinks = sinks
	if cfg.Debug {
		logCfg.Level = logging.LevelDebug
	}
	return logging.NewLogger(logCfg)
}

// connectToRedis establishes a redis connection using the configured
// address and the password from the credential store.
func connectToRedis(ctx context.Context, cfg *config.CLIConfig) (*redis.Client, error) {
	password := os.Getenv("AIRTIME_REDIS_PASSWORD")
	if password == "" {
		if credStore, err := credentials.NewStore(); err == nil {
			if stored, err := credStore.GetRedisPassword(); err == nil {
				password = stored
			}
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Username: cfg.Redis.Username,
		Password: password,
		DB:       cfg.Redis.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Address, err)
	}

	return client, nil
}

// openStore builds the meeting store: redis-backed when configured, the
// local data directory otherwise.
func openStore(ctx context.Context, cfg *config.CLIConfig) (store.Store, error) {
	if cfg.UseRedisStore {
		client, err := connectToRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(client), nil
	}

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return store.NewFileStore(dataDir)
}

// renderOutput writes value in the configured output format. Text output
// is the caller's job; it is called with the result of textFn.
func renderOutput(cmd *cobra.Command, format config.OutputFormat, value interface{}, textFn func() string) error {
	out := cmd.OutOrStdout()

	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(value)
	default:
		_, err := fmt.Fprint(out, textFn())
		return err
	}
}
