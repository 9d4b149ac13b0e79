package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/airtimehq/airtime/credentials"
)

// Auth command flags.
var (
	authRedisPassword  string
	authNonInteractive bool
)

// AuthCmd represents the auth command group.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage redis credentials",
	Long: `Manage the redis password used for the message channel.

The password is stored encrypted in ~/.airtime/credentials.yaml. The
encryption key lives in the system keyring (macOS Keychain, Windows
Credential Manager, Linux Secret Service); in environments without a
keyring, set AIRTIME_ENCRYPTION_KEY to a 64-character hex string.

The AIRTIME_REDIS_PASSWORD environment variable takes precedence over
the stored password.`,
}

// authSetCmd stores the redis password.
var authSetCmd = &cobra.Command{
	Use:   "set-redis-password",
	Short: "Store the redis password",
	Long: `Store the redis password, encrypted at rest.

Examples:
  # Prompt for the password (not echoed)
  airtime auth set-redis-password

  # Non-interactive (visible in shell history; prefer the prompt)
  airtime auth set-redis-password --password s3cret`,
	RunE: runAuthSet,
}

// authStatusCmd shows the stored credential state.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored credential status",
	Long: `Show whether a redis password is stored, masked, with its key source.

Examples:
  airtime auth status`,
	RunE: runAuthStatus,
}

// authClearCmd removes stored credentials.
var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored credentials",
	Long: `Remove the stored redis credentials.

The AIRTIME_REDIS_PASSWORD environment variable is not affected.

Examples:
  airtime auth clear`,
	RunE: runAuthClear,
}

func init() {
	authSetCmd.Flags().StringVar(&authRedisPassword, "password", "", "Redis password (omit to be prompted)")
	authSetCmd.Flags().BoolVar(&authNonInteractive, "non-interactive", false, "Fail instead of prompting for input")

	AuthCmd.AddCommand(authSetCmd)
	AuthCmd.AddCommand(authStatusCmd)
	AuthCmd.AddCommand(authClearCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}

	password := authRedisPassword
	if password == "" {
		if authNonInteractive {
			return fmt.Errorf("--password is required in non-interactive mode")
		}
		fmt.Fprint(cmd.OutOrStdout(), "Redis password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimSpace(string(raw))
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	credStore, err := credentials.NewStore()
	if err != nil {
		return err
	}

	creds := &credentials.Credentials{
		RedisPassword: password,
		RedisAddress:  cfg.Redis.Address,
	}
	if err := credStore.Save(creds); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored redis password for %s (%s)\n",
		cfg.Redis.Address, credentials.MaskCredential(password))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if env := os.Getenv("AIRTIME_REDIS_PASSWORD"); env != "" {
		fmt.Fprintf(out, "Source:   environment (AIRTIME_REDIS_PASSWORD)\nPassword: %s\n",
			credentials.MaskCredential(env))
		return nil
	}

	credStore, err := credentials.NewStore()
	if err != nil {
		return err
	}

	creds, err := credStore.Load()
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			fmt.Fprintln(out, "No credentials stored.")
			return nil
		}
		return err
	}

	fmt.Fprintf(out, "Source:   stored (%s)\n", mustCredentialsPath())
	fmt.Fprintf(out, "Address:  %s\n", creds.RedisAddress)
	fmt.Fprintf(out, "Password: %s\n", credentials.MaskCredential(creds.RedisPassword))
	fmt.Fprintf(out, "Updated:  %s\n", creds.LastUpdated.Format("2006-01-02 15:04:05"))
	return nil
}

func runAuthClear(cmd *cobra.Command, args []string) error {
	credStore, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := credStore.Delete(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Stored credentials removed.")
	return nil
}

func mustCredentialsPath() string {
	path, err := credentials.CredentialsPath()
	if err != nil {
		return credentials.DefaultCredentialsFile
	}
	return path
}
