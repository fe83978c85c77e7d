package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arakabCL/TheNotch/internal/auth"
	"github.com/arakabCL/TheNotch/internal/calendar"
	"github.com/arakabCL/TheNotch/internal/config"
	"github.com/arakabCL/TheNotch/internal/logger"
	"github.com/arakabCL/TheNotch/internal/secrets"
)

var (
	cacheDir string
	verbose  bool
	cfgFile  string
	cfg      *config.Config

	// Version information
	version    string
	commitHash string
	buildTime  string
)

var rootCmd = &cobra.Command{
	Use:   "notchd",
	Short: "Calendar backend for the notch bar with staged reminders",
	Long: `notchd is the calendar-integration backend of the notch bar: it signs in
to Google Calendar with OAuth 2.0 PKCE, keeps tokens fresh, polls the
upcoming event window, and fires staged reminders before each event.

Run 'notchd auth' once to sign in, then 'notchd watch' as a long-lived
daemon, or 'notchd sync' / 'notchd status' for one-shot snapshots.`,
}

func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, commit, buildTimeStr string) {
	version = v
	commitHash = commit
	buildTime = buildTimeStr

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commitHash, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "cache directory (default: ~/.cache/notchd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/notchd/config.toml)")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(signoutCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

func initConfig() {
	logger.Init(verbose)

	if cacheDir == "" {
		defaultCacheDir, err := config.GetDefaultCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting default cache directory: %v\n", err)
			os.Exit(1)
		}
		cacheDir = defaultCacheDir
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// newTokenManager wires the secret store and token manager the rest of the
// commands read through.
func newTokenManager() (*auth.TokenManager, error) {
	store, err := secrets.NewFileStore(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	return auth.NewTokenManager(store, cfg.OAuth.ClientID, cfg.OAuth.ClientSecret), nil
}

func newSynchronizer(tokens *auth.TokenManager) *calendar.Synchronizer {
	return calendar.NewSynchronizer(tokens, cfg.Sync)
}
