package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidqueue/vidqueue-go/internal/api"
	"github.com/vidqueue/vidqueue-go/internal/config"
	"github.com/vidqueue/vidqueue-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServer     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. It is available to all subcommands.
var resolvedCfg *config.Config

// httpClientTimeout bounds list/auth requests. Uploads and downloads
// get their own client without a deadline: a large video over a slow
// link legitimately takes longer than any fixed timeout.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vidqueue",
		Short:   "Video processing service client",
		Long:    "Upload videos for server-side processing, track their status, and download the results.",
		Version: version,
		// Silence Cobra's default error/usage printing; exitOnError handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServer, "server", "", "server base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newVideosCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		ServerURL:  flagServer,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Config-file log level provides the baseline;
// --verbose and --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// sessionStore returns the token store at the configured location.
func sessionStore(logger *slog.Logger) *session.Store {
	return session.NewStore(config.TokenPath(), logger)
}

// sessionGuard builds the invalidation capability injected into the
// uploader and poller: clear the credential, then tell the user once.
func sessionGuard(store *session.Store, logger *slog.Logger) *session.Guard {
	return session.NewGuard(store, func() {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'vidqueue login' to sign in again.")
	}, logger)
}

// newAPIClient builds a service client bound to the session store.
// Pass a nil httpClient to use the default bounded-timeout client.
func newAPIClient(store *session.Store, httpClient *http.Client, logger *slog.Logger) *api.Client {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}

	return api.NewClient(resolvedCfg.ServerURL, httpClient, store, logger)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
