package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/config"
	"go-canvas-download/internal/models"
)

var (
	cfgFile        string
	envFile        string
	logLevel       string
	logFormat      string
	logApiFlag     bool
	savePathFlag   string
	patternFlag    string
	apiTimeoutFlag int
	tokenFlag      string
	cookieFlag     string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "canvas-downloader",
	Short: "Find and download lecture presentations from Canvas course modules",
	Long: `Canvas Downloader scans a Canvas LMS "Modules" page for linked files,
works out which of them are presentations, resolves each link to the real
file and downloads them a few at a time.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	api.CloseAllLoggingTransports()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml)")
	pf.StringVar(&envFile, "env-file", "", "dotenv file with CANVAS_* variables (default is ./.env when present)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log HTTP requests/responses to api.log (overrides config)")
	pf.StringVar(&savePathFlag, "save-path", "", "Directory to save files in (overrides config)")
	pf.StringVar(&patternFlag, "path-pattern", "", "Sub-directory pattern, e.g. {host}/{courseName} (overrides config)")
	pf.IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for Canvas requests in seconds (overrides config, -1 uses config default)")
	pf.StringVar(&tokenFlag, "token", "", "Canvas API access token (overrides config and CANVAS_APITOKEN)")
	pf.StringVar(&cookieFlag, "cookie", "", "Canvas session cookie header value (overrides config and CANVAS_SESSIONCOOKIE)")
}

// cliFlags collects only the flags the user actually set.
func cliFlags(cmd *cobra.Command) config.CliFlags {
	flags := config.CliFlags{}
	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	if changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if changed("env-file") {
		flags.EnvFilePath = &envFile
	}
	if changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if changed("save-path") {
		flags.SavePath = &savePathFlag
	}
	if changed("path-pattern") {
		flags.PathPattern = &patternFlag
	}
	if changed("api-timeout") {
		flags.APIClientTimeoutSec = &apiTimeoutFlag
	}
	if changed("token") {
		flags.APIToken = &tokenFlag
	}
	if changed("cookie") {
		flags.SessionCookie = &cookieFlag
	}

	if cmd.Flags().Lookup("concurrency") != nil {
		flags.Download = &config.CliDownloadFlags{}
		if changed("concurrency") {
			flags.Download.Concurrency = &downloadConcurrencyFlag
		}
		if changed("confirmed-only") {
			flags.Download.ConfirmedOnly = &downloadConfirmedOnlyFlag
		}
		if changed("yes") {
			flags.Download.SkipConfirmation = &downloadYesFlag
		}
	}
	return flags
}

// loadGlobalConfig loads the configuration, applies flag overrides and
// configures logging before any command runs.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	// Flags first, so config loading itself logs at the requested level
	setupLogging(logLevel, logFormat)

	cfg, transport, err := config.Initialize(cliFlags(cmd))
	if err != nil {
		return err
	}
	globalConfig = cfg
	globalHttpTransport = transport

	setupLogging(cfg.LogLevel, cfg.LogFormat)
	log.Debugf("Effective save path: %s (pattern %q)", cfg.SavePath, cfg.PathPattern)
	return nil
}

func setupLogging(level, format string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level '%s', using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// newAPIClient builds a Canvas client on the configured transport.
func newAPIClient() *api.Client {
	return api.NewClient(globalConfig, &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.APIClientTimeoutSec) * time.Second,
	})
}
