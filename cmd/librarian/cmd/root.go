package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-librarian/internal/api"
	"go-librarian/internal/config"
	"go-librarian/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// serverURLFlag holds the value of the --server flag
var serverURLFlag string

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// logLevel and logFormat configure logrus before any command runs
var logLevel string
var logFormat string

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "librarian",
	Short: "A client for managing a self-hosted music library server",
	Long: `Librarian talks to a music library server to find and resolve duplicate
tracks, enrich metadata from MusicBrainz, and normalize library tags.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Add persistent flags that apply to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverURLFlag, "server", "", "Music library server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")

	// Hook to configure logging before any command runs
	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// loadGlobalConfig attempts to load the configuration and applies flag overrides.
// It also sets up the global HTTP transport based on logging settings.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Log a warning but don't make it fatal here; commands check the
		// fields they need from globalConfig and fail with a clearer message.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	// Override ServerURL if flag was used
	if cmd.Flags().Changed("server") {
		if serverURLFlag != "" {
			globalConfig.ServerURL = serverURLFlag
			log.Debugf("Overriding ServerURL based on --server flag: %s", serverURLFlag)
		} else {
			log.Warn("--server flag provided but value is empty, ignoring.")
		}
	}

	// Override LogApiRequests if flag was used
	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}

	// Override ApiClientTimeoutSec if flag was used and valid
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
			log.Debugf("Overriding ApiClientTimeoutSec based on --api-timeout flag: %d sec", apiTimeoutFlag)
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}

	// Ensure default timeout if not set or invalid
	if globalConfig.ApiClientTimeoutSec <= 0 {
		log.Debugf("ApiClientTimeoutSec not set or invalid in config/flags, defaulting to 30s")
		globalConfig.ApiClientTimeoutSec = 30
	}

	// --- Setup Global HTTP Transport ---
	baseTransport := http.DefaultTransport
	globalHttpTransport = baseTransport
	if globalConfig.LogApiRequests {
		log.Debug("API request logging enabled, wrapping global HTTP transport.")
		logFilePath := "api.log"
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
			// Keep globalHttpTransport as baseTransport
		} else {
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}

// newApiClient builds the API client from the loaded config and the global
// transport. Fatal when no server is configured, since every command needs one.
func newApiClient() *api.Client {
	if globalConfig.ServerURL == "" {
		log.Fatal("Server URL is not set. Use --server or set ServerURL in the config file.")
	}
	httpClient := &http.Client{
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
		Transport: globalHttpTransport,
	}
	return api.NewClient(globalConfig.ServerURL, globalConfig.ApiKey, httpClient)
}

// parseID parses a positional numeric ID argument, exiting with a usage
// message when it is not a number.
func parseID(arg, what string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		log.Fatalf("Invalid %s ID '%s': must be a number", what, arg)
	}
	return id
}

// libraryPath resolves a server-reported file path against LibraryRoot.
// Absolute server paths are re-rooted; relative ones are joined directly.
func libraryPath(serverPath string) string {
	if filepath.IsAbs(serverPath) {
		return filepath.Join(globalConfig.LibraryRoot, serverPath[1:])
	}
	return filepath.Join(globalConfig.LibraryRoot, serverPath)
}
