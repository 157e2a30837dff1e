// Package cli provides the cobra command tree for portsweep: one-shot scans,
// profile listings, the API server, persisted job inspection and migrations.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/logging"
)

const defaultConfigFile = "portsweep.yaml"

var (
	cfgFile string
	verbose bool

	// appConfig is loaded before any subcommand runs.
	appConfig *config.Config
)

// Build information, overridden by SetVersion.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "portsweep",
	Short: "TCP/UDP port reachability scanner",
	Long: `portsweep probes hosts for reachable TCP and UDP ports. Targets may be
single addresses, hostnames or IPv4 CIDR blocks; ports may be lists, ranges
or named sets such as "common" and "top1000".

Scans run once from the command line, or as background jobs through the
HTTP API started by "portsweep serve".`,
	Version:           getVersion(),
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./portsweep.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// initConfig layers defaults, the config file and PORTSWEEP_* environment
// variables, then installs the configured logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	default:
		if _, err := os.Stat(defaultConfigFile); err == nil {
			v.SetConfigFile(defaultConfigFile)
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Level = logging.LevelDebug
	}
	appConfig = cfg

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to initialize logging: %v\n", err)
		logger = logging.NewDefault()
	}
	logging.SetDefault(logger)

	if used := v.ConfigFileUsed(); used != "" {
		logging.Debug("Configuration loaded", "file", used)
	}
	return nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "portsweep %s\n", getVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
