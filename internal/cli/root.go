package cli

import (
	"fmt"
	"os"

	"github.com/dl-alexandre/gdrv-gateway/internal/config"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/pkg/version"
	"github.com/spf13/cobra"
)

// GlobalFlags are the flags shared by every command
type GlobalFlags struct {
	Config    string
	LogLevel  string
	LogFormat string
	LogFile   string
	Verbose   bool
	Quiet     bool
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      logging.Logger = logging.NewNoOpLogger()
)

var rootCmd = &cobra.Command{
	Use:   "gdrv-gateway",
	Short: "Google Drive media gateway",
	Long: `gdrv-gateway serves the media of a Google Drive folder over HTTP.

It lists folders, streams file bytes in ranged chunks and proxies
thumbnail links, authenticating every backend call with a service
account that is never exposed to callers.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(globalFlags.Config)
		if err != nil {
			return err
		}
		applyFlagOverrides(loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logConfig := logging.DefaultLogConfig()
		logConfig.Level = logging.ParseLevel(cfg.LogLevel)
		logConfig.Format = cfg.LogFormat
		logConfig.OutputFile = cfg.LogFile
		logConfig.EnableColor = cfg.LogColor
		logConfig.EnableConsole = !globalFlags.Quiet
		logConfig.Writer = cmd.ErrOrStderr()

		logger, err = logging.NewLogger(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// no config needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if jsonOutput {
			return newOutput(cmd).WriteJSON(info)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return err
	},
}

var jsonOutput bool

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFormat, "log-format", "", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress log output on the console")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(versionCmd)
}

func applyFlagOverrides(c *config.Config) {
	if globalFlags.LogLevel != "" {
		c.LogLevel = globalFlags.LogLevel
	}
	if globalFlags.Verbose {
		c.LogLevel = "debug"
	}
	if globalFlags.LogFormat != "" {
		c.LogFormat = globalFlags.LogFormat
	}
	if globalFlags.LogFile != "" {
		c.LogFile = globalFlags.LogFile
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetLogger returns the logger configured for the running command
func GetLogger() logging.Logger {
	return logger
}
