// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"linkrelay/internal/config"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig      string
	flagQuality     string
	flagDownloadDir string
	flagDebug       bool
	flagJSON        bool
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

// logger is built once the configuration is known.
var logger logging.Logger = logging.Discard()

var rootCmd = &cobra.Command{
	Use:   "linkrelay",
	Short: "Relay video links from chat into uploaded media",
	Long: `linkrelay is a Telegram bot that turns lists of video links into uploaded videos.
Send it a .txt or .html file of links, or a single URL, and it downloads each video
with yt-dlp and uploads it back to the chat or a channel.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/linkrelay/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&flagQuality, "quality", "q", "", "Default quality: 360 | 480 | 720 | 1080")
	rootCmd.PersistentFlags().StringVarP(&flagDownloadDir, "download-dir", "d", "", "Staging directory for downloads")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "JSON output (and JSON logs)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagQuality != "" {
		q, err := media.ParseQuality(flagQuality)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		cfg.Quality = q.String()
	}
	if flagDownloadDir != "" {
		cfg.DownloadDir = flagDownloadDir
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger = logging.New(cfg.Debug, flagJSON)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "linkrelay %s\n", Version)
	},
}
