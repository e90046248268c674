package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-objectd/pkg/config"
	"github.com/dd0wney/cluso-objectd/pkg/logging"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile      string
	nodeID       string
	logLevel     string
	statusListen string
)

var rootCmd = &cobra.Command{
	Use:           "objectd",
	Short:         "Object-model store node control plane",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&nodeID, "node-id", "", "override node.id")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	rootCmd.PersistentFlags().StringVar(&statusListen, "status-listen", "", "override status.listen")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(startCmd, epochCmd, configCmd, versionCmd)
}

// loadConfig reads the config file, or the defaults when none is given,
// and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if nodeID != "" {
		cfg.Node.ID = nodeID
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if statusListen != "" {
		cfg.Status.Listen = statusListen
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *logging.ZapLogger {
	logger := logging.New(logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logging.SetDefaultLogger(logger)
	return logger
}
