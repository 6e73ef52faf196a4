package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/itohio/daqsim/pkg/config"
)

var (
	configFile string // Configuration file path
	logLevel   string // Log level override
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "daqsim",
	Short:         "Simulated DAQ device driven through a step scan",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig loads the configuration file and applies the log level, the
// --log flag taking precedence over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if cmd.Flags().Changed("log") || level == "" {
		level = logLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(lvl)
	cfg.Log.Level = lvl.String()

	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(initCmd)
}
