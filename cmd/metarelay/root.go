package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dsifry/metarelay/internal/config"
	"github.com/dsifry/metarelay/internal/logging"
	"github.com/dsifry/metarelay/internal/version"
)

var (
	flagConfig  string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "metarelay",
		Short:         "Relay remote repository events to local handlers",
		Long:          "metarelay bridges a hosted event stream to local shell-command handlers,\nguaranteeing each event is observed exactly once, in order, across restarts.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default: data dir config.yaml)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newStartCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the metarelay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})

	return root
}

// loadConfig resolves the config path, loads and validates it, and installs
// the redacting logger. Every error out of here is a config error.
func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %v", errConfig, err)
		}
		path = filepath.Join(dir, "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %v", errConfig, err)
	}

	loadedSecrets = append(loadedSecrets, cfg.Cloud.Key.Value())
	logging.Setup(cfg.LogLevel, flagVerbose, cfg.Cloud.Key.Value())
	return cfg, nil
}
