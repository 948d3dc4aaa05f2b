package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"synccal/internal/config"
	appLog "synccal/internal/log"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:          "synccal",
	Short:        "Two-way sync between the local scheduling calendar and an external ICS calendar",
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "/etc/synccal/config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().String("listen", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")

	for _, name := range []string{"config", "listen", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("synccal")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, syncCmd, expandCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag/env overrides.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if listen := viper.GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	appLog.Info("effective config",
		"config_path", path,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"sync_interval", cfg.SyncInterval.String(),
		"sync_cron", cfg.SyncCron,
		"store", cfg.Store.Driver,
		"provider", cfg.Provider.Name,
	)
	return cfg, nil
}
