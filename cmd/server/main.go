package main

import (
	"fmt"
	"os"
	"strings"

	"agridash/internal/config"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	addr     string
	cfg      *config.Global
)

var rootCmd = &cobra.Command{
	Use:          "agridash",
	Short:        "OECD agri-environmental indicators dashboard",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(true)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./agridash.yaml or ~/.agridash/agridash.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address for serve")
}

// loadConfig reads file/env/defaults, then applies explicitly set flags.
// A config that cannot be read or validated is an error when strict;
// otherwise the defaults are used.
func loadConfig(strict bool) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		if strict {
			return err
		}
		log.Warnf("config: %v (falling back to defaults)", err)
		c = config.Default()
	}
	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if f.Changed("addr") {
		c.Addr = addr
	}
	cfg = c
	log.SetLevel(parseLevel(cfg.LogLevel))
	return nil
}

func parseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
