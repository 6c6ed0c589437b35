// File: cmd/hbusctl/root.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-bus/facade"
)

var (
	cfgFile  string
	dirFlag  string
	logLevel string
	external bool

	cfg *facade.Config
)

var rootCmd = &cobra.Command{
	Use:   "hbusctl",
	Short: "Publish, subscribe and ping over a hioload-bus media driver",
	Long: `hbusctl drives the hioload-bus handle API from the command line.
By default an embedded media driver is started for the directory; use
--external to attach to a driver another process already runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = facade.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dirFlag != "" {
			cfg.Dir = dirFlag
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if external {
			cfg.EmbeddedDriver = false
		}
		return cfg.Validate()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./hbus.yaml or ~/.hbus/hbus.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "media driver directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&external, "external", false, "attach to an already running driver instead of embedding one")
}

// openBus builds and connects a bus from the effective config.
func openBus(ctx context.Context) (*facade.Bus, error) {
	b, err := facade.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", cfg.Dir, err)
	}
	return b, nil
}
