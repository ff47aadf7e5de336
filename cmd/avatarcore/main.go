// Package main provides the CLI entry point for avatarcore.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/avatarcore/internal/config"
	"github.com/normanking/avatarcore/internal/logging"
)

// Version information (set at build time)
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "avatarcore",
		Short: "Headless animated avatar runtime",
		Long: `avatarcore drives an animated character frame by frame:
emotion clips cross-fade on a skeleton while speech audio moves the mouth
through viseme morph targets.

Use 'avatarcore [command] --help' for more information.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.avatarcore/config.yaml)")

	load := func() (*config.Store, *config.Config, error) {
		store, err := config.Open(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg, err := store.Load()
		if err != nil {
			return nil, nil, err
		}
		return store, cfg, nil
	}

	rootCmd.AddCommand(
		newRunCmd(load),
		newCacheCmd(load),
		newConfigCmd(load),
	)
	return rootCmd
}

type loadFunc func() (*config.Store, *config.Config, error)

func newLogger(cfg *config.Config, verbose bool) (*logging.Logger, error) {
	logCfg := cfg.Log
	if verbose {
		logCfg.Level = "debug"
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return log, nil
}
