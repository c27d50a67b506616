package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/crowdsense/app"
	"github.com/kilianp07/crowdsense/config"
	"github.com/kilianp07/crowdsense/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "crowdsense",
	Short: "Mobile crowdsensing campaign scheduler",
	Long: "crowdsense plans which phones sense, relay and upload target data\n" +
		"so every target reaches the collector at low cost.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads --config. A missing default file yields the built-in
// defaults; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		logger.New("cli").Warnf("%s not found, using defaults", cfgPath)
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// withService builds the service from the configuration and runs fn with a
// context canceled on SIGINT or SIGTERM.
func withService(cmd *cobra.Command, mutate func(*config.Config) error, fn func(context.Context, *app.Service) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if mutate != nil {
		if err := mutate(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	svc.Start(ctx)
	return fn(ctx, svc)
}
