// Package cmd holds the spotexd command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openalpha/spotex/config"
)

// NewRootCmd creates the root command for spotexd.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spotexd",
		Short:         "Spot exchange daemon",
		Long:          "spotexd runs the spot exchange: order matching, settlement and the HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newServeCmd(),
		newSeedCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger for the configured level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
