// Package cli provides the command-line interface for configrepo.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Promptonauts/configrepo/internal/config"
	"github.com/Promptonauts/configrepo/pkg/store"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var Version = "0.1.0"

type configKey struct{}

type loggerKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "configrepo",
		Short: "Validate and reconcile config repository job definitions",
		Long: `configrepo parses job definitions kept in configuration repositories,
validates the whole tree in one pass, and reloads a source only when its
definition actually changed. It also reports job execution history kept in
the state database.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configrepo.yaml)")
	rootCmd.PersistentFlags().String("state", "", "Path to state database")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Duration("hung-after", 0, "Time without a transition after which an in-progress job is hung")

	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewCompareCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewHistoryCommand())
	rootCmd.AddCommand(NewHungCommand())
	rootCmd.AddCommand(NewActiveCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		StatePath:  config.DefaultStatePath,
		Listen:     config.DefaultListen,
		HungAfter:  config.DefaultHungAfter,
		LogLevel:   config.DefaultLogLevel,
		IngestJobs: config.DefaultIngestJobs,
	}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// openStore opens and migrates the state database, creating its directory if needed.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(cfg.StatePath,
		store.WithHungAfter(cfg.HungAfter),
		store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}
	return st, nil
}
