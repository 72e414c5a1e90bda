// Command taxctl is the operator CLI for taxcore: running migrations,
// submitting ingestion loads, running mapping jobs, and inspecting the
// vocabulary extracted from a Master taxonomy. It mirrors the
// teacher's single-binary-many-verbs cobra shape (cmd/bd/main.go).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/healthtax/taxcore/internal/config"
	"github.com/healthtax/taxcore/internal/observability"
	"github.com/healthtax/taxcore/internal/storage/postgres"
)

var (
	dbDSN      string
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "taxctl",
	Short: "taxctl - taxonomy ingestion and mapping control plane",
	Long:  `taxctl drives taxcore's ingestion pipeline, mapping engine and vocabulary extractor from the command line.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "Postgres DSN (overrides database.dsn from --config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or TOML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", true, "Emit command output as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for a command
// invocation: file-backed defaults, overridden by the --db flag when
// given, following the teacher's flag-beats-config precedence.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if dbDSN != "" {
		cfg.Database.DSN = dbDSN
	}
	if cfg.Database.DSN == "" {
		return cfg, fmt.Errorf("no database DSN: pass --db or set database.dsn in --config")
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	log, err := observability.NewLogger(observability.LogConfig{
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Level:      level,
	})
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func openStore(ctx context.Context, cfg config.Config) (*postgres.Store, error) {
	store, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func printJSON(v interface{}) error {
	enc := jsonEncoder(os.Stdout)
	return enc.Encode(v)
}
