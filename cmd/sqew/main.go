// Command sqew is the single binary for the sqew message-queue service: it
// serves the HTTP API (`sqew serve`) and administers queues and messages
// directly against the database file (`sqew queue ...`, `sqew message ...`).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SecretDeveloper/sqew/internal/config"
	"github.com/SecretDeveloper/sqew/internal/store"
)

var (
	configFile    string
	dbPath        string
	forceRecreate bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sqew",
		Short:         "sqew - a durable single-node message queue over SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database file (default ./sqew.db)")
	rootCmd.PersistentFlags().BoolVar(&forceRecreate, "force-recreate", false, "Delete and recreate the database file before running")

	rootCmd.AddCommand(
		serveCmd(),
		queueCmd(),
		messageCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration, folding the --db flag over
// the file and environment values.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// openDB opens the configured database, creating it (and its schema) when
// absent.
func openDB() (*store.DB, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(store.Options{Path: cfg.DBPath, ForceRecreate: forceRecreate})
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
