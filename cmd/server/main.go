// Command microblog runs the microblog server and manages its database.
//
//	microblog serve            # HTTP server, activity dispatcher, token sweep
//	microblog migrate up       # apply pending migrations
//	microblog migrate down -n 1
//	microblog migrate version
//
// Settings come from the environment and an optional config.yaml; see
// internal/config.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/microblog/internal/config"
	"github.com/sakif/microblog/internal/repository/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "microblog",
		Short:         "Microblog server: posts, followers and private messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

// loadConfig reads settings and builds the logger at the configured level.
func loadConfig(out io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return cfg, logger, nil
}

// openDB opens the database without migrating, creating the parent
// directory first (like `mkdir -p`).
func openDB(path string) (*sqlite.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return sqlite.Open(path)
}
