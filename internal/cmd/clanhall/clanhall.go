// Package clanhall parses clan service flags and launches the service.
package clanhall

import (
	"context"
	"errors"
	"flag"
	"log"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/guildworks/clanhall/internal/platform/cmd"
	"github.com/guildworks/clanhall/internal/services/clans/app"
	"github.com/guildworks/clanhall/internal/services/clans/storage/sqlite"
)

// Config holds clanhall command configuration.
type Config struct {
	DBPath        string        `env:"CLANHALL_DB_PATH"`
	SweepInterval time.Duration `env:"CLANHALL_SWEEP_INTERVAL" envDefault:"1h"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "clans.db")
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to clans sqlite database (default: CLANHALL_DB_PATH or data/clans.db)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "cadence for expiring overdue invitations")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the clan store and runs the invitation sweeper until the context
// is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceClanhall, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close clan store: %v", err)
			}
		}()

		service := app.NewService(store)
		log.Printf("clan store open at %s, sweeping every %s", cfg.DBPath, cfg.SweepInterval)
		if err := service.RunSweeper(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
