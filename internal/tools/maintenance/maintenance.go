// Package maintenance implements operational commands for the clan store.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
	"github.com/guildworks/clanhall/internal/services/clans/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath     string        `env:"CLANHALL_DB_PATH"`
	Timeout    time.Duration `env:"CLANHALL_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	Sweep      bool
	Stats      bool
	Verify     bool
	JSONOutput bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "clans.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to clans sqlite database (default: CLANHALL_DB_PATH or data/clans.db)")
	fs.BoolVar(&cfg.Sweep, "sweep", false, "expire overdue pending invitations once")
	fs.BoolVar(&cfg.Stats, "stats", false, "print store-wide totals")
	fs.BoolVar(&cfg.Verify, "verify", false, "report clans whose aggregates drifted from detail rows")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// maintenanceStore is the slice of the storage surface the commands need.
type maintenanceStore interface {
	storage.InvitationStore
	storage.StatsStore
	Close() error
}

// openStore is swapped in tests to inject fakes.
var openStore = func(path string) (maintenanceStore, error) {
	return sqlite.Open(path)
}

type report struct {
	Swept  *int64                   `json:"swept,omitempty"`
	Stats  *storage.Stats           `json:"stats,omitempty"`
	Issues []storage.AggregateIssue `json:"issues,omitempty"`
}

// Run executes the selected maintenance commands.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if !cfg.Sweep && !cfg.Stats && !cfg.Verify {
		return errors.New("nothing to do: pass -sweep, -stats, or -verify")
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open clan store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "close clan store: %v\n", closeErr)
		}
	}()

	var rpt report

	if cfg.Sweep {
		swept, err := store.SweepExpiredInvitations(ctx)
		if err != nil {
			return fmt.Errorf("sweep expired invitations: %w", err)
		}
		rpt.Swept = &swept
		if !cfg.JSONOutput {
			fmt.Fprintf(out, "expired %d overdue invitations\n", swept)
		}
	}

	if cfg.Stats {
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("store stats: %w", err)
		}
		rpt.Stats = &stats
		if !cfg.JSONOutput {
			fmt.Fprintf(out, "clans: %d\n", stats.Clans)
			fmt.Fprintf(out, "active members: %d\n", stats.ActiveMembers)
			fmt.Fprintf(out, "extra channels: %d\n", stats.ExtraChannels)
			fmt.Fprintf(out, "pending invitations: %d\n", stats.PendingInvitations)
		}
	}

	var drifted bool
	if cfg.Verify {
		issues, err := store.VerifyAggregates(ctx)
		if err != nil {
			return fmt.Errorf("verify aggregates: %w", err)
		}
		rpt.Issues = issues
		drifted = len(issues) > 0
		if !cfg.JSONOutput {
			if len(issues) == 0 {
				fmt.Fprintln(out, "aggregates consistent")
			}
			for _, issue := range issues {
				fmt.Fprintf(out, "clan %s: %s stored %d, derived %d\n",
					issue.ClanName, issue.Field, issue.Stored, issue.Derived)
			}
		}
	}

	if cfg.JSONOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(rpt); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}
	if drifted {
		return errors.New("aggregate drift detected")
	}
	return nil
}
