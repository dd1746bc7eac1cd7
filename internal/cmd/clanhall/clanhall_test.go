package clanhall

import (
	"context"
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("clanhall", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath == "" {
		t.Fatal("db path not defaulted")
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("sweep interval = %s, want 1h", cfg.SweepInterval)
	}
}

func TestParseConfigFlagsOverride(t *testing.T) {
	fs := flag.NewFlagSet("clanhall", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db-path", "/tmp/custom.db", "-sweep-interval", "5m"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/custom.db" {
		t.Fatalf("db path = %q, want /tmp/custom.db", cfg.DBPath)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("sweep interval = %s, want 5m", cfg.SweepInterval)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		DBPath:        t.TempDir() + "/clans.db",
		SweepInterval: 10 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run err = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
