package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/invite"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

type fakeStore struct {
	swept    int64
	sweepErr error
	stats    storage.Stats
	statsErr error
	issues   []storage.AggregateIssue
	closed   bool
}

func (f *fakeStore) CreateInvitation(ctx context.Context, inv invite.Invitation) error {
	return errors.New("not implemented")
}

func (f *fakeStore) GetInvitation(ctx context.Context, id string) (invite.Invitation, error) {
	return invite.Invitation{}, storage.ErrNotFound
}

func (f *fakeStore) AcceptInvitation(ctx context.Context, id string) (storage.AcceptInvitationResult, error) {
	return storage.AcceptInvitationResult{}, storage.ErrNotFound
}

func (f *fakeStore) RejectInvitation(ctx context.Context, id string) error {
	return storage.ErrNotFound
}

func (f *fakeStore) SweepExpiredInvitations(ctx context.Context) (int64, error) {
	return f.swept, f.sweepErr
}

func (f *fakeStore) Stats(ctx context.Context) (storage.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeStore) VerifyAggregates(ctx context.Context) ([]storage.AggregateIssue, error) {
	return f.issues, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func withFakeStore(t *testing.T, fake *fakeStore) {
	t.Helper()
	original := openStore
	openStore = func(string) (maintenanceStore, error) { return fake, nil }
	t.Cleanup(func() { openStore = original })
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath == "" {
		t.Fatal("db path not defaulted")
	}
	if cfg.Timeout != 10*time.Minute {
		t.Fatalf("timeout = %s, want 10m", cfg.Timeout)
	}
	if cfg.Sweep || cfg.Stats || cfg.Verify {
		t.Fatalf("actions defaulted on: %+v", cfg)
	}
}

func TestRunRequiresAnAction(t *testing.T) {
	err := Run(context.Background(), Config{}, nil, nil)
	if err == nil {
		t.Fatal("run without action succeeded, want error")
	}
}

func TestRunSweepReportsCount(t *testing.T) {
	fake := &fakeStore{swept: 3}
	withFakeStore(t, fake)

	var out bytes.Buffer
	if err := Run(context.Background(), Config{Sweep: true}, &out, nil); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if !strings.Contains(out.String(), "expired 3 overdue invitations") {
		t.Fatalf("output = %q, want sweep count", out.String())
	}
	if !fake.closed {
		t.Fatal("store not closed")
	}
}

func TestRunStatsOutput(t *testing.T) {
	fake := &fakeStore{stats: storage.Stats{Clans: 2, ActiveMembers: 5, PendingInvitations: 1}}
	withFakeStore(t, fake)

	var out bytes.Buffer
	if err := Run(context.Background(), Config{Stats: true}, &out, nil); err != nil {
		t.Fatalf("run stats: %v", err)
	}
	got := out.String()
	for _, want := range []string{"clans: 2", "active members: 5", "pending invitations: 1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output = %q, want %q", got, want)
		}
	}
}

func TestRunVerifyDriftFails(t *testing.T) {
	fake := &fakeStore{issues: []storage.AggregateIssue{
		{ClanName: "ember", Field: "current_members", Stored: 7, Derived: 1},
	}}
	withFakeStore(t, fake)

	var out bytes.Buffer
	err := Run(context.Background(), Config{Verify: true}, &out, nil)
	if err == nil {
		t.Fatal("run with drift succeeded, want error")
	}
	if !strings.Contains(out.String(), "clan ember: current_members stored 7, derived 1") {
		t.Fatalf("output = %q, want drift line", out.String())
	}
}

func TestRunJSONReport(t *testing.T) {
	fake := &fakeStore{swept: 2, stats: storage.Stats{Clans: 1}}
	withFakeStore(t, fake)

	var out bytes.Buffer
	if err := Run(context.Background(), Config{Sweep: true, Stats: true, JSONOutput: true}, &out, nil); err != nil {
		t.Fatalf("run json: %v", err)
	}
	var decoded struct {
		Swept *int64         `json:"swept"`
		Stats *storage.Stats `json:"stats"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Swept == nil || *decoded.Swept != 2 {
		t.Fatalf("swept = %v, want 2", decoded.Swept)
	}
	if decoded.Stats == nil || decoded.Stats.Clans != 1 {
		t.Fatalf("stats = %+v, want 1 clan", decoded.Stats)
	}
}

func TestRunAgainstRealStore(t *testing.T) {
	var out bytes.Buffer
	cfg := Config{DBPath: t.TempDir() + "/clans.db", Sweep: true, Verify: true}
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run against real store: %v", err)
	}
	if !strings.Contains(out.String(), "aggregates consistent") {
		t.Fatalf("output = %q, want consistency line", out.String())
	}
}
