package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/clan"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/clans.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

// fixedClock pins the store's clock so expiry and timestamp assertions are
// deterministic.
func fixedClock(store *Store, at time.Time) {
	store.now = func() time.Time { return at }
}

func mustCreateClan(t *testing.T, store *Store, name, creatorID string) clan.Clan {
	t.Helper()
	c, err := clan.New(clan.CreateInput{
		Name:        name,
		CreatorID:   creatorID,
		InviteToken: fmt.Sprintf("token-%s", name),
	}, store.now)
	if err != nil {
		t.Fatalf("build clan %s: %v", name, err)
	}
	leader, err := member.New(name, creatorID, member.RoleLeader, store.now)
	if err != nil {
		t.Fatalf("build leader for %s: %v", name, err)
	}
	if err := store.CreateClan(context.Background(), c, leader); err != nil {
		t.Fatalf("create clan %s: %v", name, err)
	}
	return c
}
