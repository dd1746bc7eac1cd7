package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/clan"
	"github.com/guildworks/clanhall/internal/services/clans/domain/invite"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
	"github.com/guildworks/clanhall/internal/services/clans/storage/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := sqlite.Open(t.TempDir() + "/clans.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return NewService(store)
}

func TestServiceCreateClanAndGet(t *testing.T) {
	service := newTestService(t)

	created, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		Description: "founding clan",
		Platform:    clan.PlatformRefs{AdminChannel: "chan-admin"},
		InviteToken: "token-ember",
	})
	if err != nil {
		t.Fatalf("create clan: %v", err)
	}
	if created.Level != 1 || created.CurrentMembers != 1 {
		t.Fatalf("created clan = level %d, members %d, want 1/1", created.Level, created.CurrentMembers)
	}

	view, err := service.GetClan(context.Background(), "ember")
	if err != nil {
		t.Fatalf("get clan: %v", err)
	}
	if view.Capacities.Members != 10 {
		t.Fatalf("level-1 member capacity = %d, want 10", view.Capacities.Members)
	}
	role, err := service.RoleOf(context.Background(), "ember", "user-1")
	if err != nil {
		t.Fatalf("role of creator: %v", err)
	}
	if role != member.RoleLeader {
		t.Fatalf("creator role = %q, want leader", role)
	}

	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-2",
		InviteToken: "token-dup",
	}); !errors.Is(err, storage.ErrDuplicateName) {
		t.Fatalf("duplicate create err = %v, want %v", err, storage.ErrDuplicateName)
	}
}

func TestServiceCreateClanValidation(t *testing.T) {
	service := newTestService(t)

	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		CreatorID:   "user-1",
		InviteToken: "token",
	}); !errors.Is(err, clan.ErrEmptyName) {
		t.Fatalf("nameless create err = %v, want %v", err, clan.ErrEmptyName)
	}
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
	}); !errors.Is(err, clan.ErrEmptyInviteToken) {
		t.Fatalf("tokenless create err = %v, want %v", err, clan.ErrEmptyInviteToken)
	}
}

func TestServiceInvitationFlow(t *testing.T) {
	service := newTestService(t)
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		InviteToken: "token-ember",
	}); err != nil {
		t.Fatalf("create clan: %v", err)
	}

	inv, err := service.CreateInvitation(context.Background(), CreateInvitationInput{
		ClanName:  "ember",
		InviteeID: "user-2",
		InviterID: "user-1",
		Role:      member.RoleRecruit,
	})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if inv.ID == "" || inv.Status != invite.StatusPending {
		t.Fatalf("invitation = %+v, want pending with id", inv)
	}

	result, err := service.AcceptInvitation(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("accept invitation: %v", err)
	}
	if result.Member.UserID != "user-2" || result.XP.NewXP != 50 {
		t.Fatalf("accept result = %+v, want user-2 at 50 xp", result)
	}
	if ok, err := service.IsMember(context.Background(), "ember", "user-2"); err != nil || !ok {
		t.Fatalf("is member = %v/%v, want true/nil", ok, err)
	}
}

func TestServiceRejectThenAccept(t *testing.T) {
	service := newTestService(t)
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		InviteToken: "token-ember",
	}); err != nil {
		t.Fatalf("create clan: %v", err)
	}
	inv, err := service.CreateInvitation(context.Background(), CreateInvitationInput{
		ClanName:  "ember",
		InviteeID: "user-2",
		InviterID: "user-1",
		Role:      member.RoleMember,
	})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	if err := service.RejectInvitation(context.Background(), inv.ID); err != nil {
		t.Fatalf("reject invitation: %v", err)
	}
	if _, err := service.AcceptInvitation(context.Background(), inv.ID); !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("accept rejected err = %v, want %v", err, storage.ErrInvalidState)
	}
	if ok, err := service.IsMember(context.Background(), "ember", "user-2"); err != nil || ok {
		t.Fatalf("is member after rejected accept = %v/%v, want false/nil", ok, err)
	}
}

func TestServiceAwardXPScenario(t *testing.T) {
	service := newTestService(t)
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		InviteToken: "token-ember",
	}); err != nil {
		t.Fatalf("create clan: %v", err)
	}

	change, err := service.AwardXP(context.Background(), "ember", 500, "milestone", "", "")
	if err != nil {
		t.Fatalf("award xp: %v", err)
	}
	if change.PrevLevel != 1 || change.NewLevel != 2 || !change.LeveledUp {
		t.Fatalf("change = %+v, want 1->2 leveled up", change)
	}
	if change.Capacities.Members != 20 {
		t.Fatalf("level-2 member capacity = %d, want 20", change.Capacities.Members)
	}
}

func TestServiceExtraChannelCapacity(t *testing.T) {
	service := newTestService(t)
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		InviteToken: "token-ember",
	}); err != nil {
		t.Fatalf("create clan: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := service.AddExtraChannel(context.Background(), storage.ExtraChannel{
			ClanName:   "ember",
			ChannelRef: "chan-voice-" + string(rune('a'+i)),
			Name:       "voice",
			Kind:       storage.ChannelVoice,
		}); err != nil {
			t.Fatalf("add voice channel %d: %v", i, err)
		}
	}
	if _, err := service.AddExtraChannel(context.Background(), storage.ExtraChannel{
		ClanName:   "ember",
		ChannelRef: "chan-voice-c",
		Name:       "voice",
		Kind:       storage.ChannelVoice,
	}); !errors.Is(err, storage.ErrCapacityExceeded) {
		t.Fatalf("third voice channel err = %v, want %v", err, storage.ErrCapacityExceeded)
	}

	count, err := service.CountExtraChannels(context.Background(), "ember", storage.ChannelVoice)
	if err != nil {
		t.Fatalf("count voice channels: %v", err)
	}
	if count != 2 {
		t.Fatalf("voice count = %d, want 2", count)
	}
}

func TestRunSweeperExpiresOverdueInvitations(t *testing.T) {
	service := newTestService(t)
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		InviteToken: "token-ember",
	}); err != nil {
		t.Fatalf("create clan: %v", err)
	}
	inv, err := service.CreateInvitation(context.Background(), CreateInvitationInput{
		ClanName:  "ember",
		InviteeID: "user-2",
		InviterID: "user-1",
		Role:      member.RoleRecruit,
		TTL:       time.Nanosecond,
	})
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.RunSweeper(ctx, time.Hour)
	}()

	// The startup sweep runs before the first tick. Stats reads raw status, so
	// it only drops to zero once the sweep itself transitioned the row.
	deadline := time.After(2 * time.Second)
	for {
		stats, err := service.Stats(context.Background())
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.PendingInvitations == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("invitation never swept, pending = %d", stats.PendingInvitations)
		case <-time.After(10 * time.Millisecond):
		}
	}

	got, err := service.GetInvitation(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if got.Status != invite.StatusExpired {
		t.Fatalf("status after sweep = %q, want expired", got.Status)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("sweeper exit err = %v, want %v", err, context.Canceled)
	}
}

func TestServiceStatsAndVerify(t *testing.T) {
	service := newTestService(t)
	if _, err := service.CreateClan(context.Background(), CreateClanInput{
		Name:        "ember",
		CreatorID:   "user-1",
		InviteToken: "token-ember",
	}); err != nil {
		t.Fatalf("create clan: %v", err)
	}

	stats, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Clans != 1 || stats.ActiveMembers != 1 {
		t.Fatalf("stats = %+v, want 1 clan / 1 member", stats)
	}
	issues, err := service.VerifyAggregates(context.Background())
	if err != nil {
		t.Fatalf("verify aggregates: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issues = %+v, want none", issues)
	}
}
