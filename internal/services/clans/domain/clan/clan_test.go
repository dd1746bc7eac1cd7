package clan

import (
	"errors"
	"testing"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
)

func fixedNow() time.Time {
	return time.Date(2026, time.August, 30, 9, 0, 0, 0, time.UTC)
}

func TestNewClanStartsAtLevelOne(t *testing.T) {
	c, err := New(CreateInput{
		Name:        "  wolves ",
		CreatorID:   "user-1",
		Description: " the night watch ",
		InviteToken: "tok-1",
	}, fixedNow)
	if err != nil {
		t.Fatalf("new clan: %v", err)
	}
	if c.Name != "wolves" {
		t.Fatalf("name = %q, want wolves", c.Name)
	}
	if c.Description != "the night watch" {
		t.Fatalf("description = %q", c.Description)
	}
	if c.Level != leveling.MinLevel || c.XP != 0 {
		t.Fatalf("expected level 1 with 0 xp, got level %d xp %d", c.Level, c.XP)
	}
	if c.CurrentMembers != 1 || c.TotalMembers != 1 {
		t.Fatalf("expected creator counted as first member, got %d/%d", c.CurrentMembers, c.TotalMembers)
	}
	if !c.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("created at = %v", c.CreatedAt)
	}
}

func TestNewClanValidation(t *testing.T) {
	cases := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{"missing name", CreateInput{CreatorID: "u1", InviteToken: "tok"}, ErrEmptyName},
		{"missing creator", CreateInput{Name: "wolves", InviteToken: "tok"}, ErrEmptyCreatorID},
		{"missing token", CreateInput{Name: "wolves", CreatorID: "u1"}, ErrEmptyInviteToken},
	}
	for _, tc := range cases {
		if _, err := New(tc.input, fixedNow); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestClanCapacitiesFollowLevel(t *testing.T) {
	c := Clan{Level: 2}
	if got := c.Capacities().Members; got != 20 {
		t.Fatalf("level 2 member capacity = %d, want 20", got)
	}
}
