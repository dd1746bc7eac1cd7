// Package clan defines the clan entity and its creation rules.
package clan

import (
	"errors"
	"strings"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
)

var (
	// ErrEmptyName indicates a missing clan name.
	ErrEmptyName = errors.New("clan name is required")
	// ErrEmptyCreatorID indicates a missing creator.
	ErrEmptyCreatorID = errors.New("creator id is required")
	// ErrEmptyInviteToken indicates a missing permanent invite token.
	ErrEmptyInviteToken = errors.New("invite token is required")
)

// PlatformRefs holds the opaque chat-platform resource identifiers owned by
// the external platform layer. The core never interprets them.
type PlatformRefs struct {
	Role            string
	Category        string
	AnnounceChannel string
	AdminChannel    string
	GeneralChannel  string
}

// Clan is a named group with level-gated capacity.
//
// CurrentMembers mirrors the count of active membership rows and
// TotalMembers the count of members ever admitted; both are maintained
// transactionally alongside the roster table.
type Clan struct {
	Name           string
	CreatorID      string
	Description    string
	Level          int
	XP             int64
	CurrentMembers int
	TotalMembers   int
	Platform       PlatformRefs
	InviteToken    string
	Color          string
	CreatedAt      time.Time
}

// Capacities returns the resource limits unlocked at the clan's level.
func (c Clan) Capacities() leveling.Capacities {
	return leveling.CapacitiesFor(c.Level)
}

// CreateInput describes a new clan. The creator becomes the Leader.
type CreateInput struct {
	Name        string
	CreatorID   string
	Description string
	Platform    PlatformRefs
	InviteToken string
	Color       string
}

// New builds a level-1 clan with zero XP and the creator counted as its first
// member.
func New(input CreateInput, now func() time.Time) (Clan, error) {
	if now == nil {
		now = time.Now
	}

	name := strings.TrimSpace(input.Name)
	creatorID := strings.TrimSpace(input.CreatorID)
	inviteToken := strings.TrimSpace(input.InviteToken)
	if name == "" {
		return Clan{}, ErrEmptyName
	}
	if creatorID == "" {
		return Clan{}, ErrEmptyCreatorID
	}
	if inviteToken == "" {
		return Clan{}, ErrEmptyInviteToken
	}

	return Clan{
		Name:           name,
		CreatorID:      creatorID,
		Description:    strings.TrimSpace(input.Description),
		Level:          leveling.MinLevel,
		XP:             0,
		CurrentMembers: 1,
		TotalMembers:   1,
		Platform:       input.Platform,
		InviteToken:    inviteToken,
		Color:          strings.TrimSpace(input.Color),
		CreatedAt:      now().UTC(),
	}, nil
}
