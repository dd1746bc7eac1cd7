// Package invite provides the clan invitation entity and its status machine.
//
// An invitation starts pending and moves to exactly one of accepted, rejected,
// or expired. No transition is reversible; expiry is detected lazily when the
// invitation is read or accepted, or in bulk by a periodic sweep.
package invite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guildworks/clanhall/internal/platform/id"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
)

// Status represents the lifecycle state of an invitation.
type Status string

const (
	// StatusPending indicates the invitation awaits a response.
	StatusPending Status = "pending"
	// StatusAccepted indicates the invitee joined the clan.
	StatusAccepted Status = "accepted"
	// StatusRejected indicates the invitee declined.
	StatusRejected Status = "rejected"
	// StatusExpired indicates the TTL elapsed before a response.
	StatusExpired Status = "expired"
)

// DefaultTTL is the invitation lifetime applied when the caller passes no TTL.
const DefaultTTL = 48 * time.Hour

var (
	// ErrEmptyClanName indicates a missing clan name.
	ErrEmptyClanName = errors.New("clan name is required")
	// ErrEmptyInviteeID indicates a missing invitee.
	ErrEmptyInviteeID = errors.New("invitee id is required")
	// ErrEmptyInviterID indicates a missing inviter.
	ErrEmptyInviterID = errors.New("inviter id is required")
	// ErrRoleNotInvitable indicates an invitation role outside recruit/member.
	ErrRoleNotInvitable = errors.New("invitation role must be recruit or member")
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired
}

// Invitation is a time-bounded offer for a user to join a clan at a role.
type Invitation struct {
	ID        string
	ClanName  string
	InviteeID string
	InviterID string
	Role      member.Role
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the invitation's deadline has passed at now.
func (inv Invitation) ExpiredAt(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}

// CreateInput describes the metadata needed to create an invitation.
type CreateInput struct {
	ClanName  string
	InviteeID string
	InviterID string
	Role      member.Role
	TTL       time.Duration
}

// New creates a pending invitation with a generated ID and TTL deadline.
// A zero or negative TTL falls back to DefaultTTL.
func New(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	clanName := strings.TrimSpace(input.ClanName)
	inviteeID := strings.TrimSpace(input.InviteeID)
	inviterID := strings.TrimSpace(input.InviterID)
	if clanName == "" {
		return Invitation{}, ErrEmptyClanName
	}
	if inviteeID == "" {
		return Invitation{}, ErrEmptyInviteeID
	}
	if inviterID == "" {
		return Invitation{}, ErrEmptyInviterID
	}
	if !input.Role.Invitable() {
		return Invitation{}, ErrRoleNotInvitable
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	inviteID, err := idGenerator()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invitation id: %w", err)
	}

	createdAt := now().UTC()
	return Invitation{
		ID:        inviteID,
		ClanName:  clanName,
		InviteeID: inviteeID,
		InviterID: inviterID,
		Role:      input.Role,
		Status:    StatusPending,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
	}, nil
}
