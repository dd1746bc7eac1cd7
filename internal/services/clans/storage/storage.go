// Package storage defines persistence contracts for clan service state.
//
// Every multi-step operation declared here (clan creation, member admission,
// invitation acceptance, XP awards) is atomic: implementations perform all
// reads and writes inside one transaction and roll the whole operation back on
// any failure, so aggregate counters never drift from detail rows.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/clan"
	"github.com/guildworks/clanhall/internal/services/clans/domain/invite"
	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateName indicates a clan with the same name already exists.
var ErrDuplicateName = errors.New("clan name already exists")

// ErrAlreadyMember indicates the user already holds an active membership.
var ErrAlreadyMember = errors.New("user is already a clan member")

// ErrCapacityExceeded indicates a level-derived capacity would be exceeded.
var ErrCapacityExceeded = errors.New("clan capacity exceeded")

// ErrInvalidState indicates an operation against a record in the wrong state,
// such as accepting a non-pending invitation.
var ErrInvalidState = errors.New("invalid record state")

// OriginSystem tags ledger entries produced by the system itself rather than
// an acting user.
const OriginSystem = "system"

// ExtraChannelKind distinguishes extra text and voice channels.
type ExtraChannelKind string

const (
	// ChannelText is an extra text channel.
	ChannelText ExtraChannelKind = "text"
	// ChannelVoice is an extra voice channel.
	ChannelVoice ExtraChannelKind = "voice"
)

// Valid reports whether k names a known channel kind.
func (k ExtraChannelKind) Valid() bool {
	return k == ChannelText || k == ChannelVoice
}

// ExtraChannel is one platform channel counted against level-derived capacity.
type ExtraChannel struct {
	ID         int64
	ClanName   string
	ChannelRef string
	Name       string
	Kind       ExtraChannelKind
	CreatedAt  time.Time
}

// LedgerEntry is one immutable XP-affecting event. Entries are append-only and
// never updated or deleted.
type LedgerEntry struct {
	ID        int64
	ClanName  string
	Amount    int64
	Reason    string
	Origin    string
	ActorID   string
	CreatedAt time.Time
}

// XPChange reports the before/after state of one XP award.
type XPChange struct {
	PrevXP     int64
	NewXP      int64
	PrevLevel  int
	NewLevel   int
	LeveledUp  bool
	Capacities leveling.Capacities
}

// ClanView is a clan plus the derived state callers usually need with it.
type ClanView struct {
	Clan          clan.Clan
	Capacities    leveling.Capacities
	NextLevelXP   int64
	HasNextLevel  bool
	ExtraChannels []ExtraChannel
}

// ClanSummary is the listing projection of a clan.
type ClanSummary struct {
	Name           string
	CreatorID      string
	Level          int
	XP             int64
	CurrentMembers int
	CreatedAt      time.Time
}

// AddMemberResult reports an admitted member and the XP the clan earned.
type AddMemberResult struct {
	Member member.Member
	// Rejoined is set when a previously deactivated membership was revived
	// instead of a new row inserted.
	Rejoined bool
	XP       XPChange
}

// AcceptInvitationResult reports a successful invitation acceptance.
type AcceptInvitationResult struct {
	Invitation invite.Invitation
	Member     member.Member
	XP         XPChange
}

// Stats holds store-wide totals.
type Stats struct {
	Clans              int64
	ActiveMembers      int64
	ExtraChannels      int64
	PendingInvitations int64
}

// AggregateIssue reports one clan whose cached aggregate disagrees with the
// state derived from detail rows.
type AggregateIssue struct {
	ClanName string
	Field    string
	Stored   int64
	Derived  int64
}

// ClanStore persists clan entities and their derived views.
type ClanStore interface {
	// CreateClan inserts the clan and its Leader membership atomically.
	// A name collision surfaces as ErrDuplicateName from the primary-key
	// constraint; there is deliberately no existence pre-check.
	CreateClan(ctx context.Context, c clan.Clan, leader member.Member) error
	GetClan(ctx context.Context, name string) (ClanView, error)
	FindClanByAdminChannel(ctx context.Context, channelRef string) (string, error)
	ListClans(ctx context.Context) ([]ClanSummary, error)
	ClanExists(ctx context.Context, name string) (bool, error)
	// DeleteClan removes the clan; membership, invitation, ledger, and extra
	// channel rows follow via foreign-key cascade.
	DeleteClan(ctx context.Context, name string) error
}

// MemberStore manages clan rosters and their capacity discipline.
type MemberStore interface {
	// AddMember admits a user inside one transaction: capacity check, roster
	// insert, counter bumps, and the fixed join XP award all commit together.
	AddMember(ctx context.Context, clanName, userID string, role member.Role) (AddMemberResult, error)
	// RemoveMember deactivates a membership; the row is kept for history.
	RemoveMember(ctx context.Context, clanName, userID string) error
	ListMembers(ctx context.Context, clanName string) ([]member.Member, error)
	RoleOf(ctx context.Context, clanName, userID string) (member.Role, error)
	IsMember(ctx context.Context, clanName, userID string) (bool, error)
}

// LedgerStore applies XP awards and exposes the audit ledger.
type LedgerStore interface {
	// AwardXP applies the delta through the leveling schedule, persists the
	// new XP and level, and appends the ledger entry atomically. An empty
	// origin defaults to OriginSystem.
	AwardXP(ctx context.Context, clanName string, amount int64, reason, actorID, origin string) (XPChange, error)
	ListLedger(ctx context.Context, clanName string, limit int) ([]LedgerEntry, error)
}

// InvitationStore manages the invitation lifecycle.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv invite.Invitation) error
	GetInvitation(ctx context.Context, id string) (invite.Invitation, error)
	// AcceptInvitation admits the invitee and marks the invitation accepted in
	// one transaction; if admission fails the invitation stays pending. An
	// invitation past its deadline transitions to expired and the call fails
	// with ErrInvalidState.
	AcceptInvitation(ctx context.Context, id string) (AcceptInvitationResult, error)
	RejectInvitation(ctx context.Context, id string) error
	// SweepExpiredInvitations marks every overdue pending invitation expired
	// and returns how many rows changed. Safe to run any number of times.
	SweepExpiredInvitations(ctx context.Context) (int64, error)
}

// ChannelStore tracks extra channels attached to a clan.
type ChannelStore interface {
	// AddExtraChannel stores unconditionally; the capacity gate belongs to the
	// caller.
	AddExtraChannel(ctx context.Context, ch ExtraChannel) (ExtraChannel, error)
	// AddExtraChannelChecked verifies the level-derived capacity for the
	// channel kind and inserts within the same transaction.
	AddExtraChannelChecked(ctx context.Context, ch ExtraChannel) (ExtraChannel, error)
	// CountExtraChannels counts a clan's extra channels; an empty kind counts
	// all of them.
	CountExtraChannels(ctx context.Context, clanName string, kind ExtraChannelKind) (int, error)
}

// StatsStore exposes store-wide totals and consistency checks.
type StatsStore interface {
	Stats(ctx context.Context) (Stats, error)
	// VerifyAggregates reports clans whose cached member count or level
	// disagrees with their detail rows.
	VerifyAggregates(ctx context.Context) ([]AggregateIssue, error)
}
