// Package app wires the clan service facade over the storage layer.
package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/guildworks/clanhall/internal/services/clans/domain/clan"
	"github.com/guildworks/clanhall/internal/services/clans/domain/invite"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

// Store is the persistence surface the service needs. The SQLite store
// satisfies it; tests may substitute slimmer fakes.
type Store interface {
	storage.ClanStore
	storage.MemberStore
	storage.LedgerStore
	storage.InvitationStore
	storage.ChannelStore
	storage.StatsStore
}

// Service exposes the clan operations to the platform layer. Every method
// takes a context and returns typed results and sentinel errors from the
// storage package.
type Service struct {
	store  Store
	tracer trace.Tracer
	now    func() time.Time
}

// NewService builds a clan service over the given store.
func NewService(store Store) *Service {
	return &Service{
		store:  store,
		tracer: otel.Tracer("clanhall/clans"),
		now:    time.Now,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateClanInput carries everything needed to found a clan. The creator
// becomes the Leader and counts as the first member.
type CreateClanInput struct {
	Name        string
	CreatorID   string
	Description string
	Platform    clan.PlatformRefs
	InviteToken string
	Color       string
}

// CreateClan founds a clan at level 1 with the creator admitted as Leader.
func (s *Service) CreateClan(ctx context.Context, input CreateClanInput) (clan.Clan, error) {
	ctx, span := s.tracer.Start(ctx, "clans.CreateClan")
	var err error
	defer func() { endSpan(span, err) }()

	c, err := clan.New(clan.CreateInput{
		Name:        input.Name,
		CreatorID:   input.CreatorID,
		Description: input.Description,
		Platform:    input.Platform,
		InviteToken: input.InviteToken,
		Color:       input.Color,
	}, s.now)
	if err != nil {
		return clan.Clan{}, err
	}
	leader, err := member.New(c.Name, c.CreatorID, member.RoleLeader, s.now)
	if err != nil {
		return clan.Clan{}, err
	}
	if err = s.store.CreateClan(ctx, c, leader); err != nil {
		return clan.Clan{}, err
	}
	return c, nil
}

// GetClan returns a clan view with capacities, next threshold, and extra
// channels.
func (s *Service) GetClan(ctx context.Context, name string) (storage.ClanView, error) {
	ctx, span := s.tracer.Start(ctx, "clans.GetClan")
	view, err := s.store.GetClan(ctx, name)
	endSpan(span, err)
	return view, err
}

// ListClans lists clans ranked by level then XP.
func (s *Service) ListClans(ctx context.Context) ([]storage.ClanSummary, error) {
	ctx, span := s.tracer.Start(ctx, "clans.ListClans")
	summaries, err := s.store.ListClans(ctx)
	endSpan(span, err)
	return summaries, err
}

// ClanExists reports whether a clan with the given name exists.
func (s *Service) ClanExists(ctx context.Context, name string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "clans.ClanExists")
	ok, err := s.store.ClanExists(ctx, name)
	endSpan(span, err)
	return ok, err
}

// FindClanByAdminChannel resolves which clan owns an administrative channel.
func (s *Service) FindClanByAdminChannel(ctx context.Context, channelRef string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "clans.FindClanByAdminChannel")
	name, err := s.store.FindClanByAdminChannel(ctx, channelRef)
	endSpan(span, err)
	return name, err
}

// DeleteClan removes a clan and everything attached to it.
func (s *Service) DeleteClan(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "clans.DeleteClan")
	err := s.store.DeleteClan(ctx, name)
	endSpan(span, err)
	return err
}

// AddMember admits a user to a clan at the given role.
func (s *Service) AddMember(ctx context.Context, clanName, userID string, role member.Role) (storage.AddMemberResult, error) {
	ctx, span := s.tracer.Start(ctx, "clans.AddMember")
	result, err := s.store.AddMember(ctx, clanName, userID, role)
	endSpan(span, err)
	return result, err
}

// RemoveMember deactivates a membership. The Leader cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, clanName, userID string) error {
	ctx, span := s.tracer.Start(ctx, "clans.RemoveMember")
	err := s.store.RemoveMember(ctx, clanName, userID)
	endSpan(span, err)
	return err
}

// ListMembers lists a clan's active members ordered by role rank.
func (s *Service) ListMembers(ctx context.Context, clanName string) ([]member.Member, error) {
	ctx, span := s.tracer.Start(ctx, "clans.ListMembers")
	members, err := s.store.ListMembers(ctx, clanName)
	endSpan(span, err)
	return members, err
}

// RoleOf returns the active member's role.
func (s *Service) RoleOf(ctx context.Context, clanName, userID string) (member.Role, error) {
	ctx, span := s.tracer.Start(ctx, "clans.RoleOf")
	role, err := s.store.RoleOf(ctx, clanName, userID)
	endSpan(span, err)
	return role, err
}

// IsMember reports whether the user holds an active membership in the clan.
func (s *Service) IsMember(ctx context.Context, clanName, userID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "clans.IsMember")
	ok, err := s.store.IsMember(ctx, clanName, userID)
	endSpan(span, err)
	return ok, err
}

// AwardXP applies an XP delta and returns the resulting progression change.
func (s *Service) AwardXP(ctx context.Context, clanName string, amount int64, reason, actorID, origin string) (storage.XPChange, error) {
	ctx, span := s.tracer.Start(ctx, "clans.AwardXP")
	change, err := s.store.AwardXP(ctx, clanName, amount, reason, actorID, origin)
	endSpan(span, err)
	return change, err
}

// ListLedger returns a clan's most recent XP ledger entries.
func (s *Service) ListLedger(ctx context.Context, clanName string, limit int) ([]storage.LedgerEntry, error) {
	ctx, span := s.tracer.Start(ctx, "clans.ListLedger")
	entries, err := s.store.ListLedger(ctx, clanName, limit)
	endSpan(span, err)
	return entries, err
}

// CreateInvitationInput describes a new invitation. A zero TTL falls back to
// the default invitation lifetime.
type CreateInvitationInput struct {
	ClanName  string
	InviteeID string
	InviterID string
	Role      member.Role
	TTL       time.Duration
}

// CreateInvitation issues a pending invitation and returns it with its
// generated ID and expiry deadline.
func (s *Service) CreateInvitation(ctx context.Context, input CreateInvitationInput) (invite.Invitation, error) {
	ctx, span := s.tracer.Start(ctx, "clans.CreateInvitation")
	var err error
	defer func() { endSpan(span, err) }()

	inv, err := invite.New(invite.CreateInput{
		ClanName:  input.ClanName,
		InviteeID: input.InviteeID,
		InviterID: input.InviterID,
		Role:      input.Role,
		TTL:       input.TTL,
	}, s.now, nil)
	if err != nil {
		return invite.Invitation{}, err
	}
	if err = s.store.CreateInvitation(ctx, inv); err != nil {
		return invite.Invitation{}, err
	}
	return inv, nil
}

// GetInvitation loads one invitation, lazily expiring it when overdue.
func (s *Service) GetInvitation(ctx context.Context, id string) (invite.Invitation, error) {
	ctx, span := s.tracer.Start(ctx, "clans.GetInvitation")
	inv, err := s.store.GetInvitation(ctx, id)
	endSpan(span, err)
	return inv, err
}

// AcceptInvitation admits the invitee and marks the invitation accepted.
func (s *Service) AcceptInvitation(ctx context.Context, id string) (storage.AcceptInvitationResult, error) {
	ctx, span := s.tracer.Start(ctx, "clans.AcceptInvitation")
	result, err := s.store.AcceptInvitation(ctx, id)
	endSpan(span, err)
	return result, err
}

// RejectInvitation declines a pending invitation.
func (s *Service) RejectInvitation(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "clans.RejectInvitation")
	err := s.store.RejectInvitation(ctx, id)
	endSpan(span, err)
	return err
}

// SweepExpiredInvitations expires every overdue pending invitation.
func (s *Service) SweepExpiredInvitations(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "clans.SweepExpiredInvitations")
	swept, err := s.store.SweepExpiredInvitations(ctx)
	endSpan(span, err)
	return swept, err
}

// AddExtraChannel registers an extra channel against the clan's level-derived
// capacity for the channel kind.
func (s *Service) AddExtraChannel(ctx context.Context, ch storage.ExtraChannel) (storage.ExtraChannel, error) {
	ctx, span := s.tracer.Start(ctx, "clans.AddExtraChannel")
	added, err := s.store.AddExtraChannelChecked(ctx, ch)
	endSpan(span, err)
	return added, err
}

// CountExtraChannels counts a clan's extra channels, optionally by kind.
func (s *Service) CountExtraChannels(ctx context.Context, clanName string, kind storage.ExtraChannelKind) (int, error) {
	ctx, span := s.tracer.Start(ctx, "clans.CountExtraChannels")
	count, err := s.store.CountExtraChannels(ctx, clanName, kind)
	endSpan(span, err)
	return count, err
}

// Stats returns store-wide totals.
func (s *Service) Stats(ctx context.Context) (storage.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "clans.Stats")
	stats, err := s.store.Stats(ctx)
	endSpan(span, err)
	return stats, err
}

// VerifyAggregates reports clans whose cached aggregates drifted from their
// detail rows.
func (s *Service) VerifyAggregates(ctx context.Context) ([]storage.AggregateIssue, error) {
	ctx, span := s.tracer.Start(ctx, "clans.VerifyAggregates")
	issues, err := s.store.VerifyAggregates(ctx)
	endSpan(span, err)
	return issues, err
}
