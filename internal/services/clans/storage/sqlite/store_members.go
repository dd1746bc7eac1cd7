package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guildworks/clanhall/internal/services/clans/domain/clan"
	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

// memberJoinXP is the fixed award a clan earns for each admitted member.
const memberJoinXP = 50

const memberJoinReason = "new member joined"

// applyXPTx runs the leveling engine for one delta and persists the outcome:
// the clan's new XP and level plus the matching ledger entry, all on the open
// transaction.
func applyXPTx(ctx context.Context, tx *sql.Tx, c clan.Clan, amount int64, reason, actorID, origin string, now time.Time) (storage.XPChange, error) {
	if origin == "" {
		origin = storage.OriginSystem
	}
	result := leveling.Apply(c.Level, c.XP, amount)

	if _, err := tx.ExecContext(ctx,
		"UPDATE clans SET xp = ?, level = ? WHERE name = ?",
		result.NewXP, result.NewLevel, c.Name,
	); err != nil {
		return storage.XPChange{}, fmt.Errorf("update clan xp: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO xp_ledger (clan_name, amount, reason, origin, actor_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, c.Name, amount, reason, origin, actorID, toMillis(now)); err != nil {
		return storage.XPChange{}, fmt.Errorf("append xp ledger: %w", err)
	}

	return storage.XPChange{
		PrevXP:     c.XP,
		NewXP:      result.NewXP,
		PrevLevel:  c.Level,
		NewLevel:   result.NewLevel,
		LeveledUp:  result.LeveledUp,
		Capacities: result.Capacities,
	}, nil
}

// addMemberTx admits one user on the open transaction: capacity check against
// the level schedule, roster insert or revival, counter bumps, and the fixed
// join XP award. Callers commit or roll back as a unit.
func addMemberTx(ctx context.Context, tx *sql.Tx, clanName, userID string, role member.Role, now time.Time) (member.Member, bool, storage.XPChange, error) {
	c, err := getClanTx(ctx, tx, clanName)
	if err != nil {
		return member.Member{}, false, storage.XPChange{}, err
	}

	if !leveling.CapacitiesFor(c.Level).AllowsMembers(c.CurrentMembers) {
		return member.Member{}, false, storage.XPChange{}, storage.ErrCapacityExceeded
	}

	var existingActive bool
	rejoined := false
	err = tx.QueryRowContext(ctx,
		"SELECT active FROM members WHERE clan_name = ? AND user_id = ?",
		clanName, userID,
	).Scan(&existingActive)
	switch {
	case err == nil && existingActive:
		return member.Member{}, false, storage.XPChange{}, storage.ErrAlreadyMember
	case err == nil:
		// Revive the deactivated row so history carries a single membership
		// record per (clan, user).
		rejoined = true
		if _, err := tx.ExecContext(ctx,
			"UPDATE members SET role = ?, joined_at = ?, active = 1 WHERE clan_name = ? AND user_id = ?",
			string(role), toMillis(now), clanName, userID,
		); err != nil {
			return member.Member{}, false, storage.XPChange{}, fmt.Errorf("revive membership: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
INSERT INTO members (clan_name, user_id, role, joined_at, active)
VALUES (?, ?, ?, ?, 1)
`, clanName, userID, string(role), toMillis(now)); err != nil {
			if isUniqueConstraintError(err) {
				return member.Member{}, false, storage.XPChange{}, storage.ErrAlreadyMember
			}
			return member.Member{}, false, storage.XPChange{}, fmt.Errorf("insert membership: %w", err)
		}
	default:
		return member.Member{}, false, storage.XPChange{}, fmt.Errorf("check membership: %w", err)
	}

	historicDelta := 1
	if rejoined {
		historicDelta = 0
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE clans SET current_members = current_members + 1, total_members = total_members + ? WHERE name = ?",
		historicDelta, clanName,
	); err != nil {
		return member.Member{}, false, storage.XPChange{}, fmt.Errorf("update member counters: %w", err)
	}

	xp, err := applyXPTx(ctx, tx, c, memberJoinXP, memberJoinReason, userID, storage.OriginSystem, now)
	if err != nil {
		return member.Member{}, false, storage.XPChange{}, err
	}

	admitted := member.Member{
		ClanName: clanName,
		UserID:   userID,
		Role:     role,
		JoinedAt: now.UTC(),
		Active:   true,
	}
	return admitted, rejoined, xp, nil
}

// AddMember admits a user to a clan. The capacity check, roster write, counter
// bumps, and join XP award commit atomically; a full clan rejects the whole
// operation with storage.ErrCapacityExceeded before any write. The leader role
// is assigned once at clan creation and cannot be granted here, not even on a
// rejoin.
func (s *Store) AddMember(ctx context.Context, clanName, userID string, role member.Role) (storage.AddMemberResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.AddMemberResult{}, err
	}
	if err := s.ready(); err != nil {
		return storage.AddMemberResult{}, err
	}
	clanName = strings.TrimSpace(clanName)
	userID = strings.TrimSpace(userID)
	if clanName == "" {
		return storage.AddMemberResult{}, fmt.Errorf("clan name is required")
	}
	if userID == "" {
		return storage.AddMemberResult{}, fmt.Errorf("user id is required")
	}
	if !role.Valid() {
		return storage.AddMemberResult{}, member.ErrInvalidRole
	}
	if role == member.RoleLeader {
		return storage.AddMemberResult{}, fmt.Errorf("leader is assigned at clan creation: %w", member.ErrInvalidRole)
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return storage.AddMemberResult{}, fmt.Errorf("begin member add: %w", err)
	}

	admitted, rejoined, xp, err := addMemberTx(ctx, tx, clanName, userID, role, s.now())
	if err != nil {
		return storage.AddMemberResult{}, rollbackWith(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.AddMemberResult{}, fmt.Errorf("commit member add: %w", err)
	}
	return storage.AddMemberResult{Member: admitted, Rejoined: rejoined, XP: xp}, nil
}

// RemoveMember deactivates a membership and decrements the clan's current
// member counter in one transaction. The Leader cannot be removed.
func (s *Store) RemoveMember(ctx context.Context, clanName, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	clanName = strings.TrimSpace(clanName)
	userID = strings.TrimSpace(userID)
	if clanName == "" {
		return fmt.Errorf("clan name is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin member remove: %w", err)
	}

	var roleValue string
	var active bool
	err = tx.QueryRowContext(ctx,
		"SELECT role, active FROM members WHERE clan_name = ? AND user_id = ?",
		clanName, userID,
	).Scan(&roleValue, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rollbackWith(tx, storage.ErrNotFound)
		}
		return rollbackWith(tx, fmt.Errorf("load membership: %w", err))
	}
	if !active {
		return rollbackWith(tx, storage.ErrNotFound)
	}
	if member.Role(roleValue) == member.RoleLeader {
		return rollbackWith(tx, fmt.Errorf("leader cannot be removed: %w", storage.ErrInvalidState))
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE members SET active = 0 WHERE clan_name = ? AND user_id = ?",
		clanName, userID,
	); err != nil {
		return rollbackWith(tx, fmt.Errorf("deactivate membership: %w", err))
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE clans SET current_members = current_members - 1 WHERE name = ?",
		clanName,
	); err != nil {
		return rollbackWith(tx, fmt.Errorf("update member counters: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member remove: %w", err)
	}
	return nil
}

// ListMembers lists a clan's active members ordered by role rank, then join
// time.
func (s *Store) ListMembers(ctx context.Context, clanName string) ([]member.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	clanName = strings.TrimSpace(clanName)
	if clanName == "" {
		return nil, fmt.Errorf("clan name is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT clan_name, user_id, role, joined_at, active
FROM members
WHERE clan_name = ? AND active = 1
ORDER BY CASE role
	WHEN 'leader' THEN 1
	WHEN 'co_leader' THEN 2
	WHEN 'member' THEN 3
	ELSE 4
END, joined_at ASC
`, clanName)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []member.Member
	for rows.Next() {
		var m member.Member
		var roleValue string
		var joinedAt int64
		if err := rows.Scan(&m.ClanName, &m.UserID, &roleValue, &joinedAt, &m.Active); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = member.Role(roleValue)
		m.JoinedAt = fromMillis(joinedAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// RoleOf returns the active member's role, or storage.ErrNotFound when the
// user holds no active membership.
func (s *Store) RoleOf(ctx context.Context, clanName, userID string) (member.Role, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	clanName = strings.TrimSpace(clanName)
	userID = strings.TrimSpace(userID)
	if clanName == "" || userID == "" {
		return "", storage.ErrNotFound
	}

	var roleValue string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT role FROM members WHERE clan_name = ? AND user_id = ? AND active = 1",
		clanName, userID,
	).Scan(&roleValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get member role: %w", err)
	}
	return member.Role(roleValue), nil
}

// IsMember reports whether the user holds an active membership in the clan.
func (s *Store) IsMember(ctx context.Context, clanName, userID string) (bool, error) {
	_, err := s.RoleOf(ctx, clanName, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
