package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/guildworks/clanhall/internal/services/clans/domain/clan"
	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

const clanColumns = `name, creator_id, description, level, xp, current_members, total_members,
role_ref, category_ref, announce_channel_ref, admin_channel_ref, general_channel_ref,
invite_token, color, created_at`

func scanClan(scan func(dest ...any) error) (clan.Clan, error) {
	var c clan.Clan
	var createdAt int64
	err := scan(
		&c.Name, &c.CreatorID, &c.Description, &c.Level, &c.XP,
		&c.CurrentMembers, &c.TotalMembers,
		&c.Platform.Role, &c.Platform.Category, &c.Platform.AnnounceChannel,
		&c.Platform.AdminChannel, &c.Platform.GeneralChannel,
		&c.InviteToken, &c.Color, &createdAt,
	)
	if err != nil {
		return clan.Clan{}, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// getClanTx loads one clan row inside the given transaction.
func getClanTx(ctx context.Context, tx *sql.Tx, name string) (clan.Clan, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+clanColumns+" FROM clans WHERE name = ?", name)
	c, err := scanClan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return clan.Clan{}, storage.ErrNotFound
		}
		return clan.Clan{}, fmt.Errorf("get clan: %w", err)
	}
	return c, nil
}

// CreateClan inserts the clan and its Leader membership in one transaction.
// Duplicate names surface as storage.ErrDuplicateName from the primary-key
// constraint; there is no racy existence pre-check.
func (s *Store) CreateClan(ctx context.Context, c clan.Clan, leader member.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("clan name is required")
	}
	if leader.Role != member.RoleLeader {
		return fmt.Errorf("clan creator must join as leader")
	}
	if leader.ClanName != c.Name {
		return fmt.Errorf("leader membership must reference the created clan")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin clan create: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO clans (`+clanColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		c.Name, c.CreatorID, c.Description, c.Level, c.XP,
		c.CurrentMembers, c.TotalMembers,
		c.Platform.Role, c.Platform.Category, c.Platform.AnnounceChannel,
		c.Platform.AdminChannel, c.Platform.GeneralChannel,
		c.InviteToken, c.Color, toMillis(c.CreatedAt),
	); err != nil {
		if isUniqueConstraintError(err) {
			return rollbackWith(tx, storage.ErrDuplicateName)
		}
		return rollbackWith(tx, fmt.Errorf("insert clan: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO members (clan_name, user_id, role, joined_at, active)
VALUES (?, ?, ?, ?, 1)
`, leader.ClanName, leader.UserID, string(leader.Role), toMillis(leader.JoinedAt)); err != nil {
		return rollbackWith(tx, fmt.Errorf("insert leader membership: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clan create: %w", err)
	}
	return nil
}

// GetClan loads one clan with its derived view: capacities for the current
// level, the next level threshold, and attached extra channels.
func (s *Store) GetClan(ctx context.Context, name string) (storage.ClanView, error) {
	if err := ctx.Err(); err != nil {
		return storage.ClanView{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ClanView{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.ClanView{}, fmt.Errorf("clan name is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+clanColumns+" FROM clans WHERE name = ?", name)
	c, err := scanClan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ClanView{}, storage.ErrNotFound
		}
		return storage.ClanView{}, fmt.Errorf("get clan: %w", err)
	}

	channels, err := s.listExtraChannels(ctx, name)
	if err != nil {
		return storage.ClanView{}, err
	}

	view := storage.ClanView{
		Clan:          c,
		Capacities:    leveling.CapacitiesFor(c.Level),
		ExtraChannels: channels,
	}
	view.NextLevelXP, view.HasNextLevel = leveling.NextThreshold(c.Level)
	return view, nil
}

// FindClanByAdminChannel resolves which clan owns an administrative channel.
func (s *Store) FindClanByAdminChannel(ctx context.Context, channelRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	channelRef = strings.TrimSpace(channelRef)
	if channelRef == "" {
		return "", storage.ErrNotFound
	}

	var name string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT name FROM clans WHERE admin_channel_ref = ?", channelRef,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("find clan by admin channel: %w", err)
	}
	return name, nil
}

// ListClans lists clans ordered by level descending, then XP descending, with
// insertion order as the stable tiebreak.
func (s *Store) ListClans(ctx context.Context) ([]storage.ClanSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT name, creator_id, level, xp, current_members, created_at
FROM clans
ORDER BY level DESC, xp DESC, rowid ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list clans: %w", err)
	}
	defer rows.Close()

	var summaries []storage.ClanSummary
	for rows.Next() {
		var summary storage.ClanSummary
		var createdAt int64
		if err := rows.Scan(&summary.Name, &summary.CreatorID, &summary.Level,
			&summary.XP, &summary.CurrentMembers, &createdAt); err != nil {
			return nil, fmt.Errorf("scan clan summary: %w", err)
		}
		summary.CreatedAt = fromMillis(createdAt)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clans: %w", err)
	}
	return summaries, nil
}

// ClanExists reports whether a clan with the given name exists.
func (s *Store) ClanExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}

	var found int
	err := s.sqlDB.QueryRowContext(ctx, "SELECT 1 FROM clans WHERE name = ? LIMIT 1", name).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check clan exists: %w", err)
	}
	return true, nil
}

// DeleteClan removes a clan. Membership, invitation, ledger, and extra channel
// rows follow through the foreign-key cascade.
func (s *Store) DeleteClan(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("clan name is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM clans WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete clan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete clan rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
