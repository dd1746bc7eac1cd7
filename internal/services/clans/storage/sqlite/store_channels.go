package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

func normalizeExtraChannel(ch storage.ExtraChannel) (storage.ExtraChannel, error) {
	ch.ClanName = strings.TrimSpace(ch.ClanName)
	ch.ChannelRef = strings.TrimSpace(ch.ChannelRef)
	ch.Name = strings.TrimSpace(ch.Name)
	if ch.ClanName == "" {
		return storage.ExtraChannel{}, fmt.Errorf("clan name is required")
	}
	if ch.ChannelRef == "" {
		return storage.ExtraChannel{}, fmt.Errorf("channel ref is required")
	}
	if ch.Name == "" {
		return storage.ExtraChannel{}, fmt.Errorf("channel name is required")
	}
	if !ch.Kind.Valid() {
		return storage.ExtraChannel{}, fmt.Errorf("channel kind %q is invalid", ch.Kind)
	}
	return ch, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertExtraChannelExec(ctx context.Context, db execer, ch storage.ExtraChannel) (storage.ExtraChannel, error) {
	result, err := db.ExecContext(ctx, `
INSERT INTO extra_channels (clan_name, channel_ref, name, kind, created_at)
VALUES (?, ?, ?, ?, ?)
`, ch.ClanName, ch.ChannelRef, ch.Name, string(ch.Kind), toMillis(ch.CreatedAt))
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ExtraChannel{}, fmt.Errorf("clan %q: %w", ch.ClanName, storage.ErrNotFound)
		}
		return storage.ExtraChannel{}, fmt.Errorf("insert extra channel: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.ExtraChannel{}, fmt.Errorf("extra channel id: %w", err)
	}
	ch.ID = id
	return ch, nil
}

// AddExtraChannel stores one extra channel unconditionally; the capacity gate
// belongs to the caller. A missing clan surfaces as storage.ErrNotFound.
func (s *Store) AddExtraChannel(ctx context.Context, ch storage.ExtraChannel) (storage.ExtraChannel, error) {
	if err := ctx.Err(); err != nil {
		return storage.ExtraChannel{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ExtraChannel{}, err
	}
	normalized, err := normalizeExtraChannel(ch)
	if err != nil {
		return storage.ExtraChannel{}, err
	}
	if normalized.CreatedAt.IsZero() {
		normalized.CreatedAt = s.now().UTC()
	}
	return insertExtraChannelExec(ctx, s.sqlDB, normalized)
}

// AddExtraChannelChecked verifies the level-derived capacity for the channel
// kind and inserts inside the same transaction, so concurrent requests cannot
// overshoot the limit.
func (s *Store) AddExtraChannelChecked(ctx context.Context, ch storage.ExtraChannel) (storage.ExtraChannel, error) {
	if err := ctx.Err(); err != nil {
		return storage.ExtraChannel{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ExtraChannel{}, err
	}
	normalized, err := normalizeExtraChannel(ch)
	if err != nil {
		return storage.ExtraChannel{}, err
	}
	if normalized.CreatedAt.IsZero() {
		normalized.CreatedAt = s.now().UTC()
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return storage.ExtraChannel{}, fmt.Errorf("begin channel add: %w", err)
	}

	c, err := getClanTx(ctx, tx, normalized.ClanName)
	if err != nil {
		return storage.ExtraChannel{}, rollbackWith(tx, err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM extra_channels WHERE clan_name = ? AND kind = ?",
		normalized.ClanName, string(normalized.Kind),
	).Scan(&count); err != nil {
		return storage.ExtraChannel{}, rollbackWith(tx, fmt.Errorf("count extra channels: %w", err))
	}

	capacities := leveling.CapacitiesFor(c.Level)
	allowed := capacities.AllowsTextChannels(count)
	if normalized.Kind == storage.ChannelVoice {
		allowed = capacities.AllowsVoiceChannels(count)
	}
	if !allowed {
		return storage.ExtraChannel{}, rollbackWith(tx, storage.ErrCapacityExceeded)
	}

	inserted, err := insertExtraChannelExec(ctx, tx, normalized)
	if err != nil {
		return storage.ExtraChannel{}, rollbackWith(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.ExtraChannel{}, fmt.Errorf("commit channel add: %w", err)
	}
	return inserted, nil
}

// CountExtraChannels counts a clan's extra channels. An empty kind counts all
// of them.
func (s *Store) CountExtraChannels(ctx context.Context, clanName string, kind storage.ExtraChannelKind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	clanName = strings.TrimSpace(clanName)
	if clanName == "" {
		return 0, fmt.Errorf("clan name is required")
	}
	if kind != "" && !kind.Valid() {
		return 0, fmt.Errorf("channel kind %q is invalid", kind)
	}

	var count int
	var err error
	if kind == "" {
		err = s.sqlDB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM extra_channels WHERE clan_name = ?", clanName,
		).Scan(&count)
	} else {
		err = s.sqlDB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM extra_channels WHERE clan_name = ? AND kind = ?",
			clanName, string(kind),
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count extra channels: %w", err)
	}
	return count, nil
}

func (s *Store) listExtraChannels(ctx context.Context, clanName string) ([]storage.ExtraChannel, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, clan_name, channel_ref, name, kind, created_at
FROM extra_channels
WHERE clan_name = ?
ORDER BY id ASC
`, clanName)
	if err != nil {
		return nil, fmt.Errorf("list extra channels: %w", err)
	}
	defer rows.Close()

	var channels []storage.ExtraChannel
	for rows.Next() {
		var ch storage.ExtraChannel
		var kindValue string
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.ClanName, &ch.ChannelRef, &ch.Name, &kindValue, &createdAt); err != nil {
			return nil, fmt.Errorf("scan extra channel: %w", err)
		}
		ch.Kind = storage.ExtraChannelKind(kindValue)
		ch.CreatedAt = fromMillis(createdAt)
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list extra channels: %w", err)
	}
	return channels, nil
}
