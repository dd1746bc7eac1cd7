package sqlite

import (
	"context"
	"fmt"

	"github.com/guildworks/clanhall/internal/services/clans/domain/leveling"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

// Stats reports store-wide totals.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return storage.Stats{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Stats{}, err
	}

	var stats storage.Stats
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM clans",
	).Scan(&stats.Clans); err != nil {
		return storage.Stats{}, fmt.Errorf("count clans: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM members WHERE active = 1",
	).Scan(&stats.ActiveMembers); err != nil {
		return storage.Stats{}, fmt.Errorf("count active members: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM extra_channels",
	).Scan(&stats.ExtraChannels); err != nil {
		return storage.Stats{}, fmt.Errorf("count extra channels: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM invitations WHERE status = 'pending'",
	).Scan(&stats.PendingInvitations); err != nil {
		return storage.Stats{}, fmt.Errorf("count pending invitations: %w", err)
	}
	return stats, nil
}

// VerifyAggregates compares each clan's cached member count and level against
// the state derived from its detail rows and XP. Transactional writes keep
// these in lockstep, so issues point at manual edits or bugs.
func (s *Store) VerifyAggregates(ctx context.Context) ([]storage.AggregateIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT c.name, c.current_members, c.level, c.xp,
       (SELECT COUNT(*) FROM members m WHERE m.clan_name = c.name AND m.active = 1)
FROM clans c
ORDER BY c.name ASC
`)
	if err != nil {
		return nil, fmt.Errorf("scan clan aggregates: %w", err)
	}
	defer rows.Close()

	var issues []storage.AggregateIssue
	for rows.Next() {
		var name string
		var currentMembers, level int64
		var xp int64
		var activeRows int64
		if err := rows.Scan(&name, &currentMembers, &level, &xp, &activeRows); err != nil {
			return nil, fmt.Errorf("scan clan aggregates: %w", err)
		}
		if currentMembers != activeRows {
			issues = append(issues, storage.AggregateIssue{
				ClanName: name,
				Field:    "current_members",
				Stored:   currentMembers,
				Derived:  activeRows,
			})
		}
		if derived := int64(leveling.LevelFor(xp)); level != derived {
			issues = append(issues, storage.AggregateIssue{
				ClanName: name,
				Field:    "level",
				Stored:   level,
				Derived:  derived,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan clan aggregates: %w", err)
	}
	return issues, nil
}
