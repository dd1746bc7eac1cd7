package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

const defaultLedgerLimit = 50

// AwardXP applies an XP delta through the leveling schedule and appends the
// matching ledger entry, all in one transaction. The delta may be negative;
// the stored level always follows the threshold rule.
func (s *Store) AwardXP(ctx context.Context, clanName string, amount int64, reason, actorID, origin string) (storage.XPChange, error) {
	if err := ctx.Err(); err != nil {
		return storage.XPChange{}, err
	}
	if err := s.ready(); err != nil {
		return storage.XPChange{}, err
	}
	clanName = strings.TrimSpace(clanName)
	reason = strings.TrimSpace(reason)
	if clanName == "" {
		return storage.XPChange{}, fmt.Errorf("clan name is required")
	}
	if reason == "" {
		return storage.XPChange{}, fmt.Errorf("xp reason is required")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return storage.XPChange{}, fmt.Errorf("begin xp award: %w", err)
	}

	c, err := getClanTx(ctx, tx, clanName)
	if err != nil {
		return storage.XPChange{}, rollbackWith(tx, err)
	}

	change, err := applyXPTx(ctx, tx, c, amount, reason, strings.TrimSpace(actorID), strings.TrimSpace(origin), s.now())
	if err != nil {
		return storage.XPChange{}, rollbackWith(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return storage.XPChange{}, fmt.Errorf("commit xp award: %w", err)
	}
	return change, nil
}

// ListLedger returns a clan's most recent ledger entries, newest first. A
// non-positive limit falls back to a default page.
func (s *Store) ListLedger(ctx context.Context, clanName string, limit int) ([]storage.LedgerEntry, error) {
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
	if limit <= 0 {
		limit = defaultLedgerLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, clan_name, amount, reason, origin, actor_id, created_at
FROM xp_ledger
WHERE clan_name = ?
ORDER BY id DESC
LIMIT ?
`, clanName, limit)
	if err != nil {
		return nil, fmt.Errorf("list xp ledger: %w", err)
	}
	defer rows.Close()

	var entries []storage.LedgerEntry
	for rows.Next() {
		var entry storage.LedgerEntry
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.ClanName, &entry.Amount,
			&entry.Reason, &entry.Origin, &entry.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list xp ledger: %w", err)
	}
	return entries, nil
}
