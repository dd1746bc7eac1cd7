package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/guildworks/clanhall/internal/services/clans/domain/invite"
	"github.com/guildworks/clanhall/internal/services/clans/domain/member"
	"github.com/guildworks/clanhall/internal/services/clans/storage"
)

const invitationColumns = "id, clan_name, invitee_id, inviter_id, role, status, created_at, expires_at"

func scanInvitation(scan func(dest ...any) error) (invite.Invitation, error) {
	var inv invite.Invitation
	var roleValue, statusValue string
	var createdAt, expiresAt int64
	err := scan(&inv.ID, &inv.ClanName, &inv.InviteeID, &inv.InviterID,
		&roleValue, &statusValue, &createdAt, &expiresAt)
	if err != nil {
		return invite.Invitation{}, err
	}
	inv.Role = member.Role(roleValue)
	inv.Status = invite.Status(statusValue)
	inv.CreatedAt = fromMillis(createdAt)
	inv.ExpiresAt = fromMillis(expiresAt)
	return inv, nil
}

// CreateInvitation persists a pending invitation. The referenced clan must
// exist; a missing clan surfaces as storage.ErrNotFound through the foreign
// key. Duplicate pending invitations to the same user are allowed.
func (s *Store) CreateInvitation(ctx context.Context, inv invite.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invitation id is required")
	}
	if inv.Status != invite.StatusPending {
		return fmt.Errorf("new invitations must be pending: %w", storage.ErrInvalidState)
	}
	if !inv.Role.Invitable() {
		return invite.ErrRoleNotInvitable
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invitations (`+invitationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, inv.ID, inv.ClanName, inv.InviteeID, inv.InviterID,
		string(inv.Role), string(inv.Status), toMillis(inv.CreatedAt), toMillis(inv.ExpiresAt))
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return fmt.Errorf("clan %q: %w", inv.ClanName, storage.ErrNotFound)
		}
		if isUniqueConstraintError(err) {
			return fmt.Errorf("invitation id %q: %w", inv.ID, storage.ErrInvalidState)
		}
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

// GetInvitation loads one invitation. Expiry is detected lazily: a pending
// invitation past its deadline is transitioned to expired before it is
// returned.
func (s *Store) GetInvitation(ctx context.Context, id string) (invite.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return invite.Invitation{}, err
	}
	if err := s.ready(); err != nil {
		return invite.Invitation{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return invite.Invitation{}, storage.ErrNotFound
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return invite.Invitation{}, fmt.Errorf("begin invitation get: %w", err)
	}

	row := tx.QueryRowContext(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE id = ?", id)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invite.Invitation{}, rollbackWith(tx, storage.ErrNotFound)
		}
		return invite.Invitation{}, rollbackWith(tx, fmt.Errorf("get invitation: %w", err))
	}

	if inv.Status == invite.StatusPending && inv.ExpiredAt(s.now()) {
		if _, err := tx.ExecContext(ctx,
			"UPDATE invitations SET status = ? WHERE id = ? AND status = ?",
			string(invite.StatusExpired), id, string(invite.StatusPending),
		); err != nil {
			return invite.Invitation{}, rollbackWith(tx, fmt.Errorf("expire invitation: %w", err))
		}
		inv.Status = invite.StatusExpired
	}

	if err := tx.Commit(); err != nil {
		return invite.Invitation{}, fmt.Errorf("commit invitation get: %w", err)
	}
	return inv, nil
}

// AcceptInvitation admits the invitee and marks the invitation accepted in one
// transaction. If admission fails, the invitation stays pending and the whole
// operation rolls back. A pending invitation past its deadline transitions to
// expired and the call fails with storage.ErrInvalidState.
func (s *Store) AcceptInvitation(ctx context.Context, id string) (storage.AcceptInvitationResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.AcceptInvitationResult{}, err
	}
	if err := s.ready(); err != nil {
		return storage.AcceptInvitationResult{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.AcceptInvitationResult{}, storage.ErrNotFound
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return storage.AcceptInvitationResult{}, fmt.Errorf("begin invitation accept: %w", err)
	}

	row := tx.QueryRowContext(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE id = ?", id)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AcceptInvitationResult{}, rollbackWith(tx, storage.ErrNotFound)
		}
		return storage.AcceptInvitationResult{}, rollbackWith(tx, fmt.Errorf("get invitation: %w", err))
	}

	if inv.Status != invite.StatusPending {
		return storage.AcceptInvitationResult{},
			rollbackWith(tx, fmt.Errorf("invitation is %s: %w", inv.Status, storage.ErrInvalidState))
	}

	now := s.now()
	if inv.ExpiredAt(now) {
		// The expiry transition commits even though the accept fails; the
		// caller observes the invitation as expired from now on.
		if _, err := tx.ExecContext(ctx,
			"UPDATE invitations SET status = ? WHERE id = ? AND status = ?",
			string(invite.StatusExpired), id, string(invite.StatusPending),
		); err != nil {
			return storage.AcceptInvitationResult{}, rollbackWith(tx, fmt.Errorf("expire invitation: %w", err))
		}
		if err := tx.Commit(); err != nil {
			return storage.AcceptInvitationResult{}, fmt.Errorf("commit invitation expiry: %w", err)
		}
		return storage.AcceptInvitationResult{},
			fmt.Errorf("invitation expired: %w", storage.ErrInvalidState)
	}

	admitted, _, xp, err := addMemberTx(ctx, tx, inv.ClanName, inv.InviteeID, inv.Role, now)
	if err != nil {
		return storage.AcceptInvitationResult{}, rollbackWith(tx, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE invitations SET status = ? WHERE id = ?",
		string(invite.StatusAccepted), id,
	); err != nil {
		return storage.AcceptInvitationResult{}, rollbackWith(tx, fmt.Errorf("mark invitation accepted: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return storage.AcceptInvitationResult{}, fmt.Errorf("commit invitation accept: %w", err)
	}

	inv.Status = invite.StatusAccepted
	return storage.AcceptInvitationResult{Invitation: inv, Member: admitted, XP: xp}, nil
}

// RejectInvitation moves a pending invitation to rejected. Terminal
// invitations report storage.ErrInvalidState; unknown ids report
// storage.ErrNotFound.
func (s *Store) RejectInvitation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ErrNotFound
	}

	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE invitations SET status = ? WHERE id = ? AND status = ?",
		string(invite.StatusRejected), id, string(invite.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("reject invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject invitation rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var statusValue string
	err = s.sqlDB.QueryRowContext(ctx, "SELECT status FROM invitations WHERE id = ?", id).Scan(&statusValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get invitation status: %w", err)
	}
	return fmt.Errorf("invitation is %s: %w", statusValue, storage.ErrInvalidState)
}

// SweepExpiredInvitations marks every overdue pending invitation as expired
// and returns the number of rows changed. Idempotent.
func (s *Store) SweepExpiredInvitations(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE invitations SET status = ? WHERE status = ? AND expires_at < ?",
		string(invite.StatusExpired), string(invite.StatusPending), toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired invitations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return affected, nil
}
