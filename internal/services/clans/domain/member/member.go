// Package member defines clan membership roles and the member entity.
package member

import (
	"errors"
	"strings"
	"time"
)

// Role identifies a member's rank inside a clan.
type Role string

// Roles ordered from highest to lowest rank.
const (
	RoleLeader   Role = "leader"
	RoleCoLeader Role = "co_leader"
	RoleMember   Role = "member"
	RoleRecruit  Role = "recruit"
)

// ErrInvalidRole indicates a role outside the known set.
var ErrInvalidRole = errors.New("invalid member role")

// Rank returns the sort rank for a role: Leader=1 through Recruit=4.
// Unknown roles sort last.
func (r Role) Rank() int {
	switch r {
	case RoleLeader:
		return 1
	case RoleCoLeader:
		return 2
	case RoleMember:
		return 3
	case RoleRecruit:
		return 4
	}
	return 5
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleLeader, RoleCoLeader, RoleMember, RoleRecruit:
		return true
	}
	return false
}

// CanManage reports whether a member with role r may invite members or add
// channels. Only Leader and Co-Leader hold management rights.
func (r Role) CanManage() bool {
	return r == RoleLeader || r == RoleCoLeader
}

// Invitable reports whether r may be assigned through an invitation.
// Invitations only grant Recruit or Member.
func (r Role) Invitable() bool {
	return r == RoleRecruit || r == RoleMember
}

// ParseRole maps a stored role string to a Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(value)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Member is one (clan, user) membership row. Members are soft-deleted: the
// Active flag drops on removal and the row stays for history.
type Member struct {
	ClanName string
	UserID   string
	Role     Role
	JoinedAt time.Time
	Active   bool
}

// New builds an active member with a normalized role and join timestamp.
func New(clanName, userID string, role Role, now func() time.Time) (Member, error) {
	if now == nil {
		now = time.Now
	}
	clanName = strings.TrimSpace(clanName)
	userID = strings.TrimSpace(userID)
	if clanName == "" {
		return Member{}, errors.New("clan name is required")
	}
	if userID == "" {
		return Member{}, errors.New("user id is required")
	}
	if !role.Valid() {
		return Member{}, ErrInvalidRole
	}
	return Member{
		ClanName: clanName,
		UserID:   userID,
		Role:     role,
		JoinedAt: now().UTC(),
		Active:   true,
	}, nil
}
