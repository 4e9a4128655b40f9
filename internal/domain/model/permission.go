//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"time"
)

// Role is the access level a grant confers on a secret container.
type Role string

const (
	RoleOwner Role = "owner"
	RoleWrite Role = "write"
	RoleRead  Role = "read"
)

// Valid reports whether r is a known role name.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleWrite || r == RoleRead
}

// RoleSet is a set of roles, used to express "any of these satisfies".
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds r.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Permission associates a secret container with either a user-group name or
// an internal IAM role id, plus the role the grantee holds. Exactly one of
// GroupName and IAMRoleID is set. At most one grant exists per
// (container, group) and per (container, IAM role).
type Permission struct {
	ID          string    `json:"id"                     db:"id"`
	ContainerID string    `json:"container_id"           db:"container_id"`
	GroupName   *string   `json:"group_name,omitempty"   db:"group_name"`
	IAMRoleID   *string   `json:"iam_role_id,omitempty"  db:"iam_role_id"`
	RoleName    Role      `json:"role_name"              db:"role_name"`
	CreatedBy   string    `json:"created_by"             db:"created_by"`
	UpdatedBy   string    `json:"updated_by"             db:"updated_by"`
	CreatedAt   time.Time `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"             db:"updated_at"`
}

// Validate checks the one-of grantee invariant and the role name.
func (p *Permission) Validate() error {
	if p.ContainerID == "" {
		return errors.New("container_id is required")
	}
	hasGroup := p.GroupName != nil && *p.GroupName != ""
	hasRole := p.IAMRoleID != nil && *p.IAMRoleID != ""
	if hasGroup == hasRole {
		return errors.New("exactly one of group_name and iam_role_id must be set")
	}
	if !p.RoleName.Valid() {
		return errors.New("role_name must be one of owner, write, read")
	}
	return nil
}

// Container is a secret container: the unit access grants attach to.
// Owner is a denormalized single group name, not a grant-table entry.
type Container struct {
	ID        string    `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	Owner     string    `json:"owner"      db:"owner"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
