//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"strings"
	"time"
)

// PrincipalType is the closed set of caller identities the trust engine
// understands. Anything else fails authorization closed.
type PrincipalType string

const (
	// PrincipalTypeIAM identifies a cloud IAM principal (role, assumed role,
	// or account root) authenticated through the KMS envelope flow.
	PrincipalTypeIAM PrincipalType = "IAM"
	// PrincipalTypeUser identifies a human user authenticated through the
	// external identity connector.
	PrincipalTypeUser PrincipalType = "USER"
)

// Valid reports whether t is one of the known principal types.
func (t PrincipalType) Valid() bool {
	return t == PrincipalTypeIAM || t == PrincipalTypeUser
}

// Principal is the caller identity reconstructed from a validated token.
// It is ephemeral: never persisted as an object, only its constituent
// claims ride inside the token.
type Principal struct {
	// Name is the username for USER principals or the presented ARN for
	// IAM principals.
	Name string
	Type PrincipalType
	// IsAdmin is computed at login time from admin-group membership (USER)
	// or the admin ARN allowlist (IAM).
	IsAdmin bool
	Groups  []string
	// TokenID is the jti of the token this principal was decoded from.
	// It is the sole revocation handle.
	TokenID      string
	RefreshCount int
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// HasGroup reports whether the principal belongs to the named group.
// Matching is case-insensitive when ci is true.
func (p *Principal) HasGroup(name string, ci bool) bool {
	for _, g := range p.Groups {
		if g == name {
			return true
		}
		if ci && strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}
