package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/domain/arn"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// PermissionServiceOptions groups dependencies for PermissionService.
type PermissionServiceOptions struct {
	Permissions core.PermissionRepository // Required: grant repository
	Containers  core.ContainerRepository  // Required: container metadata
	IAMRoles    core.IAMRoleRepository    // Required: role ARN lookups
	// CaseInsensitiveGroups lowers both sides of group comparisons. Global
	// policy, not per-container.
	CaseInsensitiveGroups bool
	Logger                *slog.Logger // Optional: structured logger
}

// PermissionService decides whether a principal holds a required role
// against a secret container's grants.
type PermissionService struct {
	permissions core.PermissionRepository
	containers  core.ContainerRepository
	iamRoles    core.IAMRoleRepository
	ciGroups    bool
	logger      *slog.Logger
}

// NewPermissionService constructs a new PermissionService.
func NewPermissionService(opts PermissionServiceOptions) (*PermissionService, error) {
	if opts.Permissions == nil {
		return nil, errors.New("PermissionRepository is required")
	}
	if opts.Containers == nil {
		return nil, errors.New("ContainerRepository is required")
	}
	if opts.IAMRoles == nil {
		return nil, errors.New("IAMRoleRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "permission_service")
	}

	return &PermissionService{
		permissions: opts.Permissions,
		containers:  opts.Containers,
		iamRoles:    opts.IAMRoles,
		ciGroups:    opts.CaseInsensitiveGroups,
		logger:      logger,
	}, nil
}

// MustNewPermissionService constructs a new PermissionService and panics on
// error.
func MustNewPermissionService(opts PermissionServiceOptions) *PermissionService {
	svc, err := NewPermissionService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// HasRole reports whether the principal holds any of the required roles on
// the container. Authorization failures fail closed and silently: lookup
// errors and unknown principal types resolve to false, never to an error
// that would leak internal detail.
func (s *PermissionService) HasRole(
	ctx context.Context,
	principal *model.Principal,
	containerID string,
	roles model.RoleSet,
) bool {
	if principal == nil || containerID == "" || len(roles) == 0 {
		return false
	}

	switch principal.Type {
	case model.PrincipalTypeIAM:
		return s.iamPrincipalHasRole(ctx, principal.Name, containerID, roles)
	case model.PrincipalTypeUser:
		return s.userHasRole(ctx, principal, containerID, roles)
	default:
		if s.logger != nil {
			s.logger.WarnContext(ctx, "authorization check for unknown principal type",
				"principal_type", string(principal.Type))
		}
		return false
	}
}

// IsOwner is the narrower ownership check: the owner grant role for IAM
// principals, or equality against the container's denormalized owner group
// for users.
func (s *PermissionService) IsOwner(ctx context.Context, principal *model.Principal, containerID string) bool {
	if principal == nil || containerID == "" {
		return false
	}

	switch principal.Type {
	case model.PrincipalTypeIAM:
		return s.iamPrincipalHasRole(ctx, principal.Name, containerID, model.NewRoleSet(model.RoleOwner))
	case model.PrincipalTypeUser:
		container, err := s.containers.GetByID(ctx, containerID)
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "owner check container lookup failed", "error", err)
			}
			return false
		}
		return principal.HasGroup(container.Owner, s.ciGroups)
	default:
		return false
	}
}

// iamPrincipalHasRole matches the container's IAM grants against every
// canonical form the presented ARN can take: the ARN itself, the base role
// ARN when the caller presented an assumed-role session, and the owning
// account's root ARN.
func (s *PermissionService) iamPrincipalHasRole(
	ctx context.Context,
	principalARN string,
	containerID string,
	roles model.RoleSet,
) bool {
	candidates := s.candidateARNs(ctx, principalARN)
	if len(candidates) == 0 {
		return false
	}

	grants, err := s.permissions.ListByContainer(ctx, containerID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "grant lookup failed", "container_id", containerID, "error", err)
		}
		return false
	}

	for _, grant := range grants {
		if grant.IAMRoleID == nil || !roles.Contains(grant.RoleName) {
			continue
		}
		role, roleErr := s.iamRoles.GetByID(ctx, *grant.IAMRoleID)
		if roleErr != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "grant role lookup failed", "iam_role_id", *grant.IAMRoleID, "error", roleErr)
			}
			continue
		}
		for _, candidate := range candidates {
			if role.ARN == candidate {
				return true
			}
		}
	}
	return false
}

// candidateARNs expands a presented principal ARN into the set of stored
// forms that may carry a grant for it. Grants are stored canonically (role
// or root ARN, never a session ARN), so a session caller must also match
// its derived forms.
func (s *PermissionService) candidateARNs(ctx context.Context, principalARN string) []string {
	candidates := []string{principalARN}

	if arn.IsAssumedRoleARN(principalARN) {
		roleARN, err := arn.RoleARNFromAssumedRole(principalARN)
		if err == nil {
			candidates = append(candidates, roleARN)
		}
	}

	rootARN, err := arn.RootARN(principalARN)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "cannot derive root ARN", "arn", principalARN, "error", err)
		}
		return candidates
	}
	return append(candidates, rootARN)
}

// userHasRole intersects the principal's groups with the container's group
// grants for the required roles.
func (s *PermissionService) userHasRole(
	ctx context.Context,
	principal *model.Principal,
	containerID string,
	roles model.RoleSet,
) bool {
	grantGroups, err := s.permissions.ListGroupNamesByContainer(ctx, containerID, roles)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "group grant lookup failed", "container_id", containerID, "error", err)
		}
		return false
	}
	return s.groupsIntersect(principal.Groups, grantGroups)
}

// groupsIntersect applies the global case-sensitivity policy. In
// case-insensitive mode both sides are lowered before comparison.
func (s *PermissionService) groupsIntersect(principalGroups, grantGroups []string) bool {
	if len(principalGroups) == 0 || len(grantGroups) == 0 {
		return false
	}

	normalize := func(g string) string {
		if s.ciGroups {
			return strings.ToLower(g)
		}
		return g
	}

	granted := make(map[string]struct{}, len(grantGroups))
	for _, g := range grantGroups {
		granted[normalize(g)] = struct{}{}
	}
	for _, g := range principalGroups {
		if _, ok := granted[normalize(g)]; ok {
			return true
		}
	}
	return false
}

// ValidateGrantARN checks that an ARN is acceptable for storage in a
// permission grant. Canonical role ARNs always pass; the wider legacy
// pattern (user, federated-user, assumed-role) passes for backward
// compatibility; anything else is rejected.
func ValidateGrantARN(principalARN string) error {
	if arn.IsApprovedForGrant(principalARN) {
		return nil
	}
	return fmt.Errorf("%w: %q is not storable in a permission grant", arn.ErrInvalidPrincipal, principalARN)
}
