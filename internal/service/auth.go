package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vaultgate/vaultgate/config"
	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/data"
	"github.com/vaultgate/vaultgate/internal/domain/arn"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// truncatedMarker replaces metadata and policies when the serialized auth
// payload would exceed the cloud's encryptable size. A login is never failed
// just because its payload was too rich to encrypt.
const truncatedMarker = "_truncated"

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Tokens      *TokenService          // Required: token issuance and validation
	Permissions *PermissionService     // Required: authorization checks
	Lifecycle   *KeyLifecycleService   // Required: cloud key management for IAM logins
	Roles       core.IAMRoleRepository // Required: principal resolution
	Users       core.UserAuthenticator // Required: USER login connector
	Cache       core.ResponseCache     // Optional: encrypted-response memoization
	Auth        config.AuthConfig      // Required: admin policy, cache TTL
	// PlaintextLimit is the cloud's encryptable payload ceiling in bytes.
	PlaintextLimit int          // Required
	Logger         *slog.Logger // Optional: structured logger
}

// AuthService orchestrates the two login paths, token refresh and
// revocation, and authorization. It keeps no state of its own beyond the
// optional response cache and the in-flight deduplication group.
type AuthService struct {
	tokens      *TokenService
	permissions *PermissionService
	lifecycle   *KeyLifecycleService
	roles       core.IAMRoleRepository
	users       core.UserAuthenticator
	cache       core.ResponseCache
	cfg         config.AuthConfig
	limit       int
	adminARNs   map[string]struct{}
	logger      *slog.Logger

	// flight collapses identical concurrent IAM logins into one cloud
	// round-trip.
	flight singleflight.Group
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Tokens == nil {
		return nil, errors.New("TokenService is required")
	}
	if opts.Permissions == nil {
		return nil, errors.New("PermissionService is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("KeyLifecycleService is required")
	}
	if opts.Roles == nil {
		return nil, errors.New("IAMRoleRepository is required")
	}
	if opts.Users == nil {
		return nil, errors.New("UserAuthenticator is required")
	}
	if opts.PlaintextLimit <= 0 {
		return nil, errors.New("plaintext limit must be positive")
	}

	adminARNs := make(map[string]struct{}, len(opts.Auth.AdminRoleARNs))
	for _, a := range opts.Auth.AdminRoleARNs {
		if a = strings.TrimSpace(a); a != "" {
			adminARNs[a] = struct{}{}
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "auth_service")
		logger.Debug("AuthService initialized",
			"admin_arns", len(adminARNs),
			"response_cache", opts.Cache != nil && opts.Auth.ResponseCacheTTL > 0)
	}

	return &AuthService{
		tokens:      opts.Tokens,
		permissions: opts.Permissions,
		lifecycle:   opts.Lifecycle,
		roles:       opts.Roles,
		users:       opts.Users,
		cache:       opts.Cache,
		cfg:         opts.Auth,
		limit:       opts.PlaintextLimit,
		adminARNs:   adminARNs,
		logger:      logger,
	}, nil
}

// MustNewAuthService constructs a new AuthService and panics on error.
func MustNewAuthService(opts AuthServiceOptions) *AuthService {
	svc, err := NewAuthService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// AuthenticateIAM performs an IAM login: resolve the principal to a trusted
// role record, obtain its regional key, issue a token, and hand back the
// serialized response encrypted under that key. Only a holder of the IAM role
// can decrypt the result, which is what proves the caller's identity.
func (s *AuthService) AuthenticateIAM(ctx context.Context, principalARN, region string) (*model.EncryptedAuthResponse, error) {
	if principalARN == "" || region == "" {
		return nil, fmt.Errorf("%w: principal ARN and region are required", arn.ErrInvalidPrincipal)
	}
	if err := arn.CheckPartition(principalARN); err != nil {
		return nil, err
	}

	fingerprint := requestFingerprint(principalARN, region)
	if cached := s.cacheGet(ctx, fingerprint); cached != "" {
		return &model.EncryptedAuthResponse{AuthData: cached}, nil
	}

	v, err, _ := s.flight.Do(fingerprint, func() (any, error) {
		return s.authenticateIAM(ctx, principalARN, region, fingerprint)
	})
	if err != nil {
		return nil, err
	}
	return &model.EncryptedAuthResponse{AuthData: v.(string)}, nil
}

func (s *AuthService) authenticateIAM(ctx context.Context, principalARN, region, fingerprint string) (string, error) {
	role, err := s.resolveRole(ctx, principalARN)
	if err != nil {
		return "", err
	}

	key, err := s.lifecycle.GetOrCreate(ctx, role.ID, role.ARN, region)
	if err != nil {
		return "", err
	}

	if outcome := s.lifecycle.ValidateAndRepair(ctx, key, role.ARN); outcome.Status == core.OutcomeFailed && s.logger != nil {
		// Validation is best-effort; a failure never blocks the login.
		s.logger.WarnContext(ctx, "key validation failed during login",
			"key_arn", key.KeyARN, "reason", outcome.Reason)
	}

	isAdmin := s.isAdminARN(principalARN)
	issued, err := s.tokens.Issue(IssueParams{
		Name:    principalARN,
		Type:    model.PrincipalTypeIAM,
		IsAdmin: isAdmin,
	})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	resp := buildAuthResponse(issued, map[string]string{
		"username":  principalARN,
		"auth_type": "iam",
		"is_admin":  strconv.FormatBool(isAdmin),
	}, false)

	payload, err := s.serializeBounded(resp)
	if err != nil {
		return "", err
	}

	ciphertext, err := s.lifecycle.EncryptWithRetry(ctx, key, role.ARN, payload)
	if err != nil {
		return "", err
	}

	authData := base64.StdEncoding.EncodeToString(ciphertext)
	s.cacheSet(ctx, fingerprint, authData)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "IAM login succeeded",
			"principal_arn", principalARN, "region", region, "is_admin", isAdmin)
	}
	return authData, nil
}

// AuthenticateUser performs a USER login through the identity connector.
// The response is returned in plaintext; possession of the credentials is the
// proof of identity here, no encryption round-trip is involved.
func (s *AuthService) AuthenticateUser(ctx context.Context, username, password string) (*model.AuthResponse, error) {
	groups, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	isAdmin := s.cfg.AdminGroup != "" && groupListContains(groups, s.cfg.AdminGroup, s.cfg.CaseInsensitiveGroups)
	issued, err := s.tokens.Issue(IssueParams{
		Name:    username,
		Type:    model.PrincipalTypeUser,
		Groups:  groups,
		IsAdmin: isAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "user login succeeded", "username", username, "is_admin", isAdmin)
	}

	resp := buildAuthResponse(issued, map[string]string{
		"username":  username,
		"auth_type": "user",
		"is_admin":  strconv.FormatBool(isAdmin),
		"groups":    strings.Join(groups, groupDelimiter),
	}, true)
	return &resp, nil
}

// Refresh revokes the principal's current token and issues a successor with
// an incremented refresh count. IAM principals re-authenticate instead; their
// login path is cheap by design.
func (s *AuthService) Refresh(ctx context.Context, principal *model.Principal) (*model.AuthResponse, error) {
	if principal == nil || principal.Type != model.PrincipalTypeUser {
		return nil, ErrRefreshNotAllowed
	}
	if principal.RefreshCount >= s.cfg.Token.MaxRefreshCount {
		return nil, ErrMaxRefreshExceeded
	}

	if err := s.tokens.Revoke(ctx, principal.TokenID, principal.ExpiresAt); err != nil {
		return nil, fmt.Errorf("revoke superseded token: %w", err)
	}

	issued, err := s.tokens.Issue(IssueParams{
		Name:         principal.Name,
		Type:         principal.Type,
		Groups:       principal.Groups,
		IsAdmin:      principal.IsAdmin,
		RefreshCount: principal.RefreshCount + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("issue refreshed token: %w", err)
	}

	resp := buildAuthResponse(issued, map[string]string{
		"username":  principal.Name,
		"auth_type": "user",
		"is_admin":  strconv.FormatBool(principal.IsAdmin),
		"groups":    strings.Join(principal.Groups, groupDelimiter),
	}, true)
	return &resp, nil
}

// Revoke blocks the principal's current token until the given expiry.
func (s *AuthService) Revoke(ctx context.Context, principal *model.Principal, expiresAt time.Time) error {
	if principal == nil || principal.TokenID == "" {
		return errors.New("principal with a token id is required")
	}
	if expiresAt.IsZero() {
		expiresAt = principal.ExpiresAt
	}
	return s.tokens.Revoke(ctx, principal.TokenID, expiresAt)
}

// ValidateToken parses and validates a presented credential. Anything that is
// not a structurally plausible token, or fails any check, is reported as
// absent.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*model.Principal, bool) {
	if !s.tokens.LooksLikeToken(token) {
		return nil, false
	}
	return s.tokens.ParseAndValidate(ctx, token)
}

// Authorize reports whether the principal holds any of the required roles on
// the container.
func (s *AuthService) Authorize(ctx context.Context, principal *model.Principal, containerID string, roles model.RoleSet) bool {
	return s.permissions.HasRole(ctx, principal, containerID, roles)
}

// RequireRole is Authorize for callers that want an error to propagate. The
// error is deliberately generic; which grant was missing stays internal.
func (s *AuthService) RequireRole(ctx context.Context, principal *model.Principal, containerID string, roles model.RoleSet) error {
	if !s.permissions.HasRole(ctx, principal, containerID, roles) {
		return ErrAccessDenied
	}
	return nil
}

// resolveRole maps a presented principal ARN onto a trusted role record:
// exact match first, then the derived base role (assumed-role sessions and
// legacy instance-profile callers), then the root-ARN trust fallback. A
// never-seen role whose account root ARN is itself registered is trusted and
// recorded on the spot; a principal with no path at all is rejected.
func (s *AuthService) resolveRole(ctx context.Context, principalARN string) (*model.IAMRole, error) {
	record, err := s.roles.GetByARN(ctx, principalARN)
	if err != nil {
		return nil, fmt.Errorf("look up role record: %w", err)
	}
	if record != nil {
		return record, nil
	}

	canonical := principalARN
	if derived, derr := arn.CanonicalRoleARN(principalARN); derr == nil && derived != principalARN {
		canonical = derived
		record, err = s.roles.GetByARN(ctx, canonical)
		if err != nil {
			return nil, fmt.Errorf("look up derived role record: %w", err)
		}
		if record != nil {
			return record, nil
		}
	}

	rootARN, err := arn.RootARN(principalARN)
	if err != nil {
		return nil, err
	}
	trusted, err := s.roles.GetByAccountRootARN(ctx, rootARN)
	if err != nil {
		return nil, fmt.Errorf("look up account trust: %w", err)
	}
	if trusted == nil {
		return nil, ErrPrincipalNotAssociated
	}

	record, err = s.roles.Create(ctx, model.CreateIAMRoleRequest{
		ARN:       canonical,
		CreatedBy: principalARN,
	})
	if err != nil {
		if errors.Is(err, data.ErrIAMRoleAlreadyExists) {
			// Lost a concurrent registration race; adopt the winner.
			winner, getErr := s.roles.GetByARN(ctx, canonical)
			if getErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("register role under trusted account: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "role registered under trusted account",
			"arn", canonical, "account_root", rootARN)
	}
	return record, nil
}

// isAdminARN checks the presented principal and its base role form against
// the admin allowlist.
func (s *AuthService) isAdminARN(principalARN string) bool {
	if _, ok := s.adminARNs[principalARN]; ok {
		return true
	}
	if derived, err := arn.CanonicalRoleARN(principalARN); err == nil {
		if _, ok := s.adminARNs[derived]; ok {
			return true
		}
	}
	return false
}

// serializeBounded serializes the response, swapping metadata and policies
// for truncation markers when the result would not fit under the cloud's
// encryptable ceiling.
func (s *AuthService) serializeBounded(resp model.AuthResponse) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("serialize auth response: %w", err)
	}
	if len(payload) <= s.limit {
		return payload, nil
	}

	if s.logger != nil {
		s.logger.Warn("auth response truncated before encryption",
			"size", len(payload), "limit", s.limit)
	}
	resp.Metadata = map[string]string{truncatedMarker: "true"}
	resp.Policies = []string{truncatedMarker}
	payload, err = json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("serialize truncated auth response: %w", err)
	}
	return payload, nil
}

func (s *AuthService) cacheGet(ctx context.Context, fingerprint string) string {
	if s.cache == nil || s.cfg.ResponseCacheTTL <= 0 {
		return ""
	}
	blob, err := s.cache.Get(ctx, fingerprint)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "response cache read failed", "error", err)
		}
		return ""
	}
	return string(blob)
}

func (s *AuthService) cacheSet(ctx context.Context, fingerprint, authData string) {
	if s.cache == nil || s.cfg.ResponseCacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, fingerprint, []byte(authData), s.cfg.ResponseCacheTTL); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "response cache write failed", "error", err)
	}
}

// requestFingerprint keys the response cache and the in-flight group by
// (principal, region) without storing the raw ARN in the cache key.
func requestFingerprint(principalARN, region string) string {
	sum := sha256.Sum256([]byte(principalARN + "\x00" + region))
	return hex.EncodeToString(sum[:])
}

// groupListContains applies the global case-sensitivity policy to a single
// membership check.
func groupListContains(groups []string, target string, caseInsensitive bool) bool {
	for _, g := range groups {
		if g == target {
			return true
		}
		if caseInsensitive && strings.EqualFold(g, target) {
			return true
		}
	}
	return false
}

// buildAuthResponse shapes the common login result. Lease duration comes from
// the issued token's own lifetime.
func buildAuthResponse(issued *IssuedToken, metadata map[string]string, renewable bool) model.AuthResponse {
	return model.AuthResponse{
		Token:        issued.Token,
		Policies:     []string{},
		Metadata:     metadata,
		LeaseSeconds: int(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds()),
		Renewable:    renewable,
		ExpiresAt:    issued.ExpiresAt,
	}
}
