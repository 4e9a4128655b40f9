package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// groupDelimiter joins group names into the single token claim.
const groupDelimiter = ","

// SigningKey is one entry in the token signing key ring. Validation accepts
// any key in the ring; issuance always uses the active one, which lets keys
// rotate without invalidating outstanding tokens.
type SigningKey struct {
	ID     string
	Secret []byte
}

// TokenServiceOptions groups dependencies for TokenService.
type TokenServiceOptions struct {
	Keys        []SigningKey    // Required: signing key ring
	ActiveKeyID string          // Required: key id used for new tokens
	Issuer      string          // Required: environment-scoped issuer string
	TTL         time.Duration   // Required: token lifetime
	MaxBytes    int             // Required: encoded-size ceiling (token rides in an HTTP header)
	Blocklist   *TokenBlocklist // Required: process-scoped revocation cache
	Repo        core.BlocklistRepository
	Logger      *slog.Logger     // Optional: structured logger
	Now         func() time.Time // Optional: clock override for tests
}

// TokenService issues, validates, and revokes signed bearer tokens.
type TokenService struct {
	keys      map[string][]byte
	activeKey SigningKey
	issuer    string
	ttl       time.Duration
	maxBytes  int
	blocklist *TokenBlocklist
	repo      core.BlocklistRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewTokenService constructs a new TokenService.
func NewTokenService(opts TokenServiceOptions) (*TokenService, error) {
	if len(opts.Keys) == 0 {
		return nil, errors.New("at least one signing key is required")
	}
	if opts.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	if opts.MaxBytes <= 0 {
		return nil, errors.New("token size ceiling must be positive")
	}
	if opts.Blocklist == nil {
		return nil, errors.New("TokenBlocklist is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("BlocklistRepository is required")
	}

	keys := make(map[string][]byte, len(opts.Keys))
	var active *SigningKey
	for i, k := range opts.Keys {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, fmt.Errorf("signing key %d is missing id or secret", i)
		}
		keys[k.ID] = k.Secret
		if k.ID == opts.ActiveKeyID {
			active = &opts.Keys[i]
		}
	}
	if active == nil {
		return nil, fmt.Errorf("active key id %q not present in key ring", opts.ActiveKeyID)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "token_service")
		logger.Debug("TokenService initialized", "keys", len(keys), "ttl", opts.TTL)
	}

	return &TokenService{
		keys:      keys,
		activeKey: *active,
		issuer:    opts.Issuer,
		ttl:       opts.TTL,
		maxBytes:  opts.MaxBytes,
		blocklist: opts.Blocklist,
		repo:      opts.Repo,
		logger:    logger,
		now:       now,
	}, nil
}

// MustNewTokenService constructs a new TokenService and panics on error.
// Use this when you want fail-fast behavior during application startup.
func MustNewTokenService(opts TokenServiceOptions) *TokenService {
	svc, err := NewTokenService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// tokenClaims is the wire shape of the token payload. Custom claim names
// are short: the whole token has to fit under an HTTP header length limit.
type tokenClaims struct {
	PrincipalType string `json:"pty"`
	Groups        string `json:"grp,omitempty"`
	IsAdmin       bool   `json:"adm,omitempty"`
	RefreshCount  int    `json:"rfc,omitempty"`
	jwt.RegisteredClaims
}

// IssueParams carries the metadata encoded into a new token.
type IssueParams struct {
	Name         string
	Type         model.PrincipalType
	Groups       []string
	IsAdmin      bool
	RefreshCount int
}

// IssuedToken is a freshly signed token plus the identifying fields a
// caller needs without re-parsing it.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue signs a new token for the given principal metadata. A token is
// immutable once signed: refresh issues a new one rather than mutating.
// Fails with ErrTokenTooLarge when the encoded form exceeds the ceiling.
func (s *TokenService) Issue(params IssueParams) (*IssuedToken, error) {
	if params.Name == "" {
		return nil, errors.New("principal name is required")
	}
	if !params.Type.Valid() {
		return nil, fmt.Errorf("unknown principal type %q", params.Type)
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)
	id := uuid.NewString()

	claims := tokenClaims{
		PrincipalType: string(params.Type),
		Groups:        strings.Join(params.Groups, groupDelimiter),
		IsAdmin:       params.IsAdmin,
		RefreshCount:  params.RefreshCount,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   params.Name,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = s.activeKey.ID

	signed, err := tok.SignedString(s.activeKey.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	if len(signed) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes against ceiling %d", ErrTokenTooLarge, len(signed), s.maxBytes)
	}

	return &IssuedToken{
		Token:     signed,
		ID:        id,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ParseAndValidate verifies the token's signature, issuer, and expiry, then
// checks the revocation cache. Any failure collapses to (nil, false);
// callers treat a bad token identically to no token, and no parse detail
// ever reaches them.
func (s *TokenService) ParseAndValidate(ctx context.Context, token string) (*model.Principal, bool) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.resolveKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "token rejected", "error", err)
		}
		return nil, false
	}

	pType := model.PrincipalType(claims.PrincipalType)
	if !pType.Valid() || claims.ID == "" || claims.Subject == "" {
		return nil, false
	}

	if s.blocklist.Contains(claims.ID) {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "token revoked", "token_id", claims.ID)
		}
		return nil, false
	}

	var groups []string
	if claims.Groups != "" {
		groups = strings.Split(claims.Groups, groupDelimiter)
	}

	principal := &model.Principal{
		Name:         claims.Subject,
		Type:         pType,
		IsAdmin:      claims.IsAdmin,
		Groups:       groups,
		TokenID:      claims.ID,
		RefreshCount: claims.RefreshCount,
	}
	if claims.IssuedAt != nil {
		principal.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, true
}

// resolveKey maps the token's embedded key id onto the ring. Tokens signed
// by a key the ring no longer trusts fail validation.
func (s *TokenService) resolveKey(tok *jwt.Token) (any, error) {
	kid, _ := tok.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no key id")
	}
	secret, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key id %q", kid)
	}
	return secret, nil
}

// Revoke blocks the token id immediately in this process and persists the
// entry so other processes converge after their refresh cycle.
func (s *TokenService) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	return s.blocklist.Revoke(ctx, tokenID, expiresAt)
}

// PurgeExpired deletes persisted revocations whose expiry has passed and
// returns the number removed.
func (s *TokenService) PurgeExpired(ctx context.Context) (int, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if s.logger != nil && deleted > 0 {
		s.logger.InfoContext(ctx, "purged expired blocklist entries", "deleted", deleted)
	}
	return deleted, nil
}

// LooksLikeToken is a cheap structural check used to distinguish this token
// format from other credential formats before attempting a full parse.
func (s *TokenService) LooksLikeToken(candidate string) bool {
	return strings.Count(candidate, ".") == 2
}
