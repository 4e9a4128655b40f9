// Package identity provides the human-identity connector. The engine treats
// it as opaque: credentials in, group memberships out. This implementation
// speaks the OIDC resource-owner password grant and extracts groups from the
// userinfo response with a configurable JMESPath expression.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
)

// ErrBadCredentials is returned when the identity provider rejects the
// username/password pair. Callers surface it as a generic authentication
// failure.
var ErrBadCredentials = errors.New("invalid username or password")

// ProviderConfig holds configuration for the OIDC identity connector.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	DiscoveryURL string
	Scope        string
	// GroupsExpression is a JMESPath expression applied to the userinfo
	// claims to extract the user's group names, e.g. "groups" or
	// "realm_access.roles".
	GroupsExpression string
	HTTPClient       *http.Client // Optional, defaults to a 30s-timeout client
	Logger           *slog.Logger // Optional
}

// Provider implements the core.UserAuthenticator port over OIDC.
type Provider struct {
	oauthConfig  *oauth2.Config
	oidcProvider *gooidc.Provider
	groupsExpr   string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewProvider creates the connector, performing a single discovery fetch.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	if cfg.GroupsExpression == "" {
		return nil, errors.New("groups expression is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	oidcCtx := gooidc.ClientContext(ctx, httpClient)
	oidcProvider, err := gooidc.NewProvider(oidcCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	scopes := strings.Fields(cfg.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "groups"}
	}

	var logger *slog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With("component", "identity_provider")
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       scopes,
		},
		oidcProvider: oidcProvider,
		groupsExpr:   cfg.GroupsExpression,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Authenticate verifies the credentials against the identity provider and
// returns the user's group memberships.
func (p *Provider) Authenticate(ctx context.Context, username, password string) ([]string, error) {
	if username == "" || password == "" {
		return nil, ErrBadCredentials
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauthConfig.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The provider answered; the credentials are the problem.
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("password grant: %w", err)
	}

	userInfo, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}

	var claims map[string]any
	if err := userInfo.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo claims: %w", err)
	}

	groups, err := p.extractGroups(claims)
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.DebugContext(ctx, "user authenticated", "username", username, "group_count", len(groups))
	}
	return groups, nil
}

// extractGroups applies the configured JMESPath expression to the claims.
// A missing claim yields no groups, not an error; not every user belongs to
// a group.
func (p *Provider) extractGroups(claims map[string]any) ([]string, error) {
	result, err := jmespath.Search(p.groupsExpr, claims)
	if err != nil {
		return nil, fmt.Errorf("evaluate groups expression: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	raw, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("groups expression %q did not yield a list", p.groupsExpr)
	}

	groups := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			groups = append(groups, s)
		}
	}
	return groups, nil
}
