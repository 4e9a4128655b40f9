package config

import (
	"time"
)

// SigningKeyConfig is one entry in the token signing key ring, encoded in
// the environment as "<key id>:<base64 secret>".
type SigningKeyConfig struct {
	ID     string
	Secret string
}

// TokenConfig controls bearer token issuance and validation.
type TokenConfig struct {
	// Keys is the signing key ring, semicolon-delimited "id:base64secret"
	// pairs. Validation accepts every listed key; issuance uses ActiveKeyID.
	Keys        []string `env:"KEYS,required"   envSeparator:";"`
	ActiveKeyID string   `env:"ACTIVE_KEY_ID,required"`

	TTL time.Duration `env:"TTL" envDefault:"1h"`

	// MaxBytes bounds the encoded token. The token rides in an HTTP header
	// with a hard upstream length limit.
	MaxBytes int `env:"MAX_BYTES" envDefault:"6000"`

	// MaxRefreshCount is how many times a user token can be refreshed
	// before a full re-authentication is required.
	MaxRefreshCount int `env:"MAX_REFRESH_COUNT" envDefault:"24"`

	// BlocklistRefreshInterval is how often each process reloads the
	// revocation set from the store. It is also the cross-process
	// revocation staleness bound.
	BlocklistRefreshInterval time.Duration `env:"BLOCKLIST_REFRESH_INTERVAL" envDefault:"1m"`
}

// IdentityConfig configures the OIDC human-identity connector.
type IdentityConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	Scope        string `env:"SCOPE"             envDefault:"openid profile groups"`
	// GroupsExpression is the JMESPath expression applied to userinfo
	// claims to extract group names.
	GroupsExpression string `env:"GROUPS_EXPRESSION" envDefault:"groups"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Token issuance configuration.
	Token TokenConfig `envPrefix:"TOKEN_"`

	// Identity connector configuration (USER logins).
	Identity IdentityConfig `envPrefix:"IDENTITY_"`

	// AdminGroup grants the admin flag to users who belong to it.
	AdminGroup string `env:"ADMIN_GROUP"`

	// AdminRoleARNs is the allowlist of IAM principals that receive the
	// admin flag. Assumed-role session ARNs are normalized to their base
	// role before matching.
	AdminRoleARNs []string `env:"ADMIN_ROLE_ARNS" envSeparator:";"`

	// CaseInsensitiveGroups lowers both sides of every group comparison.
	// Global policy, applied uniformly to permission grants and the admin
	// group check.
	CaseInsensitiveGroups bool `env:"CASE_INSENSITIVE_GROUPS" envDefault:"false"`

	// ResponseCacheTTL bounds the memoization of encrypted IAM login
	// responses. Zero disables the cache.
	ResponseCacheTTL time.Duration `env:"RESPONSE_CACHE_TTL" envDefault:"10s"`
}

// Sanitize applies guardrails to authentication configuration.
func (c *AuthConfig) Sanitize() {
	if c.Token.TTL <= 0 {
		c.Token.TTL = time.Hour
	}
	if c.Token.MaxBytes <= 0 {
		c.Token.MaxBytes = 6000
	}
	if c.Token.MaxRefreshCount <= 0 {
		c.Token.MaxRefreshCount = 24
	}
	if c.Token.BlocklistRefreshInterval <= 0 {
		c.Token.BlocklistRefreshInterval = time.Minute
	}
	if c.ResponseCacheTTL < 0 {
		c.ResponseCacheTTL = 0
	}
}
