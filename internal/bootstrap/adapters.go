package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/vaultgate/vaultgate/config"
	"github.com/vaultgate/vaultgate/internal/adapters/identity"
	vgkms "github.com/vaultgate/vaultgate/internal/adapters/kms"
	vgredis "github.com/vaultgate/vaultgate/internal/adapters/redis"
	"github.com/vaultgate/vaultgate/internal/core"
)

// BuildKMSFactory constructs the region-scoped cloud KMS client factory.
func BuildKMSFactory(logger *slog.Logger) *vgkms.Factory {
	return vgkms.NewFactory(logger)
}

// BuildUserAuthenticator constructs the OIDC identity connector when one is
// configured, and a connector that rejects every login otherwise. USER
// logins are an optional deployment feature; IAM logins work without one.
//
//nolint:ireturn // callers only need the port
func BuildUserAuthenticator(ctx context.Context, cfg config.IdentityConfig, logger *slog.Logger) (core.UserAuthenticator, error) {
	if cfg.DiscoveryURL == "" {
		if logger != nil {
			logger.Info("identity connector not configured, USER logins disabled")
		}
		return disabledUserAuthenticator{}, nil
	}

	return identity.NewProvider(ctx, identity.ProviderConfig{
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		DiscoveryURL:     cfg.DiscoveryURL,
		Scope:            cfg.Scope,
		GroupsExpression: cfg.GroupsExpression,
		Logger:           logger,
	})
}

// BuildResponseCache constructs the redis-backed auth response cache, or nil
// when Redis is not connected.
func BuildResponseCache(client redis.UniversalClient) core.ResponseCache {
	if client == nil {
		return nil
	}
	return vgredis.NewResponseCache(client)
}

// disabledUserAuthenticator rejects every USER login.
type disabledUserAuthenticator struct{}

func (disabledUserAuthenticator) Authenticate(context.Context, string, string) ([]string, error) {
	return nil, errors.New("no identity connector configured")
}
