package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaultgate/vaultgate/config"
	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/data"
	"github.com/vaultgate/vaultgate/internal/service"
)

// shutdownWaitTimeout bounds how long we wait for a background service to
// stop after cancellation.
const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Blocklist   *service.TokenBlocklist
	Tokens      *service.TokenService
	Permissions *service.PermissionService
	Lifecycle   *service.KeyLifecycleService
	Auth        *service.AuthService
	Janitor     *service.KeyJanitor

	// Repositories exposed for the admin CLI.
	Roles      core.IAMRoleRepository
	Keys       core.KMSKeyRepository
	Blocklists core.BlocklistRepository
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // may be nil
	Logger      *slog.Logger
}

// BuildServices wires repositories, adapters, and services. The blocklist
// cache is hydrated before returning so token validation never starts from
// an empty revocation set.
func BuildServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roleRepo := data.NewIAMRoleRepo(deps.DB)
	keyRepo := data.NewKMSKeyRepo(deps.DB)
	blocklistRepo := data.NewBlocklistRepo(deps.DB)
	permissionRepo := data.NewPermissionRepo(deps.DB)
	containerRepo := data.NewContainerRepo(deps.DB)

	blocklist := service.NewTokenBlocklist(blocklistRepo)
	if err := blocklist.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("hydrate token blocklist: %w", err)
	}

	signingKeys, err := ParseSigningKeys(cfg.Auth.Token.Keys)
	if err != nil {
		return nil, fmt.Errorf("parse signing keys: %w", err)
	}

	tokens, err := service.NewTokenService(service.TokenServiceOptions{
		Keys:        signingKeys,
		ActiveKeyID: cfg.Auth.Token.ActiveKeyID,
		Issuer:      cfg.Environment,
		TTL:         cfg.Auth.Token.TTL,
		MaxBytes:    cfg.Auth.Token.MaxBytes,
		Blocklist:   blocklist,
		Repo:        blocklistRepo,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build token service: %w", err)
	}

	permissions, err := service.NewPermissionService(service.PermissionServiceOptions{
		Permissions:           permissionRepo,
		Containers:            containerRepo,
		IAMRoles:              roleRepo,
		CaseInsensitiveGroups: cfg.Auth.CaseInsensitiveGroups,
		Logger:                logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build permission service: %w", err)
	}

	lifecycle, err := service.NewKeyLifecycleService(service.KeyLifecycleServiceOptions{
		Keys:        keyRepo,
		Clients:     BuildKMSFactory(logger),
		KMS:         cfg.KMS,
		Environment: cfg.Environment,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build key lifecycle service: %w", err)
	}

	users, err := BuildUserAuthenticator(ctx, cfg.Auth.Identity, logger)
	if err != nil {
		return nil, fmt.Errorf("build identity connector: %w", err)
	}

	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Tokens:         tokens,
		Permissions:    permissions,
		Lifecycle:      lifecycle,
		Roles:          roleRepo,
		Users:          users,
		Cache:          BuildResponseCache(deps.RedisClient),
		Auth:           cfg.Auth,
		PlaintextLimit: cfg.KMS.PlaintextLimit,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build auth service: %w", err)
	}

	janitor, err := service.NewKeyJanitor(service.KeyJanitorOptions{
		Keys:            keyRepo,
		Roles:           roleRepo,
		Lifecycle:       lifecycle,
		Clients:         BuildKMSFactory(logger),
		Tokens:          tokens,
		Janitor:         cfg.Janitor,
		OperatorRoleARN: cfg.KMS.OperatorRoleARN,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build key janitor: %w", err)
	}

	return &ServiceContainer{
		Blocklist:   blocklist,
		Tokens:      tokens,
		Permissions: permissions,
		Lifecycle:   lifecycle,
		Auth:        auth,
		Janitor:     janitor,
		Roles:       roleRepo,
		Keys:        keyRepo,
		Blocklists:  blocklistRepo,
	}, nil
}

// ServiceOrchestrationConfig groups dependencies for running services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// backgroundServiceHandle tracks a started background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. This function blocks until a shutdown signal is received.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backgrounds []backgroundServiceHandle

	if enabled[config.ServiceModeJanitor] {
		done := make(chan struct{})
		go func() {
			defer close(done)
			cfg.Services.Janitor.Run(ctx)
		}()
		backgrounds = append(backgrounds, backgroundServiceHandle{name: "janitor", done: done})
		logger.Info("janitor service started")
	}

	if enabled[config.ServiceModeBlocklistRefresher] {
		done := make(chan struct{})
		interval := cfg.Config.Auth.Token.BlocklistRefreshInterval
		go func() {
			defer close(done)
			cfg.Services.Blocklist.RunRefresher(ctx, interval, logger)
		}()
		backgrounds = append(backgrounds, backgroundServiceHandle{name: "blocklist-refresher", done: done})
		logger.Info("blocklist refresher started", "interval", interval)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	<-quit
	logger.Info("shutting down services...")
	cancel()

	for _, svc := range backgrounds {
		waitForService(svc.done, svc.name, logger)
	}
	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
