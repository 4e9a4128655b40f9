package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultgate/vaultgate/config"
	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/data"
	"github.com/vaultgate/vaultgate/internal/domain/arn"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// KeyLifecycleServiceOptions groups dependencies for KeyLifecycleService.
type KeyLifecycleServiceOptions struct {
	Keys        core.KMSKeyRepository // Required: local key records
	Clients     core.KMSClientFactory // Required: region-scoped cloud clients
	KMS         config.KMSConfig      // Required: operator role, validation gate, deletion window
	Environment string                // Required: stamped into aliases and tags
	Logger      *slog.Logger          // Optional: structured logger
	Now         func() time.Time      // Optional: clock override for tests
}

// KeyLifecycleService provisions, validates, repairs, and retires the cloud
// KMS keys backing encrypted authentication responses. One key exists per
// (IAM role, region) pair; the service treats the cloud as the source of
// truth and the local record as a cache of it.
type KeyLifecycleService struct {
	keys    core.KMSKeyRepository
	clients core.KMSClientFactory
	cfg     config.KMSConfig
	env     string
	logger  *slog.Logger
	now     func() time.Time
}

// NewKeyLifecycleService constructs a new KeyLifecycleService.
func NewKeyLifecycleService(opts KeyLifecycleServiceOptions) (*KeyLifecycleService, error) {
	if opts.Keys == nil {
		return nil, errors.New("KMSKeyRepository is required")
	}
	if opts.Clients == nil {
		return nil, errors.New("KMSClientFactory is required")
	}
	if opts.KMS.OperatorRoleARN == "" {
		return nil, errors.New("operator role ARN is required")
	}
	if opts.Environment == "" {
		return nil, errors.New("environment is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "key_lifecycle_service")
		logger.Debug("KeyLifecycleService initialized",
			"validation_interval", opts.KMS.ValidationInterval,
			"pending_deletion_days", opts.KMS.PendingDeletionDays)
	}

	return &KeyLifecycleService{
		keys:    opts.Keys,
		clients: opts.Clients,
		cfg:     opts.KMS,
		env:     opts.Environment,
		logger:  logger,
		now:     now,
	}, nil
}

// MustNewKeyLifecycleService constructs a new KeyLifecycleService and panics
// on error. Use this when you want fail-fast behavior during application
// startup.
func MustNewKeyLifecycleService(opts KeyLifecycleServiceOptions) *KeyLifecycleService {
	svc, err := NewKeyLifecycleService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return svc
}

// GetOrCreate returns the key record for the (role, region) pair, provisioning
// a fresh cloud key when none exists yet. Provisioning failures caused by the
// cloud rejecting the principal ARN surface as ErrAuthenticationRejected.
func (s *KeyLifecycleService) GetOrCreate(ctx context.Context, iamRoleID, principalARN, region string) (*model.KMSKey, error) {
	existing, err := s.keys.GetByRoleAndRegion(ctx, iamRoleID, region)
	if err != nil {
		return nil, fmt.Errorf("look up key record: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	return s.provision(ctx, iamRoleID, principalARN, region)
}

// ValidateAndRepair checks that the cloud-side key still exists and that its
// policy retains the expected consumer statement, repairing the policy when an
// external account has recreated its role. Validation is gated by the
// configured interval so hot principals do not hammer the rate-limited policy
// API. The outcome is advisory: callers log it but never fail authentication
// over it.
func (s *KeyLifecycleService) ValidateAndRepair(ctx context.Context, key *model.KMSKey, principalARN string) core.MaintenanceOutcome {
	now := s.now().UTC()
	if now.Sub(key.LastValidatedAt) < s.cfg.ValidationInterval {
		return core.Skipped("validation interval not elapsed")
	}

	client, err := s.clients.ForRegion(ctx, key.Region)
	if err != nil {
		return core.Failed(fmt.Errorf("get client for region %s: %w", key.Region, err))
	}

	policyJSON, err := client.GetKeyPolicy(ctx, key.KeyARN)
	switch {
	case errors.Is(err, core.ErrKeyNotFound):
		// The cloud key is gone; drop the dangling record so the next
		// authentication provisions a replacement.
		if delErr := s.keys.Delete(ctx, key.ID); delErr != nil {
			return core.Failed(fmt.Errorf("remove dangling key record: %w", delErr))
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "cloud key missing, local record removed",
				"key_arn", key.KeyARN, "region", key.Region)
		}
		// The repair worked; nothing propagates up this path.
		return core.Skipped("cloud key no longer exists; record removed")
	case err != nil:
		return core.Failed(fmt.Errorf("read key policy: %w", err))
	}

	if !validateKeyPolicy(policyJSON, principalARN) {
		rootARN, rootErr := arn.RootARN(principalARN)
		if rootErr != nil {
			return core.Failed(rootErr)
		}
		regenerated, buildErr := buildKeyPolicy(rootARN, s.cfg.OperatorRoleARN, principalARN)
		if buildErr != nil {
			return core.Failed(buildErr)
		}
		if putErr := client.PutKeyPolicy(ctx, key.KeyARN, regenerated); putErr != nil {
			return core.Failed(fmt.Errorf("regenerate key policy: %w", putErr))
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "key policy regenerated",
				"key_arn", key.KeyARN, "principal_arn", principalARN)
		}
	}

	if err := s.keys.UpdateLastValidated(ctx, key.ID, now); err != nil {
		return core.Failed(fmt.Errorf("record validation time: %w", err))
	}
	key.LastValidatedAt = now
	return core.OK()
}

// EncryptWithRetry encrypts the plaintext under the record's cloud key. When
// the cloud reports the key missing or unusable, the stale record is dropped,
// a replacement key is provisioned, and the encryption is retried exactly
// once. A second failure propagates.
func (s *KeyLifecycleService) EncryptWithRetry(ctx context.Context, key *model.KMSKey, principalARN string, plaintext []byte) ([]byte, error) {
	client, err := s.clients.ForRegion(ctx, key.Region)
	if err != nil {
		return nil, fmt.Errorf("get client for region %s: %w", key.Region, err)
	}

	ciphertext, err := client.Encrypt(ctx, key.KeyARN, plaintext)
	if err == nil {
		return ciphertext, nil
	}
	if !errors.Is(err, core.ErrKeyUnusable) && !errors.Is(err, core.ErrKeyNotFound) {
		return nil, fmt.Errorf("encrypt auth response: %w", err)
	}

	if s.logger != nil {
		s.logger.WarnContext(ctx, "key unusable, provisioning replacement",
			"key_arn", key.KeyARN, "region", key.Region, "error", err)
	}
	if delErr := s.keys.Delete(ctx, key.ID); delErr != nil && !errors.Is(delErr, data.ErrKMSKeyNotFound) {
		return nil, fmt.Errorf("remove unusable key record: %w", delErr)
	}

	replacement, err := s.provision(ctx, key.IAMRoleID, principalARN, key.Region)
	if err != nil {
		return nil, fmt.Errorf("provision replacement key: %w", err)
	}

	ciphertext, err = client.Encrypt(ctx, replacement.KeyARN, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt with replacement key: %w", err)
	}
	*key = *replacement
	return ciphertext, nil
}

// ScheduleDeletion schedules the cloud key for deletion after the configured
// pending window and removes the local record. A key already gone or already
// pending deletion counts as success.
func (s *KeyLifecycleService) ScheduleDeletion(ctx context.Context, key *model.KMSKey) error {
	client, err := s.clients.ForRegion(ctx, key.Region)
	if err != nil {
		return fmt.Errorf("get client for region %s: %w", key.Region, err)
	}

	err = client.ScheduleKeyDeletion(ctx, key.KeyARN, int32(s.cfg.PendingDeletionDays))
	if err != nil && !errors.Is(err, core.ErrKeyNotFound) {
		return fmt.Errorf("schedule key deletion: %w", err)
	}

	if err := s.keys.Delete(ctx, key.ID); err != nil && !errors.Is(err, data.ErrKMSKeyNotFound) {
		return fmt.Errorf("remove key record: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "key scheduled for deletion",
			"key_arn", key.KeyARN, "region", key.Region, "pending_days", s.cfg.PendingDeletionDays)
	}
	return nil
}

// provision creates a fresh cloud key for the principal, persists the record,
// and attaches a human-readable alias on a best-effort basis. A concurrent
// provision for the same (role, region) pair loses the unique-index race and
// adopts the winner's record.
func (s *KeyLifecycleService) provision(ctx context.Context, iamRoleID, principalARN, region string) (*model.KMSKey, error) {
	client, err := s.clients.ForRegion(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("get client for region %s: %w", region, err)
	}

	rootARN, err := arn.RootARN(principalARN)
	if err != nil {
		return nil, err
	}
	policy, err := buildKeyPolicy(rootARN, s.cfg.OperatorRoleARN, principalARN)
	if err != nil {
		return nil, err
	}

	keyARN, err := client.CreateKey(ctx, core.CreateKeyParams{
		Policy:      policy,
		Description: fmt.Sprintf("vaultgate auth response key for %s", principalARN),
		Tags: map[string]string{
			"created_by":  "vaultgate",
			"environment": s.env,
		},
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidARN) {
			// The cloud does not recognize the principal; the external role
			// was deleted or never existed.
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationRejected, err)
		}
		return nil, fmt.Errorf("create cloud key: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "cloud key provisioned",
			"key_arn", keyARN, "region", region, "principal_arn", principalARN)
	}

	record, err := s.keys.Create(ctx, model.CreateKMSKeyRequest{
		IAMRoleID: iamRoleID,
		KeyARN:    keyARN,
		Region:    region,
		CreatedBy: principalARN,
	})
	if err != nil {
		if errors.Is(err, data.ErrKMSKeyAlreadyExists) {
			winner, getErr := s.keys.GetByRoleAndRegion(ctx, iamRoleID, region)
			if getErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("persist key record: %w", err)
	}

	if alias, aliasErr := s.aliasName(principalARN); aliasErr == nil {
		if err := client.CreateAlias(ctx, alias, keyARN); err != nil && s.logger != nil {
			// Aliases are cosmetic; a failure never blocks authentication.
			s.logger.WarnContext(ctx, "alias creation failed",
				"alias", alias, "key_arn", keyARN, "error", err)
		}
	}

	return record, nil
}

// aliasName builds the console-friendly alias for a provisioned key.
func (s *KeyLifecycleService) aliasName(principalARN string) (string, error) {
	account, err := arn.AccountID(principalARN)
	if err != nil {
		return "", err
	}
	roleName, err := arn.RoleName(principalARN)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("alias/vaultgate/%s/%s/%s", s.env, account, roleName), nil
}
