package core

import (
	"context"
	"time"

	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// This file contains repository and client port definitions (ports in
// hexagonal architecture). These interfaces define the contracts between the
// service layer and the data/cloud layers. Service implementations should
// depend on these interfaces, not concrete implementations.

// IAMRoleRepository defines the interface for internal IAM role records.
type IAMRoleRepository interface {
	Create(ctx context.Context, req model.CreateIAMRoleRequest) (*model.IAMRole, error)
	GetByID(ctx context.Context, id string) (*model.IAMRole, error)
	// GetByARN returns (nil, nil) when no record exists for the ARN.
	GetByARN(ctx context.Context, arn string) (*model.IAMRole, error)
	// GetByAccountRootARN returns the record registered under the account
	// root ARN itself, or (nil, nil). Sibling role records in the same
	// account never establish trust; only a stored root-ARN record does.
	GetByAccountRootARN(ctx context.Context, rootARN string) (*model.IAMRole, error)
	Delete(ctx context.Context, id string) error
	// ListOrphaned returns roles with no permission grant referencing them.
	ListOrphaned(ctx context.Context) ([]*model.IAMRole, error)
}

// KMSKeyRepository defines the interface for per-(role, region) key records.
type KMSKeyRepository interface {
	Create(ctx context.Context, req model.CreateKMSKeyRequest) (*model.KMSKey, error)
	// GetByRoleAndRegion returns (nil, nil) when no record exists.
	GetByRoleAndRegion(ctx context.Context, iamRoleID, region string) (*model.KMSKey, error)
	// ListByRole returns every key record owned by the role, any region.
	ListByRole(ctx context.Context, iamRoleID string) ([]*model.KMSKey, error)
	UpdateLastValidated(ctx context.Context, id string, validatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	// ListInactiveOrOrphaned returns keys not validated since the given
	// cutoff, or whose owning role no longer exists in the grant tables.
	ListInactiveOrOrphaned(ctx context.Context, before time.Time) ([]*model.KMSKey, error)
}

// BlocklistRepository defines the interface for persisted token revocations.
type BlocklistRepository interface {
	Insert(ctx context.Context, entry model.BlocklistEntry) error
	// DeleteExpired removes entries whose expiry has passed and returns the
	// number of rows deleted. Implementations run under relaxed isolation so
	// cleanup never blocks authentication traffic.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	ListAll(ctx context.Context) ([]model.BlocklistEntry, error)
}

// PermissionRepository defines the interface for container access grants.
type PermissionRepository interface {
	Create(ctx context.Context, p *model.Permission) (*model.Permission, error)
	// ListByContainer returns all grants attached to the container.
	ListByContainer(ctx context.Context, containerID string) ([]*model.Permission, error)
	// ListGroupNamesByContainer returns group grantee names filtered to the
	// given roles.
	ListGroupNamesByContainer(ctx context.Context, containerID string, roles model.RoleSet) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// ContainerRepository defines the interface for secret container metadata.
type ContainerRepository interface {
	GetByID(ctx context.Context, id string) (*model.Container, error)
}

// CreateKeyParams groups parameters for KMSClient.CreateKey.
type CreateKeyParams struct {
	Policy      string
	Description string
	Tags        map[string]string
}

// KeyState mirrors the cloud-side key lifecycle states the engine cares
// about.
type KeyState string

const (
	KeyStateEnabled         KeyState = "Enabled"
	KeyStateDisabled        KeyState = "Disabled"
	KeyStatePendingDeletion KeyState = "PendingDeletion"
	KeyStateUnknown         KeyState = "Unknown"
)

// KMSClient is the narrow surface of the cloud KMS consumed by the key
// lifecycle manager. Implementations wrap the SDK client with bounded retry
// and a circuit breaker.
type KMSClient interface {
	// CreateKey provisions a new key and returns its cloud ARN.
	CreateKey(ctx context.Context, params CreateKeyParams) (string, error)
	CreateAlias(ctx context.Context, aliasName, keyARN string) error
	GetKeyPolicy(ctx context.Context, keyARN string) (string, error)
	PutKeyPolicy(ctx context.Context, keyARN, policy string) error
	Encrypt(ctx context.Context, keyARN string, plaintext []byte) ([]byte, error)
	DescribeKeyState(ctx context.Context, keyARN string) (KeyState, error)
	ScheduleKeyDeletion(ctx context.Context, keyARN string, pendingDays int32) error
}

// KMSClientFactory hands out region-scoped KMS clients.
type KMSClientFactory interface {
	ForRegion(ctx context.Context, region string) (KMSClient, error)
}

// UserAuthenticator is the opaque human-identity connector. The federation
// protocol behind it is not this engine's concern.
type UserAuthenticator interface {
	// Authenticate verifies the credentials and returns the user's groups.
	Authenticate(ctx context.Context, username, password string) ([]string, error)
}

// ResponseCache memoizes encrypted IAM authentication responses for a
// bounded time, keyed by request fingerprint.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
