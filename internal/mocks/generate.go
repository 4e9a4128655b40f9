// Package mocks provides mock implementations for testing the trust engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the repository and client ports defined in internal/core. The mocks are
// generated with go:generate directives and are not checked in.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	repo := mocks.NewMockIAMRoleRepository(ctrl)
//	repo.EXPECT().GetByARN(gomock.Any(), gomock.Any()).Return(role, nil)
package mocks

// Mock for the IAM role registry:
// Create, GetByID, GetByARN, GetByAccountRootARN, Delete, ListOrphaned
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=iam_role_repository_mock.go github.com/vaultgate/vaultgate/internal/core IAMRoleRepository

// Mock for the KMS key record store:
// Create, GetByRoleAndRegion, ListByRole, UpdateLastValidated, Delete, ListInactiveOrOrphaned
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=kms_key_repository_mock.go github.com/vaultgate/vaultgate/internal/core KMSKeyRepository

// Mock for the token revocation store:
// Insert, DeleteExpired, ListAll
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=blocklist_repository_mock.go github.com/vaultgate/vaultgate/internal/core BlocklistRepository

// Mock for the permission grant store:
// Create, ListByContainer, ListGroupNamesByContainer, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=permission_repository_mock.go github.com/vaultgate/vaultgate/internal/core PermissionRepository

// Mock for the cloud KMS client:
// CreateKey, CreateAlias, GetKeyPolicy, PutKeyPolicy, Encrypt, ScheduleKeyDeletion
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=kms_client_mock.go github.com/vaultgate/vaultgate/internal/core KMSClient

// Mock for the identity-provider connector:
// Authenticate
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=user_authenticator_mock.go github.com/vaultgate/vaultgate/internal/core UserAuthenticator
