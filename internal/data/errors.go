package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// IAM role repository sentinels.
	ErrIAMRoleNotFound      = errors.New("IAM role not found")
	ErrIAMRoleAlreadyExists = errors.New("IAM role already exists")

	// KMS key repository sentinels.
	ErrKMSKeyNotFound      = errors.New("KMS key record not found")
	ErrKMSKeyAlreadyExists = errors.New("KMS key record already exists for role and region")

	// Permission repository sentinels.
	ErrPermissionAlreadyExists = errors.New("permission grant already exists for grantee")
	ErrPermissionNotFound      = errors.New("permission grant not found")

	// Container repository sentinels.
	ErrContainerNotFound = errors.New("container not found")
)
