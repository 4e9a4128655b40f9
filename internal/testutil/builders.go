package testutil

import (
	"github.com/google/uuid"

	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// IAMRoleBuilder provides a fluent interface for building IAMRole fixtures.
type IAMRoleBuilder struct {
	role *model.IAMRole
}

// NewIAMRole creates an IAMRoleBuilder with sensible defaults.
func NewIAMRole() *IAMRoleBuilder {
	now := TestTime()
	return &IAMRoleBuilder{
		role: &model.IAMRole{
			ID:        uuid.NewString(),
			ARN:       "arn:aws:iam::111111111111:role/test-role",
			CreatedBy: "system",
			UpdatedBy: "system",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// WithARN sets the role ARN.
func (b *IAMRoleBuilder) WithARN(arn string) *IAMRoleBuilder {
	b.role.ARN = arn
	return b
}

// WithCreatedBy sets the principal the role was first seen from.
func (b *IAMRoleBuilder) WithCreatedBy(createdBy string) *IAMRoleBuilder {
	b.role.CreatedBy = createdBy
	return b
}

// Build returns the constructed IAMRole.
func (b *IAMRoleBuilder) Build() *model.IAMRole {
	role := *b.role
	return &role
}

// KMSKeyBuilder provides a fluent interface for building KMSKey fixtures.
type KMSKeyBuilder struct {
	key *model.KMSKey
}

// NewKMSKey creates a KMSKeyBuilder tied to the given role ID.
func NewKMSKey(iamRoleID string) *KMSKeyBuilder {
	now := TestTime()
	return &KMSKeyBuilder{
		key: &model.KMSKey{
			ID:              uuid.NewString(),
			IAMRoleID:       iamRoleID,
			KeyARN:          "arn:aws:kms:us-east-1:111111111111:key/" + uuid.NewString(),
			Region:          "us-east-1",
			CreatedAt:       now,
			UpdatedAt:       now,
			LastValidatedAt: now,
		},
	}
}

// WithKeyARN sets the cloud-side key identifier.
func (b *KMSKeyBuilder) WithKeyARN(arn string) *KMSKeyBuilder {
	b.key.KeyARN = arn
	return b
}

// WithRegion sets the key region.
func (b *KMSKeyBuilder) WithRegion(region string) *KMSKeyBuilder {
	b.key.Region = region
	return b
}

// Build returns the constructed KMSKey.
func (b *KMSKeyBuilder) Build() *model.KMSKey {
	key := *b.key
	return &key
}

// PermissionBuilder provides a fluent interface for building Permission fixtures.
type PermissionBuilder struct {
	perm *model.Permission
}

// NewPermission creates a PermissionBuilder for the given container with a
// read grant and no grantee; set exactly one of group or IAM role before Build.
func NewPermission(containerID string) *PermissionBuilder {
	now := TestTime()
	return &PermissionBuilder{
		perm: &model.Permission{
			ID:          uuid.NewString(),
			ContainerID: containerID,
			RoleName:    model.RoleRead,
			CreatedBy:   "system",
			UpdatedBy:   "system",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// ForGroup makes the grant apply to an identity-provider group.
func (b *PermissionBuilder) ForGroup(group string) *PermissionBuilder {
	b.perm.GroupName = &group
	b.perm.IAMRoleID = nil
	return b
}

// ForIAMRole makes the grant apply to a registered IAM role.
func (b *PermissionBuilder) ForIAMRole(iamRoleID string) *PermissionBuilder {
	b.perm.IAMRoleID = &iamRoleID
	b.perm.GroupName = nil
	return b
}

// WithRole sets the granted role.
func (b *PermissionBuilder) WithRole(role model.Role) *PermissionBuilder {
	b.perm.RoleName = role
	return b
}

// Build returns the constructed Permission.
func (b *PermissionBuilder) Build() *model.Permission {
	perm := *b.perm
	return &perm
}

// ContainerBuilder provides a fluent interface for building Container fixtures.
type ContainerBuilder struct {
	container *model.Container
}

// NewContainer creates a ContainerBuilder with sensible defaults.
func NewContainer(name string) *ContainerBuilder {
	now := TestTime()
	return &ContainerBuilder{
		container: &model.Container{
			ID:        uuid.NewString(),
			Name:      name,
			Owner:     "platform-team",
			CreatedBy: "system",
			UpdatedBy: "system",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// WithOwner sets the owning group.
func (b *ContainerBuilder) WithOwner(owner string) *ContainerBuilder {
	b.container.Owner = owner
	return b
}

// Build returns the constructed Container.
func (b *ContainerBuilder) Build() *model.Container {
	container := *b.container
	return &container
}
