package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate/vaultgate/internal/domain/model"
	"github.com/vaultgate/vaultgate/internal/testutil"
)

func TestPermissionRepo_Integration_CreateGrants(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		perms := NewPermissionRepo(db)
		ctx := context.Background()

		container := testutil.NewContainer("payments").Build()
		insertContainer(t, db, container)
		role := createTestRole(t, db, integrationRoleARN)

		groupGrant, err := perms.Create(ctx, testutil.NewPermission(container.ID).
			ForGroup("payments-readers").
			WithRole(model.RoleRead).
			Build())
		require.NoError(t, err)
		require.NotNil(t, groupGrant.GroupName)
		assert.Equal(t, "payments-readers", *groupGrant.GroupName)
		assert.Nil(t, groupGrant.IAMRoleID)

		roleGrant, err := perms.Create(ctx, testutil.NewPermission(container.ID).
			ForIAMRole(role.ID).
			WithRole(model.RoleWrite).
			Build())
		require.NoError(t, err)
		require.NotNil(t, roleGrant.IAMRoleID)
		assert.Equal(t, role.ID, *roleGrant.IAMRoleID)

		listed, err := perms.ListByContainer(ctx, container.ID)
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})
}

func TestPermissionRepo_Integration_DuplicateGrantee(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		perms := NewPermissionRepo(db)
		ctx := context.Background()

		container := testutil.NewContainer("payments").Build()
		insertContainer(t, db, container)

		_, err := perms.Create(ctx, testutil.NewPermission(container.ID).
			ForGroup("payments-readers").Build())
		require.NoError(t, err)

		_, err = perms.Create(ctx, testutil.NewPermission(container.ID).
			ForGroup("payments-readers").WithRole(model.RoleWrite).Build())
		assert.ErrorIs(t, err, ErrPermissionAlreadyExists)
	})
}

func TestPermissionRepo_Integration_ListGroupNamesByContainer(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		perms := NewPermissionRepo(db)
		ctx := context.Background()

		container := testutil.NewContainer("payments").Build()
		insertContainer(t, db, container)
		role := createTestRole(t, db, integrationRoleARN)

		for group, grantedRole := range map[string]model.Role{
			"payments-owners":  model.RoleOwner,
			"payments-writers": model.RoleWrite,
			"payments-readers": model.RoleRead,
		} {
			_, err := perms.Create(ctx, testutil.NewPermission(container.ID).
				ForGroup(group).WithRole(grantedRole).Build())
			require.NoError(t, err)
		}
		// IAM grants never appear in group listings.
		_, err := perms.Create(ctx, testutil.NewPermission(container.ID).
			ForIAMRole(role.ID).WithRole(model.RoleOwner).Build())
		require.NoError(t, err)

		groups, err := perms.ListGroupNamesByContainer(ctx, container.ID,
			model.NewRoleSet(model.RoleOwner, model.RoleWrite))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"payments-owners", "payments-writers"}, groups)
	})
}

func TestBlocklistRepo_Integration_InsertAndPurge(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewBlocklistRepo(db)
		ctx := context.Background()
		now := time.Now().UTC()

		live := model.BlocklistEntry{TokenID: "token-live", ExpiresAt: now.Add(time.Hour)}
		expired := model.BlocklistEntry{TokenID: "token-expired", ExpiresAt: now.Add(-time.Hour)}
		require.NoError(t, repo.Insert(ctx, live))
		require.NoError(t, repo.Insert(ctx, expired))

		// Re-revoking the same token is a no-op, not an error.
		require.NoError(t, repo.Insert(ctx, live))

		all, err := repo.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		deleted, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		remaining, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "token-live", remaining[0].TokenID)
	})
}
