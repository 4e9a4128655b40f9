package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate/vaultgate/internal/domain/model"
	"github.com/vaultgate/vaultgate/internal/testutil"
)

const (
	integrationRoleARN      = "arn:aws:iam::111111111111:role/integration-role"
	integrationOtherRoleARN = "arn:aws:iam::222222222222:role/other-role"
	integrationRootARN      = "arn:aws:iam::111111111111:root"
)

// insertContainer writes a container row directly; the container repo is
// read-only because containers are managed by the surrounding platform.
func insertContainer(t *testing.T, db *sql.DB, container *model.Container) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO containers (id, name, owner, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		container.ID, container.Name, container.Owner,
		container.CreatedBy, container.UpdatedBy, container.CreatedAt, container.UpdatedAt)
	require.NoError(t, err)
}

func TestIAMRoleRepo_Integration_CreateAndGet(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIAMRoleRepo(db)
		ctx := context.Background()

		created, err := repo.Create(ctx, model.CreateIAMRoleRequest{
			ARN:       integrationRoleARN,
			CreatedBy: integrationRoleARN,
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.Equal(t, integrationRoleARN, created.ARN)
		assert.Equal(t, integrationRoleARN, created.CreatedBy)

		byARN, err := repo.GetByARN(ctx, integrationRoleARN)
		require.NoError(t, err)
		assert.Equal(t, created.ID, byARN.ID)

		byID, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, integrationRoleARN, byID.ARN)

		// A miss is (nil, nil): callers distinguish "unknown role" from failure.
		unknown, err := repo.GetByARN(ctx, "arn:aws:iam::111111111111:role/never-registered")
		require.NoError(t, err)
		assert.Nil(t, unknown)

		_, err = repo.GetByID(ctx, "no-such-id")
		assert.ErrorIs(t, err, ErrIAMRoleNotFound)
	})
}

func TestIAMRoleRepo_Integration_DuplicateARN(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIAMRoleRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationRoleARN, CreatedBy: "system"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationRoleARN, CreatedBy: "system"})
		assert.ErrorIs(t, err, ErrIAMRoleAlreadyExists)
	})
}

func TestIAMRoleRepo_Integration_GetByAccountRootARN(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewIAMRoleRepo(db)
		ctx := context.Background()

		_, err := repo.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationRoleARN, CreatedBy: "system"})
		require.NoError(t, err)

		t.Run("sibling role records never establish trust", func(t *testing.T) {
			role, lookupErr := repo.GetByAccountRootARN(ctx, integrationRootARN)
			require.NoError(t, lookupErr)
			assert.Nil(t, role)
		})

		t.Run("matches only a stored root-ARN record", func(t *testing.T) {
			_, createErr := repo.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationRootARN, CreatedBy: "system"})
			require.NoError(t, createErr)

			role, lookupErr := repo.GetByAccountRootARN(ctx, integrationRootARN)
			require.NoError(t, lookupErr)
			require.NotNil(t, role)
			assert.Equal(t, integrationRootARN, role.ARN)
		})

		t.Run("no hit for an untrusted account", func(t *testing.T) {
			role, lookupErr := repo.GetByAccountRootARN(ctx, "arn:aws:iam::333333333333:root")
			require.NoError(t, lookupErr)
			assert.Nil(t, role)
		})
	})
}

func TestIAMRoleRepo_Integration_ListOrphaned(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		roles := NewIAMRoleRepo(db)
		perms := NewPermissionRepo(db)
		ctx := context.Background()

		granted, err := roles.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationRoleARN, CreatedBy: "system"})
		require.NoError(t, err)
		orphan, err := roles.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationOtherRoleARN, CreatedBy: "system"})
		require.NoError(t, err)

		container := testutil.NewContainer("orphan-check").Build()
		insertContainer(t, db, container)
		_, err = perms.Create(ctx, testutil.NewPermission(container.ID).ForIAMRole(granted.ID).Build())
		require.NoError(t, err)

		orphaned, err := roles.ListOrphaned(ctx)
		require.NoError(t, err)
		require.Len(t, orphaned, 1)
		assert.Equal(t, orphan.ID, orphaned[0].ID)
	})
}

func TestIAMRoleRepo_Integration_DeleteCascadesKeys(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		roles := NewIAMRoleRepo(db)
		keys := NewKMSKeyRepo(db)
		ctx := context.Background()

		role, err := roles.Create(ctx, model.CreateIAMRoleRequest{ARN: integrationRoleARN, CreatedBy: "system"})
		require.NoError(t, err)

		_, err = keys.Create(ctx, model.CreateKMSKeyRequest{
			IAMRoleID: role.ID,
			KeyARN:    "arn:aws:kms:us-east-1:111111111111:key/abc",
			Region:    "us-east-1",
		})
		require.NoError(t, err)

		require.NoError(t, roles.Delete(ctx, role.ID))

		remaining, err := keys.ListByRole(ctx, role.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		assert.ErrorIs(t, roles.Delete(ctx, role.ID), ErrIAMRoleNotFound)
	})
}
