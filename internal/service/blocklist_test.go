package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

func TestTokenBlocklist_RevokeIsVisibleImmediately(t *testing.T) {
	repo := newStubBlocklistRepo()
	bl := NewTokenBlocklist(repo)
	ctx := context.Background()

	assert.False(t, bl.Contains("t1"))
	require.NoError(t, bl.Revoke(ctx, "t1", time.Now().Add(time.Hour)))
	assert.True(t, bl.Contains("t1"))

	// And the entry was written through.
	entries, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].TokenID)
}

func TestTokenBlocklist_RevokeKeepsCacheOnRepoFailure(t *testing.T) {
	repo := newStubBlocklistRepo()
	bl := NewTokenBlocklist(repo)
	repo.err = assert.AnError

	err := bl.Revoke(context.Background(), "t1", time.Now().Add(time.Hour))
	require.Error(t, err)
	// The local cache still blocks the token even though persistence failed.
	assert.True(t, bl.Contains("t1"))
}

func TestTokenBlocklist_Refresh(t *testing.T) {
	repo := newStubBlocklistRepo()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, model.BlocklistEntry{TokenID: "a", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, repo.Insert(ctx, model.BlocklistEntry{TokenID: "b", ExpiresAt: time.Now().Add(time.Hour)}))

	bl := NewTokenBlocklist(repo)
	require.NoError(t, bl.Refresh(ctx))
	assert.Equal(t, 2, bl.Len())
	assert.True(t, bl.Contains("a"))
	assert.True(t, bl.Contains("b"))

	// Refresh replaces, not merges: entries purged from the store drop out.
	_, err := repo.DeleteExpired(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, bl.Refresh(ctx))
	assert.Equal(t, 0, bl.Len())
}

func TestTokenBlocklist_RefreshFailureLeavesCacheIntact(t *testing.T) {
	repo := newStubBlocklistRepo()
	bl := NewTokenBlocklist(repo)
	require.NoError(t, bl.Revoke(context.Background(), "t1", time.Now().Add(time.Hour)))

	repo.err = assert.AnError
	err := bl.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, bl.Contains("t1"))
}
