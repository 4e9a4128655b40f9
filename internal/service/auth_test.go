package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultgate/vaultgate/config"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

type authTestEnv struct {
	svc    *AuthService
	tokens *TokenService
	roles  *stubRoleRepo
	keys   *stubKeyRepo
	client *stubKMSClient
	cache  *stubResponseCache
}

func newAuthTestEnv(t *testing.T, mutate func(*AuthServiceOptions)) *authTestEnv {
	t.Helper()

	blocklistRepo := newStubBlocklistRepo()
	tokens, err := NewTokenService(TokenServiceOptions{
		Keys:        []SigningKey{{ID: "k1", Secret: []byte("test-secret-one-test-secret-one!")}},
		ActiveKeyID: "k1",
		Issuer:      "test-env",
		TTL:         time.Hour,
		MaxBytes:    6000,
		Blocklist:   NewTokenBlocklist(blocklistRepo),
		Repo:        blocklistRepo,
	})
	require.NoError(t, err)

	roles := newStubRoleRepo(testRoleARN)
	keys := newStubKeyRepo()
	client := newStubKMSClient()
	cache := newStubResponseCache()

	lifecycle, err := NewKeyLifecycleService(KeyLifecycleServiceOptions{
		Keys:    keys,
		Clients: &stubKMSFactory{client: client},
		KMS: config.KMSConfig{
			OperatorRoleARN:     testOperatorARN,
			ValidationInterval:  5 * time.Minute,
			PendingDeletionDays: 7,
			PlaintextLimit:      4096,
		},
		Environment: "test-env",
	})
	require.NoError(t, err)

	permissions, err := NewPermissionService(PermissionServiceOptions{
		Permissions: &stubPermissionRepo{},
		Containers:  &stubContainerRepo{containers: map[string]*model.Container{}},
		IAMRoles:    roles,
	})
	require.NoError(t, err)

	opts := AuthServiceOptions{
		Tokens:      tokens,
		Permissions: permissions,
		Lifecycle:   lifecycle,
		Roles:       roles,
		Users: &stubUserAuth{groups: map[string][]string{
			"alice": {"devs", "vaultgate-admins"},
			"bob":   {"qa"},
		}},
		Cache: cache,
		Auth: config.AuthConfig{
			AdminGroup:       "vaultgate-admins",
			AdminRoleARNs:    []string{"arn:aws:iam::111111111111:role/admin-role"},
			ResponseCacheTTL: 10 * time.Second,
			Token:            config.TokenConfig{MaxRefreshCount: 2},
		},
		PlaintextLimit: 4096,
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewAuthService(opts)
	require.NoError(t, err)
	return &authTestEnv{svc: svc, tokens: tokens, roles: roles, keys: keys, client: client, cache: cache}
}

// decryptAuthData undoes the stub client's mock encryption.
func decryptAuthData(t *testing.T, authData string) model.AuthResponse {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(authData)
	require.NoError(t, err)
	payload, ok := strings.CutPrefix(string(raw), "enc:")
	require.True(t, ok)

	var resp model.AuthResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	return resp
}

func TestAuthService_AuthenticateIAM(t *testing.T) {
	t.Run("known role receives a valid encrypted token", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		ctx := context.Background()

		encrypted, err := env.svc.AuthenticateIAM(ctx, testRoleARN, "us-west-2")
		require.NoError(t, err)

		resp := decryptAuthData(t, encrypted.AuthData)
		assert.Equal(t, testRoleARN, resp.Metadata["username"])
		assert.Equal(t, "iam", resp.Metadata["auth_type"])
		assert.False(t, resp.Renewable)

		principal, ok := env.tokens.ParseAndValidate(ctx, resp.Token)
		require.True(t, ok)
		assert.Equal(t, testRoleARN, principal.Name)
		assert.Equal(t, model.PrincipalTypeIAM, principal.Type)
		assert.False(t, principal.IsAdmin)
	})

	t.Run("assumed-role session resolves to its base role", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)

		encrypted, err := env.svc.AuthenticateIAM(context.Background(), testAssumedRoleARN, "us-west-2")
		require.NoError(t, err)

		resp := decryptAuthData(t, encrypted.AuthData)
		assert.Equal(t, testAssumedRoleARN, resp.Metadata["username"])
		// No new role record was registered; the session matched the base role.
		assert.Equal(t, 0, env.roles.creates)
	})

	t.Run("never-seen role under a trusted account root is auto-registered once", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		ctx := context.Background()
		newRole := "arn:aws:iam::111111111111:role/brand-new-role"
		_, err := env.roles.Create(ctx, model.CreateIAMRoleRequest{ARN: testRootARN, CreatedBy: "system"})
		require.NoError(t, err)
		env.roles.creates = 0

		_, err = env.svc.AuthenticateIAM(ctx, newRole, "us-west-2")
		require.NoError(t, err)
		assert.Equal(t, 1, env.roles.creates)

		record, err := env.roles.GetByARN(ctx, newRole)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, newRole, record.CreatedBy)
	})

	t.Run("sibling role records do not establish account trust", func(t *testing.T) {
		// The env seeds a role in account 111111111111 but no root record;
		// another role in that account must still be rejected.
		env := newAuthTestEnv(t, nil)

		_, err := env.svc.AuthenticateIAM(context.Background(), "arn:aws:iam::111111111111:role/brand-new-role", "us-west-2")
		assert.ErrorIs(t, err, ErrPrincipalNotAssociated)
		assert.Equal(t, 0, env.roles.creates)
	})

	t.Run("principal with no trust path is rejected", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)

		_, err := env.svc.AuthenticateIAM(context.Background(), "arn:aws:iam::222222222222:role/stranger", "us-west-2")
		assert.ErrorIs(t, err, ErrPrincipalNotAssociated)
		assert.Equal(t, 0, env.roles.creates)
	})

	t.Run("untrusted partition is rejected before any lookup", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)

		_, err := env.svc.AuthenticateIAM(context.Background(), "arn:aws-iso:iam::111111111111:role/my-role", "us-west-2")
		assert.Error(t, err)
	})

	t.Run("admin allowlist matches assumed-role sessions", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		ctx := context.Background()
		adminSession := "arn:aws:sts::111111111111:assumed-role/admin-role/session-1"
		_, err := env.roles.Create(ctx, model.CreateIAMRoleRequest{ARN: "arn:aws:iam::111111111111:role/admin-role"})
		require.NoError(t, err)

		encrypted, err := env.svc.AuthenticateIAM(ctx, adminSession, "us-west-2")
		require.NoError(t, err)

		resp := decryptAuthData(t, encrypted.AuthData)
		principal, ok := env.tokens.ParseAndValidate(ctx, resp.Token)
		require.True(t, ok)
		assert.True(t, principal.IsAdmin)
	})

	t.Run("identical requests are served from the cache", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		ctx := context.Background()

		_, err := env.svc.AuthenticateIAM(ctx, testRoleARN, "us-west-2")
		require.NoError(t, err)
		require.Equal(t, 1, env.cache.sets)

		cached, err := env.svc.AuthenticateIAM(ctx, testRoleARN, "us-west-2")
		require.NoError(t, err)
		assert.NotEmpty(t, cached.AuthData)
		// Only the first call hit the cloud.
		assert.Equal(t, 1, env.client.encrypts)
	})
}

func TestAuthService_Truncation(t *testing.T) {
	// A payload over the encryptable ceiling must be re-serialized with
	// truncation markers rather than failing the login. A signed token alone
	// is several hundred bytes, so a 300-byte ceiling always triggers it.
	env := newAuthTestEnv(t, func(o *AuthServiceOptions) {
		o.PlaintextLimit = 300
	})
	ctx := context.Background()

	encrypted, err := env.svc.AuthenticateIAM(ctx, testRoleARN, "us-west-2")
	require.NoError(t, err)

	resp := decryptAuthData(t, encrypted.AuthData)
	assert.Equal(t, map[string]string{"_truncated": "true"}, resp.Metadata)
	assert.Equal(t, []string{"_truncated"}, resp.Policies)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_AuthenticateUser(t *testing.T) {
	t.Run("valid credentials produce a plaintext response", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		ctx := context.Background()

		resp, err := env.svc.AuthenticateUser(ctx, "alice", "correct")
		require.NoError(t, err)
		assert.True(t, resp.Renewable)
		assert.Equal(t, "user", resp.Metadata["auth_type"])

		principal, ok := env.tokens.ParseAndValidate(ctx, resp.Token)
		require.True(t, ok)
		assert.Equal(t, "alice", principal.Name)
		assert.Equal(t, []string{"devs", "vaultgate-admins"}, principal.Groups)
		assert.True(t, principal.IsAdmin)
	})

	t.Run("non-admin user gets no admin flag", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)

		resp, err := env.svc.AuthenticateUser(context.Background(), "bob", "correct")
		require.NoError(t, err)

		principal, ok := env.tokens.ParseAndValidate(context.Background(), resp.Token)
		require.True(t, ok)
		assert.False(t, principal.IsAdmin)
	})

	t.Run("bad credentials propagate the connector error", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		_, err := env.svc.AuthenticateUser(context.Background(), "alice", "wrong")
		assert.Error(t, err)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	login := func(t *testing.T, env *authTestEnv, username string) *model.Principal {
		t.Helper()
		resp, err := env.svc.AuthenticateUser(context.Background(), username, "correct")
		require.NoError(t, err)
		principal, ok := env.tokens.ParseAndValidate(context.Background(), resp.Token)
		require.True(t, ok)
		return principal
	}

	t.Run("issues a successor and revokes the old token", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		ctx := context.Background()
		principal := login(t, env, "bob")

		resp, err := env.svc.Refresh(ctx, principal)
		require.NoError(t, err)

		refreshed, ok := env.tokens.ParseAndValidate(ctx, resp.Token)
		require.True(t, ok)
		assert.Equal(t, principal.RefreshCount+1, refreshed.RefreshCount)
		assert.Equal(t, principal.Groups, refreshed.Groups)

		// The superseded token id is now revoked.
		assert.True(t, env.tokens.blocklist.Contains(principal.TokenID))
	})

	t.Run("rejects IAM principals", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		principal := &model.Principal{Name: testRoleARN, Type: model.PrincipalTypeIAM, TokenID: "t1"}
		_, err := env.svc.Refresh(context.Background(), principal)
		assert.ErrorIs(t, err, ErrRefreshNotAllowed)
	})

	t.Run("rejects principals at the refresh limit", func(t *testing.T) {
		env := newAuthTestEnv(t, nil)
		principal := login(t, env, "bob")
		principal.RefreshCount = 2 // MaxRefreshCount in the test config

		_, err := env.svc.Refresh(context.Background(), principal)
		assert.ErrorIs(t, err, ErrMaxRefreshExceeded)
	})
}

func TestAuthService_RequireRole(t *testing.T) {
	perms := &stubPermissionRepo{grants: map[string][]*model.Permission{
		"c1": {{ContainerID: "c1", GroupName: strPtr("qa"), RoleName: model.RoleRead}},
	}}
	env := newAuthTestEnv(t, func(o *AuthServiceOptions) {
		svc, err := NewPermissionService(PermissionServiceOptions{
			Permissions: perms,
			Containers:  &stubContainerRepo{containers: map[string]*model.Container{}},
			IAMRoles:    newStubRoleRepo(testRoleARN),
		})
		require.NoError(t, err)
		o.Permissions = svc
	})
	ctx := context.Background()
	principal := &model.Principal{Name: "bob", Type: model.PrincipalTypeUser, Groups: []string{"qa"}}

	require.NoError(t, env.svc.RequireRole(ctx, principal, "c1", model.NewRoleSet(model.RoleRead)))

	err := env.svc.RequireRole(ctx, principal, "c1", model.NewRoleSet(model.RoleOwner))
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestAuthService_ValidateToken(t *testing.T) {
	env := newAuthTestEnv(t, nil)
	ctx := context.Background()

	resp, err := env.svc.AuthenticateUser(ctx, "bob", "correct")
	require.NoError(t, err)

	principal, ok := env.svc.ValidateToken(ctx, resp.Token)
	require.True(t, ok)
	assert.Equal(t, "bob", principal.Name)

	_, ok = env.svc.ValidateToken(ctx, "an-api-key-that-is-not-a-token")
	assert.False(t, ok)
}
