package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/data"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// stubRoleRepo is an in-memory IAMRoleRepository keyed by ARN.
type stubRoleRepo struct {
	mu      sync.Mutex
	byARN   map[string]*model.IAMRole
	creates int
	err     error
}

func newStubRoleRepo(arns ...string) *stubRoleRepo {
	r := &stubRoleRepo{byARN: make(map[string]*model.IAMRole)}
	for _, a := range arns {
		r.byARN[a] = &model.IAMRole{ID: uuid.NewString(), ARN: a}
	}
	return r
}

func (r *stubRoleRepo) Create(_ context.Context, req model.CreateIAMRoleRequest) (*model.IAMRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if _, ok := r.byARN[req.ARN]; ok {
		return nil, data.ErrIAMRoleAlreadyExists
	}
	role := &model.IAMRole{ID: uuid.NewString(), ARN: req.ARN, CreatedBy: req.CreatedBy}
	r.byARN[req.ARN] = role
	r.creates++
	return role, nil
}

func (r *stubRoleRepo) GetByID(_ context.Context, id string) (*model.IAMRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, role := range r.byARN {
		if role.ID == id {
			return role, nil
		}
	}
	return nil, data.ErrIAMRoleNotFound
}

func (r *stubRoleRepo) GetByARN(_ context.Context, arn string) (*model.IAMRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.byARN[arn], nil
}

func (r *stubRoleRepo) GetByAccountRootARN(_ context.Context, rootARN string) (*model.IAMRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	// Trust requires a record stored under the root ARN itself.
	return r.byARN[rootARN], nil
}

func (r *stubRoleRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for arn, role := range r.byARN {
		if role.ID == id {
			delete(r.byARN, arn)
			return nil
		}
	}
	return data.ErrIAMRoleNotFound
}

func (r *stubRoleRepo) ListOrphaned(context.Context) ([]*model.IAMRole, error) {
	return nil, nil
}

// stubKeyRepo is an in-memory KMSKeyRepository.
type stubKeyRepo struct {
	mu      sync.Mutex
	keys    map[string]*model.KMSKey // by id
	creates int
	deletes int
}

func newStubKeyRepo() *stubKeyRepo {
	return &stubKeyRepo{keys: make(map[string]*model.KMSKey)}
}

func (r *stubKeyRepo) Create(_ context.Context, req model.CreateKMSKeyRequest) (*model.KMSKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.IAMRoleID == req.IAMRoleID && k.Region == req.Region {
			return nil, data.ErrKMSKeyAlreadyExists
		}
	}
	now := time.Now().UTC()
	key := &model.KMSKey{
		ID:              uuid.NewString(),
		IAMRoleID:       req.IAMRoleID,
		KeyARN:          req.KeyARN,
		Region:          req.Region,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastValidatedAt: now,
	}
	r.keys[key.ID] = key
	r.creates++
	return key, nil
}

func (r *stubKeyRepo) GetByRoleAndRegion(_ context.Context, iamRoleID, region string) (*model.KMSKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.IAMRoleID == iamRoleID && k.Region == region {
			return k, nil
		}
	}
	return nil, nil
}

func (r *stubKeyRepo) ListByRole(_ context.Context, iamRoleID string) ([]*model.KMSKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.KMSKey
	for _, k := range r.keys {
		if k.IAMRoleID == iamRoleID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *stubKeyRepo) UpdateLastValidated(_ context.Context, id string, validatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return data.ErrKMSKeyNotFound
	}
	k.LastValidatedAt = validatedAt
	return nil
}

func (r *stubKeyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[id]; !ok {
		return data.ErrKMSKeyNotFound
	}
	delete(r.keys, id)
	r.deletes++
	return nil
}

func (r *stubKeyRepo) ListInactiveOrOrphaned(_ context.Context, before time.Time) ([]*model.KMSKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.KMSKey
	for _, k := range r.keys {
		if k.LastValidatedAt.Before(before) {
			out = append(out, k)
		}
	}
	return out, nil
}

// stubKMSClient records calls and lets tests script failures per key ARN.
type stubKMSClient struct {
	mu sync.Mutex

	created        int
	policyFetches  int
	policyPuts     int
	encrypts       int
	deletions      int
	aliases        []string
	policies       map[string]string // by key ARN
	unusable       map[string]bool   // Encrypt returns ErrKeyUnusable
	missing        map[string]bool   // policy/encrypt return ErrKeyNotFound
	pending        map[string]bool   // DescribeKeyState reports PendingDeletion
	createErr      error
	encryptAllFail bool
}

func newStubKMSClient() *stubKMSClient {
	return &stubKMSClient{
		policies: make(map[string]string),
		unusable: make(map[string]bool),
		missing:  make(map[string]bool),
		pending:  make(map[string]bool),
	}
}

func (c *stubKMSClient) CreateKey(_ context.Context, params core.CreateKeyParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.created++
	keyARN := fmt.Sprintf("arn:aws:kms:us-west-2:111111111111:key/%s", uuid.NewString())
	c.policies[keyARN] = params.Policy
	return keyARN, nil
}

func (c *stubKMSClient) CreateAlias(_ context.Context, aliasName, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases = append(c.aliases, aliasName)
	return nil
}

func (c *stubKMSClient) GetKeyPolicy(_ context.Context, keyARN string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.missing[keyARN] {
		return "", core.ErrKeyNotFound
	}
	c.policyFetches++
	policy, ok := c.policies[keyARN]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	return policy, nil
}

func (c *stubKMSClient) PutKeyPolicy(_ context.Context, keyARN, policy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policyPuts++
	c.policies[keyARN] = policy
	return nil
}

func (c *stubKMSClient) Encrypt(_ context.Context, keyARN string, plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.missing[keyARN] {
		return nil, core.ErrKeyNotFound
	}
	if c.unusable[keyARN] || c.encryptAllFail {
		return nil, core.ErrKeyUnusable
	}
	c.encrypts++
	return append([]byte("enc:"), plaintext...), nil
}

func (c *stubKMSClient) DescribeKeyState(_ context.Context, keyARN string) (core.KeyState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.missing[keyARN] {
		return core.KeyStateUnknown, core.ErrKeyNotFound
	}
	if c.pending[keyARN] {
		return core.KeyStatePendingDeletion, nil
	}
	if c.unusable[keyARN] {
		return core.KeyStateDisabled, nil
	}
	return core.KeyStateEnabled, nil
}

func (c *stubKMSClient) ScheduleKeyDeletion(_ context.Context, keyARN string, _ int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.missing[keyARN] {
		return core.ErrKeyNotFound
	}
	c.deletions++
	delete(c.policies, keyARN)
	return nil
}

// stubKMSFactory hands the same client out for every region.
type stubKMSFactory struct {
	client *stubKMSClient
	err    error
}

func (f *stubKMSFactory) ForRegion(context.Context, string) (core.KMSClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

// stubBlocklistRepo is an in-memory BlocklistRepository.
type stubBlocklistRepo struct {
	mu      sync.Mutex
	entries map[string]model.BlocklistEntry
	err     error
}

func newStubBlocklistRepo() *stubBlocklistRepo {
	return &stubBlocklistRepo{entries: make(map[string]model.BlocklistEntry)}
}

func (r *stubBlocklistRepo) Insert(_ context.Context, entry model.BlocklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries[entry.TokenID] = entry
	return nil
}

func (r *stubBlocklistRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	deleted := 0
	for id, e := range r.entries {
		if e.ExpiresAt.Before(now) {
			delete(r.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *stubBlocklistRepo) ListAll(context.Context) ([]model.BlocklistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]model.BlocklistEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

// stubPermissionRepo serves a fixed grant list per container.
type stubPermissionRepo struct {
	grants map[string][]*model.Permission // by container id
	err    error
}

func (r *stubPermissionRepo) Create(_ context.Context, p *model.Permission) (*model.Permission, error) {
	return p, r.err
}

func (r *stubPermissionRepo) ListByContainer(_ context.Context, containerID string) ([]*model.Permission, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.grants[containerID], nil
}

func (r *stubPermissionRepo) ListGroupNamesByContainer(_ context.Context, containerID string, roles model.RoleSet) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	var names []string
	for _, g := range r.grants[containerID] {
		if g.GroupName != nil && roles.Contains(g.RoleName) {
			names = append(names, *g.GroupName)
		}
	}
	return names, nil
}

func (r *stubPermissionRepo) Delete(context.Context, string) error {
	return r.err
}

// stubContainerRepo serves fixed container metadata.
type stubContainerRepo struct {
	containers map[string]*model.Container
}

func (r *stubContainerRepo) GetByID(_ context.Context, id string) (*model.Container, error) {
	c, ok := r.containers[id]
	if !ok {
		return nil, data.ErrContainerNotFound
	}
	return c, nil
}

// stubUserAuth is a scripted identity connector.
type stubUserAuth struct {
	groups map[string][]string // by username; password must equal "correct"
}

func (a *stubUserAuth) Authenticate(_ context.Context, username, password string) ([]string, error) {
	groups, ok := a.groups[username]
	if !ok || password != "correct" {
		return nil, errors.New("bad credentials")
	}
	return groups, nil
}

// stubResponseCache is an in-memory ResponseCache without TTL enforcement.
type stubResponseCache struct {
	mu     sync.Mutex
	values map[string][]byte
	sets   int
	gets   int
}

func newStubResponseCache() *stubResponseCache {
	return &stubResponseCache{values: make(map[string][]byte)}
}

func (c *stubResponseCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return c.values[key], nil
}

func (c *stubResponseCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.values[key] = value
	return nil
}
