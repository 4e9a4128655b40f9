package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// KMSKeyRepo provides database operations for per-(role, region) key
// records.
type KMSKeyRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewKMSKeyRepo creates a new KMSKeyRepo with the real time provider.
func NewKMSKeyRepo(db *sql.DB) *KMSKeyRepo {
	return &KMSKeyRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewKMSKeyRepoWithTimeProvider creates a KMSKeyRepo with a custom time
// provider (useful for tests).
func NewKMSKeyRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *KMSKeyRepo {
	return &KMSKeyRepo{DB: db, timeProvider: tp}
}

const kmsKeyColumns = `id, iam_role_id, key_arn, region, created_at, updated_at, last_validated_at`

// Create persists a freshly provisioned key. The new record starts with
// last_validated_at = now; the key was just created with a known-good
// policy.
func (r *KMSKeyRepo) Create(ctx context.Context, req model.CreateKMSKeyRequest) (*model.KMSKey, error) {
	if req.IAMRoleID == "" || req.KeyARN == "" || req.Region == "" {
		return nil, errors.New("iam_role_id, key_arn, and region are required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO kms_keys (id, iam_role_id, key_arn, region, created_at, updated_at, last_validated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $5)
		RETURNING `+kmsKeyColumns,
		uuid.NewString(), req.IAMRoleID, req.KeyARN, req.Region, now,
	)

	key, err := scanKMSKey(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrKMSKeyAlreadyExists
		}
		return nil, fmt.Errorf("create kms key record: %w", err)
	}
	return key, nil
}

// GetByRoleAndRegion retrieves the key record for an (IAM role, region)
// pair. Returns (nil, nil) when no record exists.
func (r *KMSKeyRepo) GetByRoleAndRegion(ctx context.Context, iamRoleID, region string) (*model.KMSKey, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+kmsKeyColumns+` FROM kms_keys WHERE iam_role_id = $1 AND region = $2`,
		iamRoleID, region)
	key, err := scanKMSKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get kms key record: %w", err)
	}
	return key, nil
}

// ListByRole returns every key record owned by the role, any region.
func (r *KMSKeyRepo) ListByRole(ctx context.Context, iamRoleID string) ([]*model.KMSKey, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+kmsKeyColumns+` FROM kms_keys WHERE iam_role_id = $1`, iamRoleID)
	if err != nil {
		return nil, fmt.Errorf("list kms key records by role: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var keys []*model.KMSKey
	for rows.Next() {
		key, scanErr := scanKMSKey(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan kms key record: %w", scanErr)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kms key records: %w", err)
	}
	return keys, nil
}

// UpdateLastValidated stamps a successful policy validation.
func (r *KMSKeyRepo) UpdateLastValidated(ctx context.Context, id string, validatedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE kms_keys
		SET last_validated_at = $2, updated_at = $2
		WHERE id = $1`,
		id, validatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update kms key validation stamp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrKMSKeyNotFound
	}
	return nil
}

// Delete removes a key record, typically because the cloud key is unusable
// or the record is a dangling reference.
func (r *KMSKeyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM kms_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete kms key record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrKMSKeyNotFound
	}
	return nil
}

// ListInactiveOrOrphaned returns keys last validated before the cutoff, or
// whose owning role no longer appears in any permission grant.
func (r *KMSKeyRepo) ListInactiveOrOrphaned(ctx context.Context, before time.Time) ([]*model.KMSKey, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+kmsKeyColumns+`
		FROM kms_keys k
		WHERE k.last_validated_at < $1
		   OR NOT EXISTS (
			SELECT 1 FROM permissions p WHERE p.iam_role_id = k.iam_role_id
		   )`,
		before.UTC())
	if err != nil {
		return nil, fmt.Errorf("list inactive or orphaned kms keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var keys []*model.KMSKey
	for rows.Next() {
		key, scanErr := scanKMSKey(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan kms key record: %w", scanErr)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kms key records: %w", err)
	}
	return keys, nil
}

func scanKMSKey(row rowScanner) (*model.KMSKey, error) {
	var key model.KMSKey
	if err := row.Scan(
		&key.ID, &key.IAMRoleID, &key.KeyARN, &key.Region,
		&key.CreatedAt, &key.UpdatedAt, &key.LastValidatedAt,
	); err != nil {
		return nil, err
	}
	return &key, nil
}
