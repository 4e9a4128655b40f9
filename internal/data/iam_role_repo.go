package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// IAMRoleRepo provides database operations for internal IAM role records.
type IAMRoleRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewIAMRoleRepo creates a new IAMRoleRepo with the real time provider.
func NewIAMRoleRepo(db *sql.DB) *IAMRoleRepo {
	return &IAMRoleRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewIAMRoleRepoWithTimeProvider creates an IAMRoleRepo with a custom time
// provider (useful for tests).
func NewIAMRoleRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *IAMRoleRepo {
	return &IAMRoleRepo{DB: db, timeProvider: tp}
}

const iamRoleColumns = `id, arn, created_by, updated_by, created_at, updated_at`

// Create inserts a record for a newly seen role ARN.
func (r *IAMRoleRepo) Create(ctx context.Context, req model.CreateIAMRoleRequest) (*model.IAMRole, error) {
	arn := strings.TrimSpace(req.ARN)
	if arn == "" {
		return nil, errors.New("arn is required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO iam_roles (id, arn, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $4, $4)
		RETURNING `+iamRoleColumns,
		uuid.NewString(), arn, req.CreatedBy, now,
	)

	role, err := scanIAMRole(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrIAMRoleAlreadyExists
		}
		return nil, fmt.Errorf("create iam role: %w", err)
	}
	return role, nil
}

// GetByID retrieves a role record by its internal id.
func (r *IAMRoleRepo) GetByID(ctx context.Context, id string) (*model.IAMRole, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+iamRoleColumns+` FROM iam_roles WHERE id = $1`, id)
	role, err := scanIAMRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIAMRoleNotFound
		}
		return nil, fmt.Errorf("get iam role by id: %w", err)
	}
	return role, nil
}

// GetByARN retrieves a role record by its exact ARN. Returns (nil, nil) when
// no record exists; callers distinguish "unknown role" from lookup failure.
func (r *IAMRoleRepo) GetByARN(ctx context.Context, arn string) (*model.IAMRole, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+iamRoleColumns+` FROM iam_roles WHERE arn = $1`, arn)
	role, err := scanIAMRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get iam role by arn: %w", err)
	}
	return role, nil
}

// GetByAccountRootARN returns the role record registered under the account
// root ARN itself, or (nil, nil). Only a stored root-ARN record establishes
// account trust; sibling role records in the same account do not.
func (r *IAMRoleRepo) GetByAccountRootARN(ctx context.Context, rootARN string) (*model.IAMRole, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+iamRoleColumns+` FROM iam_roles WHERE arn = $1`, rootARN)
	role, err := scanIAMRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get iam role by account root arn: %w", err)
	}
	return role, nil
}

// Delete removes a role record. KMS key records cascade with it.
func (r *IAMRoleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM iam_roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete iam role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIAMRoleNotFound
	}
	return nil
}

// ListOrphaned returns role records no permission grant references anymore.
func (r *IAMRoleRepo) ListOrphaned(ctx context.Context) ([]*model.IAMRole, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+iamRoleColumns+`
		FROM iam_roles r
		WHERE NOT EXISTS (
			SELECT 1 FROM permissions p WHERE p.iam_role_id = r.id
		)`)
	if err != nil {
		return nil, fmt.Errorf("list orphaned iam roles: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var roles []*model.IAMRole
	for rows.Next() {
		role, scanErr := scanIAMRole(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan orphaned iam role: %w", scanErr)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphaned iam roles: %w", err)
	}
	return roles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIAMRole(row rowScanner) (*model.IAMRole, error) {
	var role model.IAMRole
	if err := row.Scan(
		&role.ID, &role.ARN, &role.CreatedBy, &role.UpdatedBy,
		&role.CreatedAt, &role.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &role, nil
}
