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

// PermissionRepo provides database operations for container access grants.
type PermissionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewPermissionRepo creates a new PermissionRepo with the real time
// provider.
func NewPermissionRepo(db *sql.DB) *PermissionRepo {
	return &PermissionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

const permissionColumns = `id, container_id, group_name, iam_role_id, role_name, created_by, updated_by, created_at, updated_at`

// Create inserts a grant. The partial unique indexes on (container, group)
// and (container, iam role) enforce the at-most-one-grant-per-grantee
// invariant.
func (r *PermissionRepo) Create(ctx context.Context, p *model.Permission) (*model.Permission, error) {
	if p == nil {
		return nil, errors.New("permission is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO permissions (id, container_id, group_name, iam_role_id, role_name, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $7)
		RETURNING `+permissionColumns,
		uuid.NewString(), p.ContainerID, p.GroupName, p.IAMRoleID, string(p.RoleName), p.CreatedBy, now,
	)

	created, err := scanPermission(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrPermissionAlreadyExists
		}
		return nil, fmt.Errorf("create permission: %w", err)
	}
	return created, nil
}

// ListByContainer returns all grants attached to a container.
func (r *PermissionRepo) ListByContainer(ctx context.Context, containerID string) ([]*model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE container_id = $1`,
		containerID)
	if err != nil {
		return nil, fmt.Errorf("list permissions by container: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var perms []*model.Permission
	for rows.Next() {
		p, scanErr := scanPermission(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan permission: %w", scanErr)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return perms, nil
}

// ListGroupNamesByContainer returns the group grantees on a container whose
// grant role is in the given set.
func (r *PermissionRepo) ListGroupNamesByContainer(
	ctx context.Context,
	containerID string,
	roles model.RoleSet,
) ([]string, error) {
	roleNames := make([]string, 0, len(roles))
	for role := range roles {
		roleNames = append(roleNames, string(role))
	}

	// database/sql cannot bind a string slice directly; pass a delimited
	// list and split server-side. Role names never contain commas.
	rows, err := r.DB.QueryContext(ctx, `
		SELECT group_name
		FROM permissions
		WHERE container_id = $1
		  AND group_name IS NOT NULL
		  AND role_name = ANY(string_to_array($2, ','))`,
		containerID, strings.Join(roleNames, ","))
	if err != nil {
		return nil, fmt.Errorf("list group grants by container: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var groups []string
	for rows.Next() {
		var g string
		if scanErr := rows.Scan(&g); scanErr != nil {
			return nil, fmt.Errorf("scan group grant: %w", scanErr)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group grants: %w", err)
	}
	return groups, nil
}

// Delete removes a grant by id.
func (r *PermissionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

func scanPermission(row rowScanner) (*model.Permission, error) {
	var (
		p        model.Permission
		roleName string
	)
	if err := row.Scan(
		&p.ID, &p.ContainerID, &p.GroupName, &p.IAMRoleID, &roleName,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.RoleName = model.Role(roleName)
	return &p, nil
}
