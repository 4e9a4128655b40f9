package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// ContainerRepo provides database operations for secret container metadata.
// The trust engine only reads containers; creation and secret storage live
// with the rest of the control plane.
type ContainerRepo struct {
	DB *sql.DB
}

// NewContainerRepo creates a new ContainerRepo.
func NewContainerRepo(db *sql.DB) *ContainerRepo {
	return &ContainerRepo{DB: db}
}

// GetByID retrieves a container by id.
func (r *ContainerRepo) GetByID(ctx context.Context, id string) (*model.Container, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, name, owner, created_by, updated_by, created_at, updated_at
		FROM containers
		WHERE id = $1`, id)

	var c model.Container
	if err := row.Scan(
		&c.ID, &c.Name, &c.Owner, &c.CreatedBy, &c.UpdatedBy,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContainerNotFound
		}
		return nil, fmt.Errorf("get container by id: %w", err)
	}
	return &c, nil
}
