package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vaultgate/vaultgate/internal/domain/model"
	"github.com/vaultgate/vaultgate/internal/data/pgxutil"
)

// BlocklistRepo provides database operations for the persisted token
// revocation set.
type BlocklistRepo struct {
	DB *sql.DB
}

// NewBlocklistRepo creates a new BlocklistRepo.
func NewBlocklistRepo(db *sql.DB) *BlocklistRepo {
	return &BlocklistRepo{DB: db}
}

// Insert records a revoked token id. Inserting the same id twice is a no-op;
// revocation is idempotent.
func (r *BlocklistRepo) Insert(ctx context.Context, entry model.BlocklistEntry) error {
	if entry.TokenID == "" {
		return fmt.Errorf("token id is required")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO token_blocklist (token_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_id) DO NOTHING`,
		entry.TokenID, entry.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert blocklist entry: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose expiry has passed and returns the
// number of rows deleted. It runs under relaxed isolation so purge traffic
// never blocks concurrent authentication reads.
func (r *BlocklistRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var deleted int
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Opts: pgxutil.RelaxedReadOpts(),
		Fn: func(tx *sql.Tx) error {
			res, execErr := tx.ExecContext(ctx,
				`DELETE FROM token_blocklist WHERE expires_at < $1`, now.UTC())
			if execErr != nil {
				return execErr
			}
			n, _ := res.RowsAffected()
			deleted = int(n)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired blocklist entries: %w", err)
	}
	return deleted, nil
}

// ListAll returns every persisted revocation. Used to hydrate the in-memory
// blocklist cache at startup and on refresh.
func (r *BlocklistRepo) ListAll(ctx context.Context) ([]model.BlocklistEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT token_id, expires_at FROM token_blocklist`)
	if err != nil {
		return nil, fmt.Errorf("list blocklist entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var entries []model.BlocklistEntry
	for rows.Next() {
		var e model.BlocklistEntry
		if scanErr := rows.Scan(&e.TokenID, &e.ExpiresAt); scanErr != nil {
			return nil, fmt.Errorf("scan blocklist entry: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocklist entries: %w", err)
	}
	return entries, nil
}
