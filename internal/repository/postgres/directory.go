package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/egannguyen/autoparts-marketplace/internal/repository"
)

type directory struct {
	db *sql.DB
}

// NewDirectory answers buyer and store existence from the buyers and stores
// tables, which the account service keeps in sync.
func NewDirectory(db *sql.DB) repository.Directory {
	return &directory{db: db}
}

func (d *directory) BuyerExists(ctx context.Context, id string) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM buyers WHERE id = $1)`, id)
}

func (d *directory) StoreExists(ctx context.Context, id string) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, id)
}

func (d *directory) exists(ctx context.Context, query, id string) (bool, error) {
	var ok bool
	if err := d.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check existence of %s: %w", id, err)
	}
	return ok, nil
}
