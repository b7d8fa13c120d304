package repo

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-payments/internal/domain"
)

type InventoryRepo interface {
	GetStock(ctx context.Context, productID, branchID int64) (*domain.InventoryEntry, error)
	UpdateStock(ctx context.Context, entryID int64, quantity int) error
	// SwapStock writes quantity only while the entry still holds current.
	// It returns domain.ErrStockConflict when another writer got there first.
	SwapStock(ctx context.Context, entryID int64, current, quantity int) error
}

type PostgresInventoryRepo struct {
	db DBTX
}

func NewInventoryRepo(db DBTX) *PostgresInventoryRepo {
	return &PostgresInventoryRepo{db: db}
}

func (r *PostgresInventoryRepo) GetStock(ctx context.Context, productID, branchID int64) (*domain.InventoryEntry, error) {
	var e domain.InventoryEntry
	err := r.db.QueryRowContext(ctx,
		"SELECT id, product_id, branch_id, stock FROM branch_inventory WHERE product_id = $1 AND branch_id = $2",
		productID, branchID,
	).Scan(&e.ID, &e.ProductID, &e.BranchID, &e.Stock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresInventoryRepo) UpdateStock(ctx context.Context, entryID int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: stock for entry %d cannot go to %d", domain.ErrInventory, entryID, quantity)
	}
	res, err := r.db.ExecContext(ctx, "UPDATE branch_inventory SET stock = $2 WHERE id = $1", entryID, quantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: inventory entry %d", domain.ErrNotFound, entryID)
	}
	return nil
}

func (r *PostgresInventoryRepo) SwapStock(ctx context.Context, entryID int64, current, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: stock for entry %d cannot go to %d", domain.ErrInventory, entryID, quantity)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE branch_inventory SET stock = $3 WHERE id = $1 AND stock = $2",
		entryID, current, quantity,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM branch_inventory WHERE id = $1)", entryID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: inventory entry %d", domain.ErrNotFound, entryID)
	}
	return fmt.Errorf("%w: entry %d no longer holds %d", domain.ErrStockConflict, entryID, current)
}

// CreateEntry is used by seeding and tests.
func (r *PostgresInventoryRepo) CreateEntry(ctx context.Context, e *domain.InventoryEntry) error {
	return r.db.QueryRowContext(ctx,
		"INSERT INTO branch_inventory (product_id, branch_id, stock) VALUES ($1, $2, $3) RETURNING id",
		e.ProductID, e.BranchID, e.Stock,
	).Scan(&e.ID)
}
