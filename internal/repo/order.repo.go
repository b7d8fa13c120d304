package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-payments/internal/domain"
)

type OrderRepo interface {
	FindById(ctx context.Context, id int64) (*domain.Order, error)
	// FindByBusinessNumber returns the most recently created match.
	FindByBusinessNumber(ctx context.Context, number string) (*domain.Order, error)
	FindWithLines(ctx context.Context, id int64) (*domain.Order, error)
	// UpdateOrderStatus never moves an order out of Paid. It returns
	// domain.ErrAlreadyPaid when the row is already Paid and
	// domain.ErrNotFound when there is no such row.
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, comment *string) error
	CreateOrder(ctx context.Context, order *domain.Order) error
	FindPaidWithoutPayment(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
}

type PostgresOrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

const orderColumns = `
	o.id, o.business_number, o.status_id, c.id, c.code, c.decimals,
	o.total_with_tax, o.branch_id, o.comment, o.created_at, o.updated_at`

const orderFrom = ` FROM orders o JOIN currencies c ON c.id = o.currency_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order  domain.Order
		branch sql.NullInt64
	)
	err := row.Scan(
		&order.ID,
		&order.BusinessNumber,
		&order.Status,
		&order.Currency.ID,
		&order.Currency.Code,
		&order.Currency.Decimals,
		&order.Total,
		&branch,
		&order.Comment,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.BranchID = branch.Int64
	return &order, nil
}

func (r *PostgresOrderRepo) FindById(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT"+orderColumns+orderFrom+" WHERE o.id = $1", id))
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}
	return order, nil
}

func (r *PostgresOrderRepo) FindByBusinessNumber(ctx context.Context, number string) (*domain.Order, error) {
	query := "SELECT" + orderColumns + orderFrom +
		" WHERE o.business_number = $1 ORDER BY o.created_at DESC, o.id DESC LIMIT 1"

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, number))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *PostgresOrderRepo) FindWithLines(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := r.FindById(ctx, id)
	if err != nil || order == nil {
		return order, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, order_id, product_id, quantity, unit_price FROM order_lines WHERE order_id = $1 ORDER BY id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

func (r *PostgresOrderRepo) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, comment *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status_id = $2,
		    comment = COALESCE($3, comment),
		    updated_at = now()
		WHERE id = $1 AND status_id <> $4`,
		id, status, comment, domain.OrderPaid,
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
	if err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("order %d: %w", id, domain.ErrAlreadyPaid)
}

func (r *PostgresOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if order.Status == 0 {
		order.Status = domain.OrderPending
	}
	var branch sql.NullInt64
	if order.BranchID != 0 {
		branch = sql.NullInt64{Int64: order.BranchID, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (business_number, status_id, currency_id, total_with_tax, branch_id, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		order.BusinessNumber, order.Status, order.Currency.ID, order.Total, branch, order.Comment,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		err := tx.QueryRowContext(ctx,
			"INSERT INTO order_lines (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4) RETURNING id",
			line.OrderID, line.ProductID, line.Quantity, line.UnitPrice,
		).Scan(&line.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresOrderRepo) FindPaidWithoutPayment(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT"+orderColumns+orderFrom+`
		WHERE o.status_id = $1
		  AND o.updated_at < $2
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)
		ORDER BY o.id`,
		domain.OrderPaid, time.Now().Add(-olderThan),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}
