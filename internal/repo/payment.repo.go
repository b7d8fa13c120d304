package repo

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-payments/internal/domain"
)

type PaymentRepo interface {
	// CreatePayment fills payment.ID. A reused gateway reference yields
	// domain.ErrDuplicatePayment.
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindById(ctx context.Context, id int64) (*domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID int64) ([]domain.Payment, error)
	FindAll(ctx context.Context) ([]domain.Payment, error)
}

type PostgresPaymentRepo struct {
	db DBTX
}

func NewPaymentRepo(db DBTX) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

const paymentColumns = `id, order_id, method_id, status, paid_at, amount, gateway_reference, currency_id`

func (r *PostgresPaymentRepo) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `INSERT INTO payments (order_id, method_id, status, paid_at, amount, gateway_reference, currency_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := r.db.QueryRowContext(
		ctx, query,
		payment.OrderID, payment.MethodID, payment.Status, payment.PaidAt,
		payment.Amount, payment.GatewayReference, payment.CurrencyID,
	).Scan(&payment.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicatePayment, payment.GatewayReference)
	}
	return err
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.MethodID,
		&p.Status,
		&p.PaidAt,
		&p.Amount,
		&p.GatewayReference,
		&p.CurrencyID,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPaymentRepo) FindById(ctx context.Context, id int64) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresPaymentRepo) FindByOrderID(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	return r.list(ctx, "SELECT "+paymentColumns+" FROM payments WHERE order_id = $1 ORDER BY paid_at DESC, id DESC", orderID)
}

func (r *PostgresPaymentRepo) FindAll(ctx context.Context) ([]domain.Payment, error) {
	return r.list(ctx, "SELECT "+paymentColumns+" FROM payments ORDER BY paid_at DESC, id DESC")
}

func (r *PostgresPaymentRepo) list(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
