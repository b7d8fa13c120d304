package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema covers only the tables the payment flow reads or mutates.
const Schema = `
CREATE TABLE IF NOT EXISTS currencies (
	id       BIGINT PRIMARY KEY,
	code     TEXT NOT NULL UNIQUE,
	decimals INT NOT NULL DEFAULT 0
);

INSERT INTO currencies (id, code, decimals) VALUES (1, 'CLP', 0), (2, 'USD', 2)
ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS orders (
	id              BIGSERIAL PRIMARY KEY,
	business_number TEXT NOT NULL,
	status_id       INT NOT NULL DEFAULT 1,
	currency_id     BIGINT NOT NULL DEFAULT 1 REFERENCES currencies (id),
	total_with_tax  NUMERIC(14, 2) NOT NULL,
	branch_id       BIGINT,
	comment         TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS orders_business_number_idx ON orders (business_number, created_at DESC);

CREATE TABLE IF NOT EXISTS order_lines (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL,
	quantity   INT NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(14, 2) NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id                BIGSERIAL PRIMARY KEY,
	order_id          BIGINT NOT NULL REFERENCES orders (id),
	method_id         BIGINT NOT NULL,
	status            TEXT NOT NULL,
	paid_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	amount            NUMERIC(14, 2) NOT NULL,
	gateway_reference TEXT NOT NULL UNIQUE,
	currency_id       BIGINT NOT NULL DEFAULT 1 REFERENCES currencies (id)
);

CREATE TABLE IF NOT EXISTS branch_inventory (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL,
	branch_id  BIGINT NOT NULL,
	stock      INT NOT NULL CHECK (stock >= 0),
	UNIQUE (product_id, branch_id)
);
`

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
