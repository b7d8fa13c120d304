package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"storefront-payments/internal/database"
	"storefront-payments/internal/domain"
	"storefront-payments/internal/repo"
)

var clp = domain.Currency{ID: 1, Code: "CLP", Decimals: 0}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func newOrder(number string, total int64, lines ...domain.OrderLine) *domain.Order {
	return &domain.Order{
		BusinessNumber: number,
		Currency:       clp,
		Total:          decimal.NewFromInt(total),
		BranchID:       1,
		Lines:          lines,
	}
}

func TestRepos_Postgres(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	orders := repo.NewOrderRepo(db)
	payments := repo.NewPaymentRepo(db)
	inventory := repo.NewInventoryRepo(db)

	t.Run("create and load order with lines", func(t *testing.T) {
		order := newOrder("OC-100", 11900, domain.OrderLine{ProductID: 7, Quantity: 2, UnitPrice: decimal.NewFromInt(5950)})
		require.NoError(t, orders.CreateOrder(ctx, order))
		require.NotZero(t, order.ID)

		got, err := orders.FindWithLines(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.OrderPending, got.Status)
		assert.Equal(t, "CLP", got.Currency.Code)
		assert.True(t, got.Total.Equal(decimal.NewFromInt(11900)))
		require.Len(t, got.Lines, 1)
		assert.Equal(t, 2, got.Lines[0].Quantity)
	})

	t.Run("missing order is nil without error", func(t *testing.T) {
		got, err := orders.FindById(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("business number resolves the most recent order", func(t *testing.T) {
		first := newOrder("OC-DUP", 1000)
		second := newOrder("OC-DUP", 2000)
		require.NoError(t, orders.CreateOrder(ctx, first))
		require.NoError(t, orders.CreateOrder(ctx, second))

		got, err := orders.FindByBusinessNumber(ctx, "OC-DUP")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("paid orders cannot transition again", func(t *testing.T) {
		order := newOrder("OC-PAID", 500)
		require.NoError(t, orders.CreateOrder(ctx, order))

		require.NoError(t, orders.UpdateOrderStatus(ctx, order.ID, domain.OrderPaid, nil))
		err := orders.UpdateOrderStatus(ctx, order.ID, domain.OrderPaid, nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

		comment := "late rejection"
		err = orders.UpdateOrderStatus(ctx, order.ID, domain.OrderCancelled, &comment)
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

		err = orders.UpdateOrderStatus(ctx, 999999, domain.OrderPaid, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("gateway reference is unique", func(t *testing.T) {
		order := newOrder("OC-PAY", 11900)
		require.NoError(t, orders.CreateOrder(ctx, order))

		p := &domain.Payment{
			OrderID:          order.ID,
			MethodID:         4,
			Status:           domain.PaymentCompleted,
			PaidAt:           time.Now().UTC(),
			Amount:           decimal.NewFromInt(11900),
			GatewayReference: "ABC123-1",
			CurrencyID:       1,
		}
		require.NoError(t, payments.CreatePayment(ctx, p))
		require.NotZero(t, p.ID)

		dup := *p
		dup.ID = 0
		assert.ErrorIs(t, payments.CreatePayment(ctx, &dup), domain.ErrDuplicatePayment)

		list, err := payments.FindByOrderID(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(11900)))

		none, err := payments.FindByOrderID(ctx, 999999)
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := payments.FindAll(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, all)
	})

	t.Run("stock update", func(t *testing.T) {
		entry := &domain.InventoryEntry{ProductID: 42, BranchID: 3, Stock: 5}
		require.NoError(t, inventory.CreateEntry(ctx, entry))

		got, err := inventory.GetStock(ctx, 42, 3)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 5, got.Stock)

		require.NoError(t, inventory.UpdateStock(ctx, entry.ID, 2))
		assert.ErrorIs(t, inventory.UpdateStock(ctx, entry.ID, -1), domain.ErrInventory)

		require.NoError(t, inventory.SwapStock(ctx, entry.ID, 2, 1))
		assert.ErrorIs(t, inventory.SwapStock(ctx, entry.ID, 2, 0), domain.ErrStockConflict)
		assert.ErrorIs(t, inventory.SwapStock(ctx, 999999, 1, 0), domain.ErrNotFound)
		got, err = inventory.GetStock(ctx, 42, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Stock)

		missing, err := inventory.GetStock(ctx, 42, 99)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("paid orders without payment are reported", func(t *testing.T) {
		order := newOrder("OC-ORPHAN", 700)
		require.NoError(t, orders.CreateOrder(ctx, order))
		require.NoError(t, orders.UpdateOrderStatus(ctx, order.ID, domain.OrderPaid, nil))

		found, err := orders.FindPaidWithoutPayment(ctx, -time.Minute)
		require.NoError(t, err)

		var ids []int64
		for _, o := range found {
			ids = append(ids, o.ID)
		}
		assert.Contains(t, ids, order.ID)
	})
}
