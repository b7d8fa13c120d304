package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"storefront-payments/internal/domain"
	"storefront-payments/internal/infrastructure/webpay"
	"storefront-payments/internal/repo/inmemory"
	"storefront-payments/internal/service"
	"storefront-payments/internal/worker"
)

var simulateVerbose bool

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the payment flows against in-memory stores and a mock gateway",
	Long: `Run approved, rejected, aborted, timed out and out-of-stock payments
end to end without a database or Transbank, printing the redirect and the
stored order state after each one.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().BoolVarP(&simulateVerbose, "verbose", "v", false, "print service logs to stderr")
}

type scenario struct {
	name     string
	stock    int
	quantity int
	// prepare runs between Initiate and the callback and returns the fields
	// Transbank would send back.
	prepare func(gw *webpay.MockGateway, started *service.Initiation) service.CallbackFields
}

var scenarios = []scenario{
	{
		name: "approved",
		prepare: func(gw *webpay.MockGateway, started *service.Initiation) service.CallbackFields {
			gw.Script(started.Token, webpay.RawCommit{
				"status":             "AUTHORIZED",
				"response_code":      json.Number("0"),
				"buy_order":          started.BusinessOrderNumber,
				"session_id":         started.SessionID,
				"amount":             json.Number(started.Amount.String()),
				"authorization_code": "ABC123",
			})
			return service.CallbackFields{Token: started.Token}
		},
	},
	{
		name: "rejected",
		prepare: func(gw *webpay.MockGateway, started *service.Initiation) service.CallbackFields {
			gw.Script(started.Token, webpay.RawCommit{
				"status":        "FAILED",
				"response_code": json.Number("-1"),
				"buy_order":     started.BusinessOrderNumber,
				"amount":        json.Number(started.Amount.String()),
			})
			return service.CallbackFields{Token: started.Token}
		},
	},
	{
		name: "aborted by payer",
		prepare: func(_ *webpay.MockGateway, started *service.Initiation) service.CallbackFields {
			return service.CallbackFields{
				AbortToken:          "TBK-" + started.Token,
				BusinessOrderNumber: started.BusinessOrderNumber,
				SessionID:           started.SessionID,
			}
		},
	},
	{
		name: "gateway timeout",
		prepare: func(gw *webpay.MockGateway, started *service.Initiation) service.CallbackFields {
			gw.SetDelay(time.Second)
			return service.CallbackFields{Token: started.Token}
		},
	},
	{
		name:     "out of stock",
		stock:    5,
		quantity: 7,
		prepare: func(_ *webpay.MockGateway, started *service.Initiation) service.CallbackFields {
			return service.CallbackFields{Token: started.Token}
		},
	},
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	var logSink io.Writer = io.Discard
	if simulateVerbose {
		logSink = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logSink, nil))

	clp := domain.Currency{ID: 1, Code: "CLP", Decimals: 0}

	fmt.Fprintf(out, "--- STARTING SIMULATION (%d SCENARIOS) ---\n", len(scenarios))
	for i, sc := range scenarios {
		store := inmemory.NewStore()
		gw := webpay.NewMockGateway()
		svc := service.NewPaymentService(store.Orders(), store.Payments(), store.Inventory(), gw, service.Config{
			FrontendURL:       "http://localhost:5173",
			ReturnURL:         "http://localhost:8080/api/pagos/webpay/retorno",
			MethodID:          4,
			DefaultBranchID:   1,
			DefaultCurrencyID: clp.ID,
			ConfirmTimeout:    100 * time.Millisecond,
		}, service.WithLogger(logger))

		stock, quantity := sc.stock, sc.quantity
		if stock == 0 {
			stock, quantity = 10, 1
		}
		order := &domain.Order{
			BusinessNumber: fmt.Sprintf("SIM-%03d", i+1),
			Currency:       clp,
			Total:          decimal.NewFromInt(11900),
			BranchID:       1,
			Lines:          []domain.OrderLine{{ProductID: 1, Quantity: quantity, UnitPrice: decimal.NewFromInt(11900)}},
		}
		if err := store.Orders().CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := store.Inventory().CreateEntry(ctx, &domain.InventoryEntry{ProductID: 1, BranchID: 1, Stock: stock}); err != nil {
			return err
		}

		fmt.Fprintf(out, "[%d] %s (order %s) ... ", i+1, sc.name, order.BusinessNumber)
		started, err := svc.Initiate(ctx, order.ID)
		if err != nil {
			fmt.Fprintf(out, "INITIATE FAILED: %v\n", err)
			continue
		}

		result := svc.HandleCallback(ctx, sc.prepare(gw, started))
		fmt.Fprintf(out, "%s\n", result.Outcome)
		if result.Err != nil {
			fmt.Fprintf(out, "    -> error: %v\n", result.Err)
		}
		fmt.Fprintf(out, "    -> redirect: %s\n", svc.RedirectURL(result))

		fresh, _ := store.Orders().FindById(ctx, order.ID)
		payments, _ := svc.ListOrderPayments(ctx, order.ID)
		entry, _ := store.Inventory().GetStock(ctx, 1, 1)
		fmt.Fprintf(out, "    -> order: %s, payments: %d, stock: %d\n", fresh.Status, len(payments), entry.Stock)

		orphans, err := worker.NewReconciliationWorker(store.Orders(), -time.Second, time.Minute, logger).RunOnce(ctx)
		if err == nil && len(orphans) > 0 {
			fmt.Fprintf(out, "    -> needs reconciliation: %d order(s)\n", len(orphans))
		}
		fmt.Fprintln(out, "---------------------------------------------------")
	}
	return nil
}
