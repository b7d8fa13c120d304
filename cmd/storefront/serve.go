package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"storefront-payments/internal/config"
	"storefront-payments/internal/database"
	"storefront-payments/internal/handler"
	"storefront-payments/internal/infrastructure/callbackguard"
	"storefront-payments/internal/infrastructure/webpay"
	"storefront-payments/internal/repo"
	"storefront-payments/internal/service"
	"storefront-payments/internal/worker"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the payments HTTP API",
	Long: `Start the payments HTTP API and the background reconciliation worker.

Examples:
  storefront serve
  storefront serve --config storefront.yaml --migrate`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	dbService := database.New(db, cfg.Database.Name)
	defer dbService.Close()

	if serveMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Println("schema applied")
	}

	orders := repo.NewOrderRepo(db)
	svc := service.NewPaymentService(
		orders,
		repo.NewPaymentRepo(db),
		repo.NewInventoryRepo(db),
		newGateway(cfg.Webpay),
		service.ConfigFrom(cfg),
		service.WithLogger(logger),
		service.WithGuard(newGuard(ctx, cfg.Redis, logger)),
	)

	if cfg.Reconcile.Interval > 0 {
		rw := worker.NewReconciliationWorker(orders, cfg.Reconcile.OlderThan, cfg.Reconcile.Interval, logger)
		go rw.Run(ctx)
	}

	server := handler.NewServer(svc, dbService, logger, cfg.Frontend.AllowedOrigins)
	if err := server.Run(ctx, ":"+cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newGateway(cfg config.Webpay) webpay.Gateway {
	switch cfg.Environment {
	case config.EnvMock:
		log.Println("webpay: using in-process mock gateway")
		return webpay.NewMockGateway()
	case config.EnvProduction:
		return webpay.NewClient(cfg.CommerceCode, cfg.APIKey, webpay.WithBaseURL(webpay.ProductionHost))
	default:
		return webpay.NewClient(cfg.CommerceCode, cfg.APIKey, webpay.WithBaseURL(webpay.IntegrationHost))
	}
}

// callbackGuardTTL outlives Transbank's retry window for a return callback.
const callbackGuardTTL = 24 * time.Hour

func newGuard(ctx context.Context, cfg config.Redis, logger *slog.Logger) service.CallbackGuard {
	if cfg.Addr == "" {
		return callbackguard.Noop{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, callback claims will fail open", "addr", cfg.Addr, "error", err)
	}
	return callbackguard.NewRedisGuard(client, callbackGuardTTL)
}
