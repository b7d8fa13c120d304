package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront-payments/internal/domain"
	"storefront-payments/internal/service"
)

// Payments is the part of the payment orchestrator the HTTP surface uses.
type Payments interface {
	Initiate(ctx context.Context, orderID int64) (*service.Initiation, error)
	HandleCallback(ctx context.Context, fields service.CallbackFields) *service.Result
	RedirectURL(r *service.Result) string
	FindPayment(ctx context.Context, id int64) (*domain.Payment, error)
	ListOrderPayments(ctx context.Context, orderID int64) ([]domain.Payment, error)
	ListPayments(ctx context.Context) ([]domain.Payment, error)
}

type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	payments Payments
	health   HealthChecker
	logger   *slog.Logger
	router   *gin.Engine
}

func NewServer(payments Payments, health HealthChecker, logger *slog.Logger, allowedOrigins []string) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(allowedOrigins))

	s := &Server{
		payments: payments,
		health:   health,
		logger:   logger,
		router:   router,
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api/pagos")
	{
		api.POST("/webpay/crear", s.handleCreateTransaction)
		api.GET("/webpay/retorno", s.handleReturn)
		api.POST("/webpay/retorno", s.handleReturn)
		api.GET("/", s.handlePayments)
		api.GET("/pedido/:id_pedido", s.handleOrderPayments)
		api.GET("/:id", s.handlePayment)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
