package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-payments/internal/domain"
)

type paymentResponse struct {
	ID               int64     `json:"id_pago"`
	OrderID          int64     `json:"id_pedido"`
	MethodID         int64     `json:"id_metodo"`
	Status           string    `json:"estado"`
	PaidAt           time.Time `json:"fecha_pago"`
	Amount           string    `json:"monto"`
	GatewayReference string    `json:"referencia_transaccion"`
	CurrencyID       int64     `json:"id_moneda"`
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		OrderID:          p.OrderID,
		MethodID:         p.MethodID,
		Status:           string(p.Status),
		PaidAt:           p.PaidAt,
		Amount:           p.Amount.String(),
		GatewayReference: p.GatewayReference,
		CurrencyID:       p.CurrencyID,
	}
}

func (s *Server) handlePayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id de pago inválido"})
		return
	}

	p, err := s.payments.FindPayment(c.Request.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pago no encontrado"})
		return
	}
	if err != nil {
		s.logger.Error("find payment failed", "payment_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener el pago"})
		return
	}

	c.JSON(http.StatusOK, toPaymentResponse(*p))
}

func (s *Server) handleOrderPayments(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id_pedido"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id de pedido inválido"})
		return
	}

	payments, err := s.payments.ListOrderPayments(c.Request.Context(), orderID)
	if err != nil {
		s.logger.Error("list order payments failed", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener los pagos del pedido"})
		return
	}

	c.JSON(http.StatusOK, toPaymentResponses(payments))
}

func (s *Server) handlePayments(c *gin.Context) {
	payments, err := s.payments.ListPayments(c.Request.Context())
	if err != nil {
		s.logger.Error("list payments failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener los pagos"})
		return
	}
	c.JSON(http.StatusOK, toPaymentResponses(payments))
}

func toPaymentResponses(payments []domain.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.health.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
