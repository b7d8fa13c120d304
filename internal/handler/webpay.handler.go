package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-payments/internal/domain"
	"storefront-payments/internal/service"
)

type createTransactionRequest struct {
	OrderID *int64 `json:"id_pedido"`
}

type createTransactionResponse struct {
	URL       string `json:"url_webpay"`
	Token     string `json:"token_ws"`
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_pedido es requerido"})
		return
	}

	started, err := s.payments.Initiate(c.Request.Context(), *req.OrderID)
	if err != nil {
		status, msg := initiateError(err)
		s.logger.Error("webpay initiation failed", "order_id", *req.OrderID, "status", status, "error", err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, createTransactionResponse{
		URL:       started.RedirectURL,
		Token:     started.Token,
		BuyOrder:  started.BusinessOrderNumber,
		SessionID: started.SessionID,
	})
}

func initiateError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Pedido no encontrado"
	case errors.Is(err, domain.ErrAlreadyPaid):
		return http.StatusConflict, "El pedido ya fue pagado"
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway, "No se pudo iniciar la transacción con Webpay"
	default:
		return http.StatusInternalServerError, "Error interno al iniciar el pago"
	}
}

// handleReturn is the URL Transbank sends the payer back to. It always
// answers with a redirect to the storefront result page.
func (s *Server) handleReturn(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		s.logger.Warn("unreadable webpay callback form", "error", err)
	}

	fields := service.ExtractCallbackFields(c.Request.Method, c.Request.URL.Query(), c.Request.PostForm)
	result := s.payments.HandleCallback(c.Request.Context(), fields)
	if result.Err != nil {
		s.logger.Error("webpay callback ended in error",
			"outcome", result.Outcome.String(), "buy_order", result.BusinessOrderNumber, "error", result.Err)
	}

	c.Redirect(http.StatusFound, s.payments.RedirectURL(result))
}
