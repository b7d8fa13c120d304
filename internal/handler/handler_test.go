package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-payments/internal/domain"
	"storefront-payments/internal/infrastructure/webpay"
	"storefront-payments/internal/repo/inmemory"
	"storefront-payments/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticHealth map[string]string

func (h staticHealth) Health() map[string]string { return h }

type testEnv struct {
	server  *Server
	store   *inmemory.Store
	gateway *webpay.MockGateway
	order   *domain.Order
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := inmemory.NewStore()
	order := &domain.Order{
		BusinessNumber: "ORD-2001",
		Currency:       domain.Currency{ID: 1, Code: "CLP", Decimals: 0},
		Total:          decimal.NewFromInt(11900),
		BranchID:       1,
		Lines:          []domain.OrderLine{{ProductID: 5, Quantity: 1, UnitPrice: decimal.NewFromInt(11900)}},
	}
	require.NoError(t, store.Orders().CreateOrder(ctx, order))
	require.NoError(t, store.Inventory().CreateEntry(ctx, &domain.InventoryEntry{ProductID: 5, BranchID: 1, Stock: 3}))

	gateway := webpay.NewMockGateway()
	svc := service.NewPaymentService(store.Orders(), store.Payments(), store.Inventory(), gateway, service.Config{
		FrontendURL:       "http://shop.test",
		ReturnURL:         "http://api.test/api/pagos/webpay/retorno",
		MethodID:          4,
		DefaultBranchID:   1,
		DefaultCurrencyID: 1,
		ConfirmTimeout:    time.Second,
	}, service.WithLogger(logger))

	server := NewServer(svc, staticHealth{"status": "up"}, logger, []string{"http://shop.test"})
	return &testEnv{server: server, store: store, gateway: gateway, order: order}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/pagos/webpay/crear", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func (e *testEnv) startPayment(t *testing.T) createTransactionResponse {
	t.Helper()
	w := e.create(t, `{"id_pedido": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp createTransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func redirectTo(t *testing.T, w *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code)
	u, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.test", u.Host)
	assert.Equal(t, "/pago/resultado", u.Path)
	return u.Query()
}

func TestCreateTransaction(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.startPayment(t)
		assert.NotEmpty(t, resp.URL)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "ORD-2001", resp.BuyOrder)
		assert.True(t, strings.HasPrefix(resp.SessionID, "SESS-1-"))
	})

	tests := []struct {
		name   string
		body   string
		setup  func(t *testing.T, env *testEnv)
		status int
	}{
		{name: "missing id", body: `{}`, status: http.StatusBadRequest},
		{name: "not json", body: `id_pedido=1`, status: http.StatusBadRequest},
		{name: "unknown order", body: `{"id_pedido": 404}`, status: http.StatusNotFound},
		{
			name: "already paid",
			body: `{"id_pedido": 1}`,
			setup: func(t *testing.T, env *testEnv) {
				require.NoError(t, env.store.Orders().UpdateOrderStatus(context.Background(), env.order.ID, domain.OrderPaid, nil))
			},
			status: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(t, env)
			}
			w := env.create(t, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestReturnApprovedViaPost(t *testing.T) {
	env := newTestEnv(t)
	started := env.startPayment(t)

	form := url.Values{"token_ws": {started.Token}}
	req := httptest.NewRequest(http.MethodPost, "/api/pagos/webpay/retorno", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	q := redirectTo(t, env.do(req))
	assert.Equal(t, "exito", q.Get("estado"))
	assert.Equal(t, "ORD-2001", q.Get("orden"))
	assert.Equal(t, "11900", q.Get("monto"))

	order, err := env.store.Orders().FindById(context.Background(), env.order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, order.Status)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/pedido/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var payments []paymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payments))
	require.Len(t, payments, 1)
	assert.Equal(t, "11900", payments[0].Amount)
	assert.Equal(t, "Completado", payments[0].Status)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/"+strconv.FormatInt(payments[0].ID, 10), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var all []paymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, payments[0].GatewayReference, all[0].GatewayReference)
}

func TestReturnRejectedViaGet(t *testing.T) {
	env := newTestEnv(t)
	started := env.startPayment(t)
	env.gateway.Script(started.Token, webpay.RawCommit{
		"status":        "FAILED",
		"response_code": json.Number("-1"),
		"buy_order":     "ORD-2001",
	})

	q := redirectTo(t, env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/webpay/retorno?token_ws="+started.Token, nil)))
	assert.Equal(t, "fallido", q.Get("estado"))
	assert.False(t, q.Has("monto"))
}

func TestReturnAborted(t *testing.T) {
	env := newTestEnv(t)
	env.startPayment(t)

	q := redirectTo(t, env.do(httptest.NewRequest(http.MethodGet,
		"/api/pagos/webpay/retorno?TBK_TOKEN=abc&TBK_ORDEN_COMPRA=ORD-2001&TBK_ID_SESION=SESS-1", nil)))
	assert.Equal(t, "anulado", q.Get("estado"))

	order, err := env.store.Orders().FindById(context.Background(), env.order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, order.Status)
}

func TestReturnMalformed(t *testing.T) {
	env := newTestEnv(t)
	q := redirectTo(t, env.do(httptest.NewRequest(http.MethodPost, "/api/pagos/webpay/retorno", nil)))
	assert.Equal(t, "error", q.Get("estado"))
	assert.NotEmpty(t, q.Get("mensaje"))
}

func TestPaymentQueries(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/99", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/pedido/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/pagos/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"up"}`, w.Body.String())

	down := NewServer(nil, staticHealth{"status": "down"}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	w = httptest.NewRecorder()
	down.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/pagos/webpay/crear", nil)
	req.Header.Set("Origin", "http://shop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := env.do(req)
	assert.Equal(t, "http://shop.test", w.Header().Get("Access-Control-Allow-Origin"))
}
