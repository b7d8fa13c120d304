package webpay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateTransaction(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transactionsPath, r.URL.Path)
		assert.Equal(t, "597055555532", r.Header.Get("Tbk-Api-Key-Id"))
		assert.Equal(t, "secret", r.Header.Get("Tbk-Api-Key-Secret"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-1","url":"https://webpay3gint.transbank.cl/webpayserver/initTransaction"}`))
	}))
	defer srv.Close()

	c := NewClient("597055555532", "secret", WithBaseURL(srv.URL))
	resp, err := c.CreateTransaction(context.Background(), "OC-1", "SESS-1-1", decimal.NewFromInt(11900), "http://localhost/retorno")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, "OC-1", got["buy_order"])
	assert.Equal(t, "SESS-1-1", got["session_id"])
	assert.Equal(t, float64(11900), got["amount"])
	assert.Equal(t, "http://localhost/retorno", got["return_url"])
}

func TestClient_ConfirmTransaction_KeepsNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, transactionsPath+"/tok-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"AUTHORIZED","response_code":0,"amount":11900,"buy_order":"OC-9","authorization_code":"ABC123"}`))
	}))
	defer srv.Close()

	c := NewClient("code", "key", WithBaseURL(srv.URL))
	raw, err := c.ConfirmTransaction(context.Background(), "tok-9")
	require.NoError(t, err)

	assert.Equal(t, json.Number("0"), raw["response_code"])
	assert.Equal(t, json.Number("11900"), raw["amount"])
	assert.Equal(t, "OC-9", raw["buy_order"])
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_message":"Invalid status 2 for transaction while authorizing"}`))
	}))
	defer srv.Close()

	c := NewClient("code", "key", WithBaseURL(srv.URL))
	_, err := c.ConfirmTransaction(context.Background(), "tok")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "Invalid status")
}

func TestClient_ConfirmHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient("code", "key", WithBaseURL(srv.URL))
	_, err := c.ConfirmTransaction(ctx, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockGateway_CommitOnce(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway()

	created, err := g.CreateTransaction(ctx, "OC-5", "SESS-5", decimal.NewFromInt(990), "http://localhost/retorno")
	require.NoError(t, err)

	raw, err := g.ConfirmTransaction(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, "AUTHORIZED", raw["status"])
	assert.Equal(t, "OC-5", raw["buy_order"])

	_, err = g.ConfirmTransaction(ctx, created.Token)
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))

	_, err = g.ConfirmTransaction(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestMockGateway_DelayRespectsContext(t *testing.T) {
	g := NewMockGateway()
	g.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.ConfirmTransaction(ctx, "any")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
