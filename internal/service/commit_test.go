package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-payments/internal/infrastructure/webpay"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func intPtr(i int) *int { return &i }

func TestCommitAuthorized(t *testing.T) {
	tests := []struct {
		name   string
		commit Commit
		want   bool
	}{
		{"authorized with code 0", Commit{Status: "AUTHORIZED", ResponseCode: intPtr(0)}, true},
		{"authorized without code", Commit{Status: "AUTHORIZED"}, false},
		{"authorized with code -1", Commit{Status: "AUTHORIZED", ResponseCode: intPtr(-1)}, false},
		{"failed with code 0", Commit{Status: "FAILED", ResponseCode: intPtr(0)}, false},
		{"lowercase status", Commit{Status: "authorized", ResponseCode: intPtr(0)}, false},
		{"unknown", Commit{Status: StatusUnknown}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.commit.Authorized())
		})
	}
}

func TestNormalizeCommit(t *testing.T) {
	t.Run("snake case body from the REST api", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{
			"status":             "AUTHORIZED",
			"response_code":      json.Number("0"),
			"buy_order":          "ORD-1",
			"session_id":         "SESS-1",
			"amount":             json.Number("11900"),
			"authorization_code": "ABC123",
			"transaction_date":   "2026-03-10T15:04:05.123Z",
		}, clock)

		assert.True(t, c.Authorized())
		assert.Equal(t, "ORD-1", c.BuyOrder)
		assert.Equal(t, "SESS-1", c.SessionID)
		assert.True(t, decimal.NewFromInt(11900).Equal(c.Amount))
		assert.Equal(t, "ABC123", c.AuthorizationCode)
		assert.Equal(t, time.Date(2026, 3, 10, 15, 4, 5, 123000000, time.UTC), c.TransactionDate.UTC())
	})

	t.Run("camel case keys", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{
			"status":            "AUTHORIZED",
			"responseCode":      float64(0),
			"buyOrder":          "ORD-2",
			"amount":            float64(5000),
			"authorizationCode": "XYZ",
		}, clock)

		assert.True(t, c.Authorized())
		assert.Equal(t, "ORD-2", c.BuyOrder)
		assert.True(t, decimal.NewFromInt(5000).Equal(c.Amount))
		assert.Equal(t, "XYZ", c.AuthorizationCode)
	})

	t.Run("pascal case keys and string code", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{
			"Status":       "AUTHORIZED",
			"ResponseCode": "0",
			"BuyOrder":     "ORD-3",
			"Amount":       "990.50",
		}, clock)

		assert.True(t, c.Authorized())
		assert.Equal(t, "ORD-3", c.BuyOrder)
		assert.Equal(t, "990.5", c.Amount.String())
	})

	t.Run("missing fields get fallbacks", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{}, clock)

		assert.Equal(t, StatusUnknown, c.Status)
		assert.Nil(t, c.ResponseCode)
		assert.Equal(t, "N/A", c.ResponseCodeString())
		assert.Empty(t, c.BuyOrder)
		assert.True(t, c.Amount.IsZero())
		assert.Empty(t, c.AuthorizationCode)
		assert.Equal(t, fixedNow, c.TransactionDate)
		assert.False(t, c.Authorized())
	})

	t.Run("unreadable code counts as absent", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{"status": "AUTHORIZED", "response_code": "cero"}, clock)
		assert.Nil(t, c.ResponseCode)
		assert.False(t, c.Authorized())
	})

	t.Run("rejection keeps its code", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{"status": "FAILED", "response_code": json.Number("-1")}, clock)
		require.NotNil(t, c.ResponseCode)
		assert.Equal(t, -1, *c.ResponseCode)
		assert.Equal(t, "-1", c.ResponseCodeString())
	})

	t.Run("bad date falls back to now", func(t *testing.T) {
		c := NormalizeCommit(webpay.RawCommit{"transaction_date": "yesterday"}, clock)
		assert.Equal(t, fixedNow, c.TransactionDate)
	})
}
