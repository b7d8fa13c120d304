package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront-payments/internal/infrastructure/webpay"
)

const (
	StatusAuthorized = "AUTHORIZED"
	StatusUnknown    = "UNKNOWN"

	// ResponseCodeApproved is Transbank's only approval code.
	ResponseCodeApproved = 0
)

// Commit is a commit response with every field the flow needs resolved.
type Commit struct {
	Status            string
	ResponseCode      *int
	BuyOrder          string
	SessionID         string
	Amount            decimal.Decimal
	AuthorizationCode string
	TransactionDate   time.Time
}

// Authorized is true only for status AUTHORIZED together with a present
// response code equal to 0.
func (c Commit) Authorized() bool {
	return c.Status == StatusAuthorized && c.ResponseCode != nil && *c.ResponseCode == ResponseCodeApproved
}

func (c Commit) ResponseCodeString() string {
	if c.ResponseCode == nil {
		return "N/A"
	}
	return strconv.Itoa(*c.ResponseCode)
}

var (
	statusKeys   = []string{"status", "Status"}
	codeKeys     = []string{"response_code", "responseCode", "ResponseCode"}
	buyOrderKeys = []string{"buy_order", "buyOrder", "BuyOrder"}
	sessionKeys  = []string{"session_id", "sessionId", "SessionId", "SessionID"}
	amountKeys   = []string{"amount", "Amount"}
	authKeys     = []string{"authorization_code", "authorizationCode", "AuthorizationCode"}
	dateKeys     = []string{"transaction_date", "transactionDate", "TransactionDate"}
)

// NormalizeCommit reads raw defensively. Missing or unreadable fields fall
// back to: status UNKNOWN, no response code, empty buy order, zero amount,
// empty authorization code and now for the transaction date.
func NormalizeCommit(raw webpay.RawCommit, now func() time.Time) Commit {
	c := Commit{
		Status:            stringField(raw, statusKeys...),
		ResponseCode:      intField(raw, codeKeys...),
		BuyOrder:          stringField(raw, buyOrderKeys...),
		SessionID:         stringField(raw, sessionKeys...),
		Amount:            decimalField(raw, amountKeys...),
		AuthorizationCode: stringField(raw, authKeys...),
	}
	if c.Status == "" {
		c.Status = StatusUnknown
	}
	if ts, ok := timeField(raw, dateKeys...); ok {
		c.TransactionDate = ts
	} else {
		c.TransactionDate = now()
	}
	return c
}

func lookup(raw webpay.RawCommit, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(raw webpay.RawCommit, keys ...string) string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func intField(raw webpay.RawCommit, keys ...string) *int {
	v, ok := lookup(raw, keys...)
	if !ok {
		return nil
	}

	var n int64
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil
		}
		n = i
	case float64:
		if t != math.Trunc(t) {
			return nil
		}
		n = int64(t)
	case int:
		n = int64(t)
	case int64:
		n = t
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}

	out := int(n)
	return &out
}

func decimalField(raw webpay.RawCommit, keys ...string) decimal.Decimal {
	v, ok := lookup(raw, keys...)
	if !ok {
		return decimal.Zero
	}
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02 15:04:05"}

func timeField(raw webpay.RawCommit, keys ...string) (time.Time, bool) {
	s := stringField(raw, keys...)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
