package webpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownToken = errors.New("webpay mock: unknown token")

// MockTransaction is what the mock remembers about a created transaction.
type MockTransaction struct {
	Token     string
	BuyOrder  string
	SessionID string
	Amount    decimal.Decimal
	ReturnURL string
	Committed bool
}

// MockGateway is an in-process stand-in for Transbank. By default every
// commit comes back AUTHORIZED with response_code 0; Script overrides the
// body for a token, Fail makes the commit error, Delay makes it slow.
type MockGateway struct {
	mu           sync.RWMutex
	seq          int
	transactions map[string]*MockTransaction
	scripted     map[string]RawCommit
	failures     map[string]error
	delay        time.Duration
	now          func() time.Time
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		transactions: make(map[string]*MockTransaction),
		scripted:     make(map[string]RawCommit),
		failures:     make(map[string]error),
		now:          time.Now,
	}
}

func (g *MockGateway) CreateTransaction(ctx context.Context, buyOrder, sessionID string, amount decimal.Decimal, returnURL string) (*CreateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	token := fmt.Sprintf("mock-%s-%d", buyOrder, g.seq)
	g.transactions[token] = &MockTransaction{
		Token:     token,
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	}
	return &CreateResponse{Token: token, URL: "https://mock.webpay.local/init"}, nil
}

func (g *MockGateway) ConfirmTransaction(ctx context.Context, token string) (RawCommit, error) {
	g.mu.RLock()
	delay := g.delay
	g.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.failures[token]; ok {
		return nil, err
	}
	if body, ok := g.scripted[token]; ok {
		if tx, ok := g.transactions[token]; ok {
			tx.Committed = true
		}
		return body, nil
	}

	tx, ok := g.transactions[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	if tx.Committed {
		return nil, &APIError{StatusCode: 422, Message: "transaction already committed"}
	}
	tx.Committed = true

	return RawCommit{
		"vci":                 "TSY",
		"amount":              json.Number(tx.Amount.String()),
		"status":              "AUTHORIZED",
		"buy_order":           tx.BuyOrder,
		"session_id":          tx.SessionID,
		"accounting_date":     g.now().Format("0102"),
		"transaction_date":    g.now().UTC().Format(time.RFC3339Nano),
		"authorization_code":  fmt.Sprintf("%06d", 1213+g.seq),
		"payment_type_code":   "VN",
		"response_code":       json.Number("0"),
		"installments_number": json.Number("0"),
	}, nil
}

// Script fixes the commit body returned for token.
func (g *MockGateway) Script(token string, body RawCommit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripted[token] = body
}

func (g *MockGateway) Fail(token string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[token] = err
}

func (g *MockGateway) SetDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

func (g *MockGateway) Transaction(token string) (MockTransaction, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tx, ok := g.transactions[token]
	if !ok {
		return MockTransaction{}, false
	}
	return *tx, true
}
