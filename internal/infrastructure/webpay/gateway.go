package webpay

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the hosted-payment boundary: create a transaction the payer is
// redirected to, then commit it once the payer comes back.
type Gateway interface {
	CreateTransaction(ctx context.Context, buyOrder, sessionID string, amount decimal.Decimal, returnURL string) (*CreateResponse, error)
	ConfirmTransaction(ctx context.Context, token string) (RawCommit, error)
}

type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// RawCommit is the commit body exactly as decoded, numbers kept as
// json.Number. Field names differ across API and SDK versions so nothing
// here is trusted until it is normalized.
type RawCommit map[string]any
