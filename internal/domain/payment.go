package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "Completado"
	// PaymentDuplicate marks a charge taken after the order was already
	// paid. It is kept so the charge can be refunded.
	PaymentDuplicate PaymentStatus = "Duplicado"
)

type Payment struct {
	ID               int64
	OrderID          int64
	MethodID         int64
	Status           PaymentStatus
	PaidAt           time.Time
	Amount           decimal.Decimal
	GatewayReference string
	CurrencyID       int64
}
