package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus mirrors the ids of the estado_pedido catalogue.
type OrderStatus int

const (
	OrderPending   OrderStatus = 1
	OrderPaid      OrderStatus = 3
	OrderCancelled OrderStatus = 8
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "PENDING"
	case OrderPaid:
		return "PAID"
	case OrderCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

type Order struct {
	ID             int64
	BusinessNumber string
	Status         OrderStatus
	Currency       Currency
	Total          decimal.Decimal // tax included
	BranchID       int64           // 0 when the order has no pickup branch
	Comment        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []OrderLine
}

type OrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}
