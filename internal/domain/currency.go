package domain

import "github.com/shopspring/decimal"

type Currency struct {
	ID       int64
	Code     string
	Decimals int32
}

// MinorUnitAmount rounds amount to the smallest unit the currency can carry.
// Zero-decimal currencies such as CLP end up as whole integers.
func (c Currency) MinorUnitAmount(amount decimal.Decimal) decimal.Decimal {
	if c.Decimals < 0 {
		return amount.Round(0)
	}
	return amount.Round(c.Decimals)
}
