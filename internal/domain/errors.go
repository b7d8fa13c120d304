package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrGateway           = errors.New("payment gateway error")
	ErrOrderResolution   = errors.New("order resolution failed")
	ErrInventory         = errors.New("inventory error")
	ErrMalformedCallback = errors.New("malformed gateway callback")
	ErrDuplicatePayment  = errors.New("duplicate gateway reference")
	ErrDuplicateCallback = errors.New("callback already processed")
	ErrDuplicateCharge   = errors.New("second charge for an already paid order")
	ErrStockConflict     = errors.New("stock changed concurrently")
)
