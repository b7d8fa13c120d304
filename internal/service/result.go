package service

import (
	"errors"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"storefront-payments/internal/domain"
)

type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeSuccess
	OutcomeRejected
	OutcomeAborted
)

// Estado is the value of the estado query parameter on the result page.
func (o Outcome) Estado() string {
	switch o {
	case OutcomeSuccess:
		return "exito"
	case OutcomeRejected:
		return "fallido"
	case OutcomeAborted:
		return "anulado"
	default:
		return "error"
	}
}

func (o Outcome) String() string { return o.Estado() }

// Result is the terminal state of one callback. Err is kept for logs and
// tests and never rendered to the payer.
type Result struct {
	Outcome             Outcome
	BusinessOrderNumber string
	Amount              decimal.NullDecimal
	Message             string
	Err                 error
}

const (
	msgSuccess    = "Pago aprobado"
	msgAborted    = "Pago anulado por el usuario"
	msgMalformed  = "Error en el retorno de Transbank. No se recibieron tokens."
	msgGateway    = "No se pudo confirmar el pago con Transbank. Revise el estado de su pedido o contacte a soporte."
	msgResolution = "No se encontró el pedido asociado al pago. Contacte a soporte."
	msgFulfilment = "El pago fue recibido pero hubo un problema al completar el pedido. Contacte a soporte."
	msgDuplicate  = "La transacción ya fue procesada."
	msgCharged    = "El pedido ya estaba pagado y se registró un segundo cargo. Contacte a soporte para su reembolso."
	msgUnknown    = "Error desconocido"
)

func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateCharge):
		return msgCharged
	case errors.Is(err, domain.ErrDuplicateCallback):
		return msgDuplicate
	case errors.Is(err, domain.ErrGateway):
		return msgGateway
	case errors.Is(err, domain.ErrOrderResolution):
		return msgResolution
	case errors.Is(err, domain.ErrMalformedCallback):
		return msgMalformed
	case err != nil:
		return msgFulfilment
	default:
		return msgUnknown
	}
}

// ResultURL renders r as a redirect to <frontendURL>/pago/resultado.
// monto is only sent for approved payments.
func ResultURL(frontendURL string, r *Result) string {
	q := url.Values{}
	q.Set("estado", r.Outcome.Estado())
	if r.BusinessOrderNumber != "" {
		q.Set("orden", r.BusinessOrderNumber)
	}
	if r.Outcome == OutcomeSuccess && r.Amount.Valid {
		q.Set("monto", r.Amount.Decimal.String())
	}
	msg := r.Message
	if msg == "" {
		msg = msgUnknown
	}
	q.Set("mensaje", msg)

	return strings.TrimRight(frontendURL, "/") + "/pago/resultado?" + q.Encode()
}
