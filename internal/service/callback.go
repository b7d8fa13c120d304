package service

import (
	"net/http"
	"net/url"
	"strings"
)

// Field names Transbank uses on the return URL.
const (
	FieldToken      = "token_ws"
	FieldAbortToken = "TBK_TOKEN"
	FieldBuyOrder   = "TBK_ORDEN_COMPRA"
	FieldSessionID  = "TBK_ID_SESION"
)

// CallbackFields is every value the return callback may carry, already
// pulled out of whichever part of the request it arrived in.
type CallbackFields struct {
	Token               string
	AbortToken          string
	BusinessOrderNumber string
	SessionID           string
}

// ExtractCallbackFields is the only place that knows where callback fields
// live. POST callbacks are read from the form body first, GET callbacks from
// the query string first; the other source is the fallback in both cases.
func ExtractCallbackFields(method string, query, form url.Values) CallbackFields {
	primary, secondary := query, form
	if strings.EqualFold(method, http.MethodPost) {
		primary, secondary = form, query
	}

	pick := func(name string) string {
		if v := strings.TrimSpace(primary.Get(name)); v != "" {
			return v
		}
		return strings.TrimSpace(secondary.Get(name))
	}

	return CallbackFields{
		Token:               pick(FieldToken),
		AbortToken:          pick(FieldAbortToken),
		BusinessOrderNumber: pick(FieldBuyOrder),
		SessionID:           pick(FieldSessionID),
	}
}

type CallbackKind int

const (
	CallbackMalformed CallbackKind = iota
	CallbackConfirm
	CallbackAbort
)

func (k CallbackKind) String() string {
	switch k {
	case CallbackConfirm:
		return "confirm"
	case CallbackAbort:
		return "abort"
	default:
		return "malformed"
	}
}

// Callback is the classified return callback. Token is set for Confirm;
// AbortToken and an optional BusinessOrderNumber for Abort.
type Callback struct {
	Kind                CallbackKind
	Token               string
	AbortToken          string
	BusinessOrderNumber string
}

// ClassifyCallback checks for an abort first, so an abort that also carries
// a confirmation token is never committed.
func ClassifyCallback(f CallbackFields) Callback {
	switch {
	case f.AbortToken != "":
		return Callback{Kind: CallbackAbort, AbortToken: f.AbortToken, BusinessOrderNumber: f.BusinessOrderNumber}
	case f.Token != "":
		return Callback{Kind: CallbackConfirm, Token: f.Token}
	default:
		return Callback{Kind: CallbackMalformed, BusinessOrderNumber: f.BusinessOrderNumber}
	}
}
