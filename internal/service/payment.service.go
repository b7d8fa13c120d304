package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-payments/internal/config"
	"storefront-payments/internal/domain"
	"storefront-payments/internal/infrastructure/callbackguard"
	"storefront-payments/internal/infrastructure/webpay"
	"storefront-payments/internal/repo"
)

// CallbackGuard claims a gateway token before its callback is processed.
type CallbackGuard interface {
	Claim(ctx context.Context, token string) (bool, error)
}

type Config struct {
	FrontendURL       string
	ReturnURL         string
	MethodID          int64
	DefaultBranchID   int64
	DefaultCurrencyID int64
	ConfirmTimeout    time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		FrontendURL:       cfg.Frontend.URL,
		ReturnURL:         cfg.Webpay.ReturnURL,
		MethodID:          cfg.Webpay.MethodID,
		DefaultBranchID:   cfg.Store.DefaultBranchID,
		DefaultCurrencyID: cfg.Store.DefaultCurrencyID,
		ConfirmTimeout:    cfg.Webpay.ConfirmTimeout,
	}
}

type PaymentService struct {
	orders    repo.OrderRepo
	payments  repo.PaymentRepo
	inventory repo.InventoryRepo
	gateway   webpay.Gateway
	guard     CallbackGuard
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	reference func(authorizationCode string) string
}

type Option func(*PaymentService)

func WithGuard(g CallbackGuard) Option {
	return func(s *PaymentService) { s.guard = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *PaymentService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) { s.now = now }
}

func NewPaymentService(
	orders repo.OrderRepo,
	payments repo.PaymentRepo,
	inventory repo.InventoryRepo,
	gateway webpay.Gateway,
	cfg Config,
	opts ...Option,
) *PaymentService {
	s := &PaymentService{
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		gateway:   gateway,
		guard:     callbackguard.Noop{},
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		reference: gatewayReference,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// gatewayReference makes the stored reference unique per attempt; Transbank
// may hand out the same authorization code on retries.
func gatewayReference(authorizationCode string) string {
	if authorizationCode == "" {
		authorizationCode = "NOAUTH"
	}
	return authorizationCode + "-" + uuid.NewString()
}

type Initiation struct {
	RedirectURL         string
	Token               string
	BusinessOrderNumber string
	SessionID           string
	Amount              decimal.Decimal
}

// Initiate asks the gateway for a hosted transaction for orderID. It reads
// the order but writes nothing.
func (s *PaymentService) Initiate(ctx context.Context, orderID int64) (*Initiation, error) {
	order, err := s.orders.FindById(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	if order.Status == domain.OrderPaid {
		return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrAlreadyPaid)
	}

	sessionID := fmt.Sprintf("SESS-%d-%d-%s", order.ID, s.now().UnixMilli(), uuid.NewString()[:8])
	amount := order.Currency.MinorUnitAmount(order.Total)

	created, err := s.gateway.CreateTransaction(ctx, order.BusinessNumber, sessionID, amount, s.cfg.ReturnURL)
	if err != nil {
		s.logger.Error("webpay create transaction failed",
			"order_id", order.ID, "buy_order", order.BusinessNumber, "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: create transaction for order %d: %w", domain.ErrGateway, order.ID, err)
	}

	s.logger.Info("webpay transaction created",
		"order_id", order.ID, "buy_order", order.BusinessNumber, "session_id", sessionID, "amount", amount.String())

	return &Initiation{
		RedirectURL:         created.URL,
		Token:               created.Token,
		BusinessOrderNumber: order.BusinessNumber,
		SessionID:           sessionID,
		Amount:              amount,
	}, nil
}

// HandleCallback classifies the return callback and runs the matching flow.
// It always returns a Result; nothing here is surfaced as a raw error.
func (s *PaymentService) HandleCallback(ctx context.Context, fields CallbackFields) *Result {
	cb := ClassifyCallback(fields)
	s.logger.Info("webpay callback received",
		"kind", cb.Kind.String(), "token", fields.Token, "abort_token", fields.AbortToken,
		"buy_order", fields.BusinessOrderNumber, "session_id", fields.SessionID)

	switch cb.Kind {
	case CallbackAbort:
		return s.HandleAbort(ctx, cb.BusinessOrderNumber, cb.AbortToken)
	case CallbackConfirm:
		return s.HandleConfirm(ctx, cb.Token)
	default:
		s.logger.Error("webpay callback carried neither token_ws nor TBK_TOKEN",
			"buy_order", fields.BusinessOrderNumber, "session_id", fields.SessionID)
		return &Result{
			Outcome:             OutcomeError,
			BusinessOrderNumber: cb.BusinessOrderNumber,
			Message:             msgMalformed,
			Err:                 domain.ErrMalformedCallback,
		}
	}
}

// HandleAbort cancels the order behind an abandoned payment when it can be
// found. Failures are logged only: the payer always sees a cancellation.
func (s *PaymentService) HandleAbort(ctx context.Context, businessNumber, abortToken string) *Result {
	log := s.logger.With("flow", "abort", "buy_order", businessNumber, "abort_token", abortToken)
	result := &Result{Outcome: OutcomeAborted, BusinessOrderNumber: businessNumber, Message: msgAborted}

	if businessNumber == "" {
		log.Warn("abort without TBK_ORDEN_COMPRA, no order to update")
		return result
	}

	order, err := s.orders.FindByBusinessNumber(ctx, businessNumber)
	if err != nil {
		log.Error("lookup of aborted order failed", "error", err)
		return result
	}
	if order == nil {
		log.Warn("aborted order not found")
		return result
	}

	comment := fmt.Sprintf("Pago anulado/abandonado por usuario. TBK_TOKEN: %s", abortToken)
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderCancelled, &comment); err != nil {
		log.Error("could not cancel aborted order", "order_id", order.ID, "error", err)
		return result
	}

	log.Info("order cancelled after abort", "order_id", order.ID)
	return result
}

// HandleConfirm commits token with the gateway and applies the outcome to
// the stored order.
//
// On approval the order is marked Paid, the payment recorded and stock
// decremented, in that order. A failure in a later step is reported as an
// Error outcome and leaves the earlier writes in place for an operator to
// reconcile. A gateway failure or timeout leaves the order untouched.
func (s *PaymentService) HandleConfirm(ctx context.Context, token string) *Result {
	log := s.logger.With("flow", "confirm", "token", token)

	claimed, err := s.guard.Claim(ctx, token)
	switch {
	case err != nil:
		log.Warn("callback guard unavailable, relying on store guards", "error", err)
	case !claimed:
		log.Warn("duplicate callback delivery ignored")
		return s.errorResult("", fmt.Errorf("%w: token %s", domain.ErrDuplicateCallback, token))
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	raw, err := s.gateway.ConfirmTransaction(confirmCtx, token)
	cancel()
	if err != nil {
		log.Error("webpay commit failed, order left untouched", "error", err)
		return s.errorResult("", fmt.Errorf("%w: commit: %w", domain.ErrGateway, err))
	}

	commit := NormalizeCommit(raw, s.now)
	log = log.With(
		"buy_order", commit.BuyOrder,
		"status", commit.Status,
		"response_code", commit.ResponseCodeString(),
		"amount", commit.Amount.String(),
	)

	order, err := s.resolveOrder(ctx, commit.BuyOrder)
	if err != nil {
		log.Error("confirmed transaction has no order", "error", err, "raw", raw)
		return s.errorResult(commit.BuyOrder, err)
	}
	log = log.With("order_id", order.ID)

	if !commit.Authorized() {
		return s.applyRejection(ctx, log, order, commit)
	}
	return s.applyApproval(ctx, log, order, commit, raw)
}

func (s *PaymentService) resolveOrder(ctx context.Context, businessNumber string) (*domain.Order, error) {
	if strings.TrimSpace(businessNumber) == "" {
		return nil, fmt.Errorf("%w: commit response carried no buy order", domain.ErrOrderResolution)
	}
	order, err := s.orders.FindByBusinessNumber(ctx, businessNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %q: %w", domain.ErrOrderResolution, businessNumber, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: no order with business number %q", domain.ErrOrderResolution, businessNumber)
	}
	return order, nil
}

func (s *PaymentService) applyApproval(ctx context.Context, log *slog.Logger, order *domain.Order, commit Commit, raw webpay.RawCommit) *Result {
	result := &Result{
		Outcome:             OutcomeSuccess,
		BusinessOrderNumber: commit.BuyOrder,
		Amount:              decimal.NullDecimal{Decimal: commit.Amount, Valid: true},
		Message:             msgSuccess,
	}

	if expected := order.Currency.MinorUnitAmount(order.Total); !expected.Equal(commit.Amount) {
		log.Warn("confirmed amount differs from order total", "expected", expected.String())
	}

	err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderPaid, nil)
	if errors.Is(err, domain.ErrAlreadyPaid) {
		return s.applyLateApproval(ctx, log, order, commit, raw, result)
	}
	if err != nil {
		log.Error("could not mark order paid", "error", err, "raw", raw)
		return s.errorResult(commit.BuyOrder, fmt.Errorf("mark order %d paid: %w", order.ID, err))
	}

	payment := s.newPayment(order, commit, domain.PaymentCompleted)
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		log.Error("order is paid but the payment record failed, reconcile manually", "error", err, "raw", raw)
		return s.errorResult(commit.BuyOrder, fmt.Errorf("record payment for order %d: %w", order.ID, err))
	}
	log = log.With("payment_id", payment.ID, "gateway_reference", payment.GatewayReference)

	if err := s.decrementStock(ctx, log, order.ID); err != nil {
		log.Error("order is paid and recorded but stock adjustment failed, reconcile manually", "error", err)
		return s.errorResult(commit.BuyOrder, err)
	}

	log.Info("payment approved")
	return result
}

func (s *PaymentService) newPayment(order *domain.Order, commit Commit, status domain.PaymentStatus) *domain.Payment {
	currencyID := order.Currency.ID
	if currencyID == 0 {
		currencyID = s.cfg.DefaultCurrencyID
	}
	return &domain.Payment{
		OrderID:          order.ID,
		MethodID:         s.cfg.MethodID,
		Status:           status,
		PaidAt:           commit.TransactionDate,
		Amount:           commit.Amount,
		GatewayReference: s.reference(commit.AuthorizationCode),
		CurrencyID:       currencyID,
	}
}

// applyLateApproval handles an approval for an order that is already Paid.
// A replay of the charge already on record is a no-op success. Any other
// approval is a second charge: it is recorded as a duplicate payment for
// refund and the payer is told to contact support.
func (s *PaymentService) applyLateApproval(ctx context.Context, log *slog.Logger, order *domain.Order, commit Commit, raw webpay.RawCommit, result *Result) *Result {
	log = log.With("authorization_code", commit.AuthorizationCode)
	chargeErr := fmt.Errorf("%w: order %d, authorization %q", domain.ErrDuplicateCharge, order.ID, commit.AuthorizationCode)

	existing, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		log.Error("approval for a paid order and its payments could not be read, reconcile manually", "error", err, "raw", raw)
		return s.errorResult(commit.BuyOrder, chargeErr)
	}

	if recorded := findCharge(existing, commit); recorded != nil {
		if recorded.Status == domain.PaymentDuplicate {
			log.Error("duplicate charge delivered again", "payment_id", recorded.ID, "raw", raw)
			return s.errorResult(commit.BuyOrder, chargeErr)
		}
		log.Warn("approval replayed for a recorded charge, skipping side effects", "payment_id", recorded.ID)
		return result
	}

	log.Error("second charge on an already paid order, refund required", "raw", raw)
	dup := s.newPayment(order, commit, domain.PaymentDuplicate)
	if err := s.payments.CreatePayment(ctx, dup); err != nil {
		log.Error("could not record the duplicate charge", "error", err, "raw", raw)
	} else {
		log.Warn("duplicate charge recorded", "payment_id", dup.ID, "gateway_reference", dup.GatewayReference)
	}
	return s.errorResult(commit.BuyOrder, chargeErr)
}

// findCharge returns the recorded payment carrying the commit's authorization
// code and amount, or nil. Without an authorization code nothing matches.
func findCharge(payments []domain.Payment, commit Commit) *domain.Payment {
	if commit.AuthorizationCode == "" {
		return nil
	}
	prefix := commit.AuthorizationCode + "-"
	for i := range payments {
		p := &payments[i]
		if strings.HasPrefix(p.GatewayReference, prefix) && p.Amount.Equal(commit.Amount) {
			return p
		}
	}
	return nil
}

func (s *PaymentService) decrementStock(ctx context.Context, log *slog.Logger, orderID int64) error {
	order, err := s.orders.FindWithLines(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%w: load lines of order %d: %w", domain.ErrInventory, orderID, err)
	}
	if order == nil {
		return fmt.Errorf("%w: order %d disappeared before stock adjustment", domain.ErrInventory, orderID)
	}
	if len(order.Lines) == 0 {
		log.Warn("order has no lines, stock not adjusted")
		return nil
	}

	branchID := order.BranchID
	if branchID == 0 {
		branchID = s.cfg.DefaultBranchID
	}

	for _, line := range order.Lines {
		if err := s.decrementLine(ctx, log, line, branchID); err != nil {
			return err
		}
	}
	return nil
}

const stockSwapAttempts = 3

// decrementLine takes line.Quantity off the branch stock with a
// compare-and-swap, re-reading when a concurrent approval moved the stock.
func (s *PaymentService) decrementLine(ctx context.Context, log *slog.Logger, line domain.OrderLine, branchID int64) error {
	for attempt := 1; ; attempt++ {
		entry, err := s.inventory.GetStock(ctx, line.ProductID, branchID)
		if err != nil {
			return fmt.Errorf("%w: read stock of product %d at branch %d: %w", domain.ErrInventory, line.ProductID, branchID, err)
		}
		if entry == nil {
			return fmt.Errorf("%w: no stock entry for product %d at branch %d", domain.ErrInventory, line.ProductID, branchID)
		}

		remaining := entry.Stock - line.Quantity
		if remaining < 0 {
			return fmt.Errorf("%w: insufficient stock for product %d at branch %d (have %d, need %d)",
				domain.ErrInventory, line.ProductID, branchID, entry.Stock, line.Quantity)
		}

		err = s.inventory.SwapStock(ctx, entry.ID, entry.Stock, remaining)
		if errors.Is(err, domain.ErrStockConflict) && attempt < stockSwapAttempts {
			log.Warn("stock moved during decrement, retrying", "product_id", line.ProductID, "attempt", attempt)
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: update stock of product %d: %w", domain.ErrInventory, line.ProductID, err)
		}
		log.Info("stock decremented", "product_id", line.ProductID, "branch_id", branchID, "stock", remaining)
		return nil
	}
}

func (s *PaymentService) applyRejection(ctx context.Context, log *slog.Logger, order *domain.Order, commit Commit) *Result {
	code := commit.ResponseCodeString()
	comment := fmt.Sprintf("Pago rechazado. Código: %s. Transbank Status: %s", code, commit.Status)

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderCancelled, &comment); err != nil {
		log.Error("could not mark rejected order as failed", "error", err)
	} else {
		log.Info("payment rejected")
	}

	return &Result{
		Outcome:             OutcomeRejected,
		BusinessOrderNumber: commit.BuyOrder,
		Amount:              decimal.NullDecimal{Decimal: commit.Amount, Valid: true},
		Message:             fmt.Sprintf("Pago rechazado. Código: %s. Intente nuevamente.", code),
	}
}

func (s *PaymentService) errorResult(businessNumber string, err error) *Result {
	return &Result{
		Outcome:             OutcomeError,
		BusinessOrderNumber: businessNumber,
		Message:             errorMessage(err),
		Err:                 err,
	}
}

// RedirectURL is where the payer's browser goes after a callback.
func (s *PaymentService) RedirectURL(r *Result) string {
	return ResultURL(s.cfg.FrontendURL, r)
}

func (s *PaymentService) FindPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	p, err := s.payments.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("payment %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ListPayments returns every payment, newest first.
func (s *PaymentService) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	payments, err := s.payments.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return payments, nil
}

// ListOrderPayments returns an empty slice, not an error, when the order
// has no payments.
func (s *PaymentService) ListOrderPayments(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	payments, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return payments, nil
}
