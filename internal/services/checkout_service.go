package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/payments"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const (
	checkoutProvider      = "stripe"
	checkoutPaymentMethod = "stripe_checkout"
)

var (
	// ErrCheckoutInvalidInput indicates malformed checkout input.
	ErrCheckoutInvalidInput = newKindError(ErrInvalidArgument, "checkout service: invalid input")
	// ErrCheckoutOrderNotFound indicates the order does not exist.
	ErrCheckoutOrderNotFound = newKindError(ErrNotFound, "checkout service: order not found")
	// ErrCheckoutInvalidState indicates the order cannot be paid by this caller.
	ErrCheckoutInvalidState = newKindError(ErrInvalidState, "checkout service: order is not payable")
	// ErrCheckoutProviderFailure wraps payment provider errors.
	ErrCheckoutProviderFailure = newKindError(ErrUnavailable, "checkout service: payment provider failure")
	// ErrCheckoutUnavailable indicates backend failures.
	ErrCheckoutUnavailable = newKindError(ErrUnavailable, "checkout service: unavailable")
)

// CheckoutServiceDeps wires collaborators for hosted checkout.
type CheckoutServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   PaymentService
	Provider   payments.Provider
	SuccessURL string
	CancelURL  string
	Currency   string
	Clock      func() time.Time
	Logger     Logger
}

type checkoutService struct {
	orders     repositories.OrderRepository
	payments   PaymentService
	provider   payments.Provider
	successURL string
	cancelURL  string
	currency   string
	now        func() time.Time
	logger     Logger
	errs       repoErrorMapping
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment service is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		provider:   deps.Provider,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		currency:   currency,
		now:        utcClock(deps.Clock),
		logger:     logger,
		errs:       repoErrorMapping{notFound: ErrCheckoutOrderNotFound, unavailable: ErrCheckoutUnavailable},
	}, nil
}

// CreateCheckoutSession records a PENDING payment and opens a Stripe Checkout session for it.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CheckoutCommand) (CheckoutSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CheckoutSession{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CheckoutSession{}, s.errs.translate(err)
	}
	if order.CustomerID != strings.TrimSpace(cmd.CustomerID) {
		return CheckoutSession{}, fmt.Errorf("%w: order %s belongs to another customer", ErrCheckoutInvalidState, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		return CheckoutSession{}, fmt.Errorf("%w: order %s is %s", ErrCheckoutInvalidState, orderID, order.Status)
	}
	if !order.TotalAmount.IsPositive() {
		return CheckoutSession{}, fmt.Errorf("%w: order amount must be positive", ErrCheckoutInvalidInput)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = order.Currency
	}
	if currency == "" {
		currency = s.currency
	}

	payment, err := s.payments.CreatePendingPayment(ctx, order, order.TotalAmount, checkoutPaymentMethod)
	if err != nil {
		return CheckoutSession{}, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Amount:            domain.MinorUnits(order.TotalAmount),
		Currency:          strings.ToLower(currency),
		CustomerEmail:     strings.TrimSpace(cmd.CustomerEmail),
		ClientReferenceID: order.ID,
		ProductName:       "Order #" + order.ID,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		Metadata: map[string]string{
			"order_id":    order.ID,
			"customer_id": order.CustomerID,
			"payment_id":  payment.ID,
		},
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
	})
	if err != nil {
		s.logger(ctx, "checkout.session.failed", map[string]any{
			"orderId":   order.ID,
			"paymentId": payment.ID,
			"error":     err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("%w: %w", ErrCheckoutProviderFailure, err)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":   order.ID,
		"paymentId": payment.ID,
		"sessionId": session.ID,
	})
	provider := session.Provider
	if provider == "" {
		provider = checkoutProvider
	}
	return CheckoutSession{
		SessionID:   session.ID,
		PSP:         provider,
		RedirectURL: session.RedirectURL,
		PaymentID:   payment.ID,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}
