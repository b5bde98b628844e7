package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/payments"
)

const (
	// EventCheckoutSessionCompleted is sent by Stripe when the customer paid.
	EventCheckoutSessionCompleted = "checkout.session.completed"
	// EventCheckoutSessionExpired is sent by Stripe when the session lapsed unpaid.
	EventCheckoutSessionExpired = "checkout.session.expired"

	paymentCompletedMessage = "Payment completed successfully"
	paymentExpiredMessage   = "Payment session expired"
	paymentRefundMessage    = "Payment received for a closed order; refund required"
	confirmationCurrency    = "EUR"
)

// CheckoutEventHandlerDeps wires the services driven by checkout session events.
type CheckoutEventHandlerDeps struct {
	Orders   OrderService
	Payments PaymentService
	// Carts is required by the completion handler only.
	Carts  CartService
	Logger Logger
}

type checkoutRefs struct {
	orderID         string
	customerID      string
	paymentID       string
	paymentIntentID string
}

func extractCheckoutRefs(event payments.WebhookEvent) (checkoutRefs, error) {
	if event.Session == nil {
		return checkoutRefs{}, fmt.Errorf("%w: event %s has no checkout session", ErrWebhookInvalidPayload, event.ID)
	}
	meta := event.Session.Metadata
	refs := checkoutRefs{
		orderID:         strings.TrimSpace(meta["order_id"]),
		customerID:      strings.TrimSpace(meta["customer_id"]),
		paymentID:       strings.TrimSpace(meta["payment_id"]),
		paymentIntentID: strings.TrimSpace(event.Session.PaymentIntentID),
	}
	if refs.orderID == "" {
		refs.orderID = strings.TrimSpace(event.Session.ClientReferenceID)
	}
	if refs.orderID == "" || refs.customerID == "" || refs.paymentID == "" {
		return checkoutRefs{}, fmt.Errorf("%w: event %s is missing order, customer or payment metadata", ErrWebhookInvalidPayload, event.ID)
	}
	return refs, nil
}

type checkoutCompletedHandler struct {
	orders   OrderService
	payments PaymentService
	carts    CartService
	logger   Logger
}

// NewCheckoutCompletedHandler marks the order PROCESSING, the payment COMPLETED, sends the
// confirmation and converts the cart.
func NewCheckoutCompletedHandler(deps CheckoutEventHandlerDeps) (WebhookEventHandler, error) {
	if deps.Orders == nil || deps.Payments == nil || deps.Carts == nil {
		return nil, errors.New("checkout completed handler: orders, payments and carts are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutCompletedHandler{orders: deps.Orders, payments: deps.Payments, carts: deps.Carts, logger: logger}, nil
}

func (h *checkoutCompletedHandler) CanHandle(eventType string) bool {
	return eventType == EventCheckoutSessionCompleted
}

func (h *checkoutCompletedHandler) Handle(ctx context.Context, event payments.WebhookEvent) error {
	refs, err := extractCheckoutRefs(event)
	if err != nil {
		return err
	}

	order, err := h.orders.UpdateOrderStatus(ctx, refs.orderID, domain.OrderStatusProcessing, refs.customerID)
	if errors.Is(err, ErrInvalidState) {
		return h.acknowledgeClosedOrder(ctx, event, refs)
	}
	if err != nil {
		return err
	}

	message := paymentCompletedMessage
	var txID *string
	if refs.paymentIntentID != "" {
		txID = &refs.paymentIntentID
	}
	if _, err := h.payments.UpdatePaymentStatus(ctx, refs.paymentID, domain.PaymentStatusCompleted, txID, &message); err != nil {
		return err
	}

	if err := h.orders.SendOrderConfirmation(ctx, order.ID, confirmationCurrency); err != nil {
		h.logger(ctx, "webhook.confirmation_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}

	if order.CartID != "" {
		if err := h.carts.UpdateCartStatus(ctx, order.CartID, domain.CartStatusConverted); err != nil {
			return err
		}
	}
	h.logger(ctx, "webhook.checkout.completed", map[string]any{
		"eventId":   event.ID,
		"orderId":   order.ID,
		"paymentId": refs.paymentID,
	})
	return nil
}

// acknowledgeClosedOrder handles a completed session for an order that can no longer move to
// PROCESSING. Only a cancelled order with an unsettled payment is flagged for refund; orders
// that already progressed were paid through an earlier event and are left untouched. The
// event is acknowledged either way so Stripe stops redelivering it.
func (h *checkoutCompletedHandler) acknowledgeClosedOrder(ctx context.Context, event payments.WebhookEvent, refs checkoutRefs) error {
	order, err := h.orders.GetOrder(ctx, refs.orderID, refs.customerID)
	if err != nil {
		return err
	}
	payment, err := h.payments.GetPayment(ctx, refs.paymentID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusCancelled || payment.Status == domain.PaymentStatusCompleted {
		h.logger(ctx, "webhook.checkout.completed_ignored", map[string]any{
			"eventId":       event.ID,
			"orderId":       refs.orderID,
			"orderStatus":   string(order.Status),
			"paymentStatus": string(payment.Status),
		})
		return nil
	}

	message := paymentRefundMessage
	var txID *string
	if refs.paymentIntentID != "" {
		txID = &refs.paymentIntentID
	}
	if _, err := h.payments.UpdatePaymentStatus(ctx, refs.paymentID, domain.PaymentStatusCompleted, txID, &message); err != nil {
		return err
	}
	h.logger(ctx, "webhook.checkout.completed_for_closed_order", map[string]any{
		"eventId":   event.ID,
		"orderId":   refs.orderID,
		"paymentId": refs.paymentID,
	})
	return nil
}

type checkoutExpiredHandler struct {
	orders   OrderService
	payments PaymentService
	logger   Logger
}

// NewCheckoutExpiredHandler cancels the order and fails the payment.
func NewCheckoutExpiredHandler(deps CheckoutEventHandlerDeps) (WebhookEventHandler, error) {
	if deps.Orders == nil || deps.Payments == nil {
		return nil, errors.New("checkout expired handler: orders and payments are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutExpiredHandler{orders: deps.Orders, payments: deps.Payments, logger: logger}, nil
}

func (h *checkoutExpiredHandler) CanHandle(eventType string) bool {
	return eventType == EventCheckoutSessionExpired
}

func (h *checkoutExpiredHandler) Handle(ctx context.Context, event payments.WebhookEvent) error {
	refs, err := extractCheckoutRefs(event)
	if err != nil {
		return err
	}
	if _, err := h.orders.UpdateOrderStatus(ctx, refs.orderID, domain.OrderStatusCancelled, refs.customerID); err != nil {
		return err
	}
	message := paymentExpiredMessage
	if _, err := h.payments.UpdatePaymentStatus(ctx, refs.paymentID, domain.PaymentStatusFailed, nil, &message); err != nil {
		return err
	}
	h.logger(ctx, "webhook.checkout.expired", map[string]any{
		"eventId":   event.ID,
		"orderId":   refs.orderID,
		"paymentId": refs.paymentID,
	})
	return nil
}
