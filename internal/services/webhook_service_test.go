package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/payments"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/idempotency"
)

type stubVerifier struct {
	event payments.WebhookEvent
	err   error
}

func (s stubVerifier) VerifyWebhook([]byte, string) (payments.WebhookEvent, error) {
	return s.event, s.err
}

type webhookFixture struct {
	store  *memStore
	orders *orderFixture
	mailer *stubMailer
	deps   WebhookServiceDeps
}

func newWebhookFixture(t *testing.T) webhookFixture {
	t.Helper()
	of := newOrderFixture(t)
	of.seedCheckoutReady("cust-1")
	of.seedOrder("o1", "cust-1", domain.OrderStatusPending)
	order := of.store.orders["o1"]
	order.CartID = "cart-cust-1"
	of.store.orders["o1"] = order
	of.store.payments["pay-1"] = Payment{ID: "pay-1", OrderID: "o1", Status: domain.PaymentStatusPending, Amount: decimal.NewFromInt(10)}

	paymentSvc := newPaymentService(t, of.store)
	cartSvc, err := NewCartService(CartServiceDeps{
		Carts:      memCarts{of.store},
		Customers:  memCustomers{of.store},
		Inventory:  newTestInventory(of.store),
		UnitOfWork: of.store,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	handlerDeps := CheckoutEventHandlerDeps{Orders: of.svc, Payments: paymentSvc, Carts: cartSvc}
	completed, err := NewCheckoutCompletedHandler(handlerDeps)
	if err != nil {
		t.Fatalf("NewCheckoutCompletedHandler: %v", err)
	}
	expired, err := NewCheckoutExpiredHandler(handlerDeps)
	if err != nil {
		t.Fatalf("NewCheckoutExpiredHandler: %v", err)
	}
	return webhookFixture{
		store:  of.store,
		orders: &of,
		mailer: of.mailer,
		deps: WebhookServiceDeps{
			Deduper:  idempotency.NewDeduper(idempotency.NewMemoryStore(), 0, fixedClock),
			Handlers: []WebhookEventHandler{completed, expired},
		},
	}
}

func (f webhookFixture) service(t *testing.T, verifier payments.WebhookVerifier) WebhookService {
	t.Helper()
	deps := f.deps
	deps.Verifier = verifier
	svc, err := NewWebhookService(deps)
	if err != nil {
		t.Fatalf("NewWebhookService: %v", err)
	}
	return svc
}

func checkoutEvent(id, eventType string) payments.WebhookEvent {
	return payments.WebhookEvent{
		ID:   id,
		Type: eventType,
		Session: &payments.SessionData{
			ID:                "cs_1",
			ClientReferenceID: "o1",
			PaymentIntentID:   "pi_1",
			Metadata:          map[string]string{"order_id": "o1", "customer_id": "cust-1", "payment_id": "pay-1"},
		},
	}
}

func TestHandleStripeEventCompleted(t *testing.T) {
	f := newWebhookFixture(t)
	svc := f.service(t, stubVerifier{event: checkoutEvent("evt_1", EventCheckoutSessionCompleted)})

	if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleStripeEvent: %v", err)
	}
	if got := f.store.orders["o1"].Status; got != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", got)
	}
	payment := f.store.payments["pay-1"]
	if payment.Status != domain.PaymentStatusCompleted || payment.TransactionID == nil || *payment.TransactionID != "pi_1" {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if payment.ResponseMessage == nil || *payment.ResponseMessage != "Payment completed successfully" {
		t.Fatalf("unexpected response message %v", payment.ResponseMessage)
	}
	if got := f.store.carts["cart-cust-1"].Status; got != domain.CartStatusConverted {
		t.Fatalf("expected converted cart, got %s", got)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected a confirmation email, got %d", len(f.mailer.sent))
	}
}

func TestHandleStripeEventDeduplicatesRedelivery(t *testing.T) {
	f := newWebhookFixture(t)
	svc := f.service(t, stubVerifier{event: checkoutEvent("evt_1", EventCheckoutSessionCompleted)})

	for i := 0; i < 2; i++ {
		if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("redelivery must not re-dispatch, got %d emails", len(f.mailer.sent))
	}
}

func TestHandleStripeEventCompletedForCancelledOrderIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	order := f.store.orders["o1"]
	order.Status = domain.OrderStatusCancelled
	f.store.orders["o1"] = order
	svc := f.service(t, stubVerifier{event: checkoutEvent("evt_4", EventCheckoutSessionCompleted)})

	if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("a paid but cancelled order must be acknowledged, got %v", err)
	}
	if got := f.store.orders["o1"].Status; got != domain.OrderStatusCancelled {
		t.Fatalf("order must stay cancelled, got %s", got)
	}
	payment := f.store.payments["pay-1"]
	if payment.Status != domain.PaymentStatusCompleted || payment.ResponseMessage == nil ||
		*payment.ResponseMessage != "Payment received for a closed order; refund required" {
		t.Fatalf("expected payment flagged for refund, got %+v", payment)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("no confirmation for a cancelled order, got %d", len(f.mailer.sent))
	}
	if got := f.store.carts["cart-cust-1"].Status; got == domain.CartStatusConverted {
		t.Fatalf("cart must not be converted for a cancelled order")
	}
}

func TestHandleStripeEventCompletedAfterShipmentLeavesPaymentAlone(t *testing.T) {
	f := newWebhookFixture(t)
	first := f.service(t, stubVerifier{event: checkoutEvent("evt_a", EventCheckoutSessionCompleted)})
	if err := first.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	order := f.store.orders["o1"]
	order.Status = domain.OrderStatusShipped
	f.store.orders["o1"] = order

	second := f.service(t, stubVerifier{event: checkoutEvent("evt_b", EventCheckoutSessionCompleted)})
	if err := second.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("a late completion for a shipped order must be acknowledged, got %v", err)
	}
	if got := f.store.orders["o1"].Status; got != domain.OrderStatusShipped {
		t.Fatalf("order must stay shipped, got %s", got)
	}
	payment := f.store.payments["pay-1"]
	if payment.Status != domain.PaymentStatusCompleted || payment.ResponseMessage == nil ||
		*payment.ResponseMessage != "Payment completed successfully" {
		t.Fatalf("payment must keep its completion message, got %+v", payment)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected a single confirmation email, got %d", len(f.mailer.sent))
	}
}

func TestHandleStripeEventCompletedForCancelledOrderKeepsSettledPayment(t *testing.T) {
	f := newWebhookFixture(t)
	order := f.store.orders["o1"]
	order.Status = domain.OrderStatusCancelled
	f.store.orders["o1"] = order
	settled := "Payment completed successfully"
	payment := f.store.payments["pay-1"]
	payment.Status = domain.PaymentStatusCompleted
	payment.ResponseMessage = &settled
	f.store.payments["pay-1"] = payment
	svc := f.service(t, stubVerifier{event: checkoutEvent("evt_5", EventCheckoutSessionCompleted)})

	if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleStripeEvent: %v", err)
	}
	got := f.store.payments["pay-1"]
	if got.ResponseMessage == nil || *got.ResponseMessage != settled {
		t.Fatalf("settled payment must not be flagged for refund, got %+v", got)
	}
}

func TestHandleStripeEventExpired(t *testing.T) {
	f := newWebhookFixture(t)
	svc := f.service(t, stubVerifier{event: checkoutEvent("evt_2", EventCheckoutSessionExpired)})

	if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleStripeEvent: %v", err)
	}
	if got := f.store.orders["o1"].Status; got != domain.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got)
	}
	payment := f.store.payments["pay-1"]
	if payment.Status != domain.PaymentStatusFailed || *payment.ResponseMessage != "Payment session expired" {
		t.Fatalf("unexpected payment %+v", payment)
	}
}

func TestHandleStripeEventIgnoresUnknownTypes(t *testing.T) {
	f := newWebhookFixture(t)
	svc := f.service(t, stubVerifier{event: payments.WebhookEvent{ID: "evt_3", Type: "invoice.paid"}})

	if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unknown events must be ignored, got %v", err)
	}
	if got := f.store.orders["o1"].Status; got != domain.OrderStatusPending {
		t.Fatalf("order must be untouched, got %s", got)
	}
}

func TestHandleStripeEventRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	svc := f.service(t, stubVerifier{err: payments.ErrInvalidSignature})

	err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "bad")
	if !errors.Is(err, ErrWebhookSignature) || !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestHandleStripeEventRequiresMetadata(t *testing.T) {
	f := newWebhookFixture(t)
	event := checkoutEvent("evt_4", EventCheckoutSessionCompleted)
	delete(event.Session.Metadata, "payment_id")
	svc := f.service(t, stubVerifier{event: event})

	if err := svc.HandleStripeEvent(context.Background(), []byte("{}"), "sig"); !errors.Is(err, ErrWebhookInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
