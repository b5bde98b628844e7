package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/payments"
)

type stubProvider struct {
	req     payments.CheckoutSessionRequest
	session payments.CheckoutSession
	err     error
}

func (s *stubProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.req = req
	return s.session, s.err
}

func newPaymentService(t *testing.T, store *memStore) PaymentService {
	t.Helper()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Payments:    memPayments{store},
		Clock:       fixedClock,
		IDGenerator: sequentialIDs("pay"),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return svc
}

func TestPaymentLifecycle(t *testing.T) {
	store := newMemStore()
	svc := newPaymentService(t, store)
	ctx := context.Background()

	payment, err := svc.CreatePendingPayment(ctx, Order{ID: "o1"}, decimal.NewFromInt(20), "stripe_checkout")
	if err != nil {
		t.Fatalf("CreatePendingPayment: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending || payment.OrderID != "o1" {
		t.Fatalf("unexpected payment %+v", payment)
	}

	msg := "Payment completed successfully"
	tx := "pi_123"
	updated, err := svc.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusCompleted, &tx, &msg)
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if updated.Status != domain.PaymentStatusCompleted || *updated.TransactionID != "pi_123" {
		t.Fatalf("unexpected update %+v", updated)
	}

	// any status may follow any other
	if _, err := svc.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusPending, nil, nil); err != nil {
		t.Fatalf("unconditional overwrite failed: %v", err)
	}
	if store.payments[payment.ID].TransactionID != nil {
		t.Fatalf("transaction id should be overwritten")
	}
}

func TestUpdatePaymentStatusUnknownPayment(t *testing.T) {
	svc := newPaymentService(t, newMemStore())
	_, err := svc.UpdatePaymentStatus(context.Background(), "missing", domain.PaymentStatusFailed, nil, nil)
	if !errors.Is(err, ErrPaymentNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected payment not found, got %v", err)
	}
}

func newCheckoutFixture(t *testing.T) (*memStore, CheckoutService, *stubProvider) {
	t.Helper()
	store := newMemStore()
	provider := &stubProvider{session: payments.CheckoutSession{
		ID:          "cs_1",
		Provider:    "stripe",
		RedirectURL: "https://checkout.stripe.com/cs_1",
		ExpiresAt:   testNow.Add(30 * time.Minute),
	}}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Orders:     memOrders{store},
		Payments:   newPaymentService(t, store),
		Provider:   provider,
		SuccessURL: "https://shop.example.com/payment-success",
		CancelURL:  "https://shop.example.com/payment-cancel",
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return store, svc, provider
}

func TestCreateCheckoutSession(t *testing.T) {
	store, svc, provider := newCheckoutFixture(t)
	store.orders["o1"] = Order{ID: "o1", CustomerID: "cust-1", Status: domain.OrderStatusPending, Currency: "EUR", TotalAmount: decimal.RequireFromString("20.50")}

	session, err := svc.CreateCheckoutSession(context.Background(), CheckoutCommand{
		OrderID: "o1", CustomerID: "cust-1", CustomerEmail: "ana@example.com",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.SessionID != "cs_1" || session.RedirectURL == "" || session.PaymentID == "" {
		t.Fatalf("unexpected session %+v", session)
	}
	payment := store.payments[session.PaymentID]
	if payment.Status != domain.PaymentStatusPending || !payment.Amount.Equal(decimal.RequireFromString("20.50")) {
		t.Fatalf("expected pending payment, got %+v", payment)
	}

	req := provider.req
	if req.Amount != 2050 || req.Currency != "eur" || req.ClientReferenceID != "o1" {
		t.Fatalf("unexpected provider request %+v", req)
	}
	if req.Metadata["order_id"] != "o1" || req.Metadata["customer_id"] != "cust-1" || req.Metadata["payment_id"] != payment.ID {
		t.Fatalf("unexpected metadata %v", req.Metadata)
	}
}

func TestCreateCheckoutSessionRejections(t *testing.T) {
	store, svc, _ := newCheckoutFixture(t)
	store.orders["paid"] = Order{ID: "paid", CustomerID: "cust-1", Status: domain.OrderStatusProcessing, TotalAmount: decimal.NewFromInt(5)}
	store.orders["free"] = Order{ID: "free", CustomerID: "cust-1", Status: domain.OrderStatusPending, TotalAmount: decimal.Zero}
	store.orders["other"] = Order{ID: "other", CustomerID: "cust-2", Status: domain.OrderStatusPending, TotalAmount: decimal.NewFromInt(5)}
	ctx := context.Background()

	cases := map[string]error{
		"missing": ErrNotFound,
		"paid":    ErrInvalidState,
		"free":    ErrInvalidArgument,
		"other":   ErrInvalidState,
	}
	for orderID, want := range cases {
		_, err := svc.CreateCheckoutSession(ctx, CheckoutCommand{OrderID: orderID, CustomerID: "cust-1"})
		if !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", orderID, want, err)
		}
	}
	if len(store.payments) != 0 {
		t.Fatalf("rejected checkouts must not create payments")
	}
}

func TestCreateCheckoutSessionSurfacesProviderErrors(t *testing.T) {
	store, svc, provider := newCheckoutFixture(t)
	store.orders["o1"] = Order{ID: "o1", CustomerID: "cust-1", Status: domain.OrderStatusPending, TotalAmount: decimal.NewFromInt(5)}
	cause := errors.New("card_declined")
	provider.err = cause

	_, err := svc.CreateCheckoutSession(context.Background(), CheckoutCommand{OrderID: "o1", CustomerID: "cust-1"})
	if !errors.Is(err, ErrCheckoutProviderFailure) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}
