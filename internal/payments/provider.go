package payments

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails signature verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// DefaultPaymentMethodTypes lists the Checkout payment methods offered when a request names none.
var DefaultPaymentMethodTypes = []string{"card", "amazon_pay", "sepa_debit", "paypal", "klarna"}

// CheckoutSessionRequest captures the payload required to create a hosted checkout session.
// Amount is expressed in minor currency units.
type CheckoutSessionRequest struct {
	Amount             int64
	Currency           string
	CustomerEmail      string
	ClientReferenceID  string
	ProductName        string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
	PaymentMethodTypes []string
	IdempotencyKey     string
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// SessionData is the checkout session embedded in a webhook event.
type SessionData struct {
	ID                string
	ClientReferenceID string
	PaymentIntentID   string
	Metadata          map[string]string
}

// WebhookEvent is a verified PSP event. Session is nil for non checkout events.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *SessionData
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// WebhookVerifier authenticates raw webhook deliveries and decodes them.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
}
