package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// CheckoutHandlers opens hosted payment sessions for pending orders.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
}

func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, idempotency func(http.Handler) http.Handler) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, checkout: checkout, idempotency: idempotency}
}

func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireCustomer())
	}
	create := http.Handler(http.HandlerFunc(h.createSession))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/session", create)
}

type checkoutSessionRequest struct {
	OrderID  string `json:"orderId" validate:"required,max=128"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

type checkoutSessionResponse struct {
	SessionID   string `json:"sessionId"`
	PSP         string `json:"psp"`
	RedirectURL string `json:"redirectUrl"`
	PaymentID   string `json:"paymentId"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req checkoutSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	session, err := h.checkout.CreateCheckoutSession(ctx, services.CheckoutCommand{
		OrderID:        strings.TrimSpace(req.OrderID),
		CustomerID:     identity.CustomerID,
		CustomerEmail:  identity.Email,
		Currency:       req.Currency,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusCreated, checkoutSessionResponse{
		SessionID:   session.SessionID,
		PSP:         session.PSP,
		RedirectURL: session.RedirectURL,
		PaymentID:   session.PaymentID,
		ExpiresAt:   formatTime(session.ExpiresAt),
	})
}
