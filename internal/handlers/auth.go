package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// AuthHandlers exposes signup, login, logout, the current account and password reset.
type AuthHandlers struct {
	authn    *auth.Authenticator
	accounts services.AuthService
}

func NewAuthHandlers(authn *auth.Authenticator, accounts services.AuthService) *AuthHandlers {
	return &AuthHandlers{authn: authn, accounts: accounts}
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/send-reset-link", h.sendResetLink)
	r.Post("/reset-password", h.resetPassword)
	if h.authn != nil {
		r.With(h.authn.RequireCustomer()).Get("/me", h.me)
	} else {
		r.Get("/me", h.me)
	}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type customerPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt string          `json:"expiresAt"`
	Customer  customerPayload `json:"customer"`
}

func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeUnavailable(ctx, w, "auth")
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	customer, err := h.accounts.Signup(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCustomerPayload(customer))
}

// login accepts the guest session from ?sessionId= or the session cookie so the guest cart
// and wishlist merge into the customer's.
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeUnavailable(ctx, w, "auth")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		sessionID, _ = auth.SessionIDFromContext(ctx)
	}

	result, err := h.accounts.Login(ctx, req.Email, req.Password, sessionID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if h.authn != nil {
		h.authn.SetTokenCookie(w, auth.Token{Value: result.Token, ExpiresAt: result.ExpiresAt})
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: formatTime(result.ExpiresAt),
		Customer:  buildCustomerPayload(result.Customer),
	})
}

func buildCustomerPayload(c services.Customer) customerPayload {
	return customerPayload{ID: c.ID, Email: c.Email, Name: c.Name, CreatedAt: formatTime(c.CreatedAt)}
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeUnavailable(ctx, w, "auth")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	customer, err := h.accounts.Me(ctx, identity.CustomerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCustomerPayload(customer))
}

// logout revokes the presented token and always clears the cookie.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeUnavailable(ctx, w, "auth")
		return
	}
	var token string
	if h.authn != nil {
		token, _ = h.authn.TokenFromRequest(r)
	}
	if err := h.accounts.Logout(ctx, token); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if h.authn != nil {
		h.authn.ClearTokenCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// sendResetLink takes the e-mail from the JSON body or ?email=.
func (h *AuthHandlers) sendResetLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeUnavailable(ctx, w, "auth")
		return
	}
	var req resetLinkRequest
	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		req.Email = email
		if err := validate.Struct(req); err != nil {
			writeDecodeError(ctx, w, validationMessage(err))
			return
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if err := h.accounts.RequestPasswordReset(ctx, req.Email); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messagePayload{Message: "Password reset link sent to your email."})
}

func (h *AuthHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeUnavailable(ctx, w, "auth")
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if err := h.accounts.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, messagePayload{Message: "Password successfully reset."})
}
