package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
)

const (
	defaultCookieName        = "access_token"
	defaultSessionCookieName = "sessionId"
	defaultSessionHeader     = "X-Session-ID"
	sessionCookieMaxAge      = 30 * 24 * 60 * 60
)

// TokenVerifier turns an access token into the identity it was issued for.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// Authenticator wires access token verification and guest sessions into HTTP middleware.
type Authenticator struct {
	verifier    TokenVerifier
	revocations RevocationList

	cookieName        string
	sessionCookieName string
	sessionHeader     string
	secureCookies     bool
	newSessionID      func() string
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithCookieName overrides the cookie carrying the access token.
func WithCookieName(name string) Option {
	return func(a *Authenticator) {
		if name = strings.TrimSpace(name); name != "" {
			a.cookieName = name
		}
	}
}

// WithSessionCookieName overrides the cookie carrying the guest session id.
func WithSessionCookieName(name string) Option {
	return func(a *Authenticator) {
		if name = strings.TrimSpace(name); name != "" {
			a.sessionCookieName = name
		}
	}
}

// WithSessionHeader overrides the header carrying the guest session id.
func WithSessionHeader(name string) Option {
	return func(a *Authenticator) {
		if name = strings.TrimSpace(name); name != "" {
			a.sessionHeader = name
		}
	}
}

// WithSecureCookies marks issued cookies as Secure.
func WithSecureCookies(secure bool) Option {
	return func(a *Authenticator) {
		a.secureCookies = secure
	}
}

// WithSessionIDGenerator overrides guest session id generation.
func WithSessionIDGenerator(fn func() string) Option {
	return func(a *Authenticator) {
		if fn != nil {
			a.newSessionID = fn
		}
	}
}

// WithRevocations rejects tokens that were revoked on logout.
func WithRevocations(list RevocationList) Option {
	return func(a *Authenticator) {
		a.revocations = list
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:          verifier,
		cookieName:        defaultCookieName,
		sessionCookieName: defaultSessionCookieName,
		sessionHeader:     defaultSessionHeader,
		newSessionID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// CookieName reports the cookie used for access tokens.
func (a *Authenticator) CookieName() string {
	return a.cookieName
}

// RequireCustomer rejects requests without a valid access token.
func (a *Authenticator) RequireCustomer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := a.extractToken(r)
			if !ok {
				respondAuthError(w, r, "unauthenticated", "authorization header missing or invalid")
				return
			}
			identity, err := a.verify(tokenStr)
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalCustomer attaches the identity when a token is presented and lets anonymous
// requests through. A presented but invalid token is still rejected.
func (a *Authenticator) OptionalCustomer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := a.extractToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := a.verify(tokenStr)
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// GuestSession resolves the guest session id from the session cookie or header. Anonymous
// mutating requests without one get a fresh id that is echoed back as a cookie.
func (a *Authenticator) GuestSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := a.sessionFromRequest(r)
			_, authenticated := IdentityFromContext(r.Context())
			if sessionID == "" && !authenticated && isMutating(r.Method) {
				sessionID = a.newSessionID()
				http.SetCookie(w, &http.Cookie{
					Name:     a.sessionCookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   sessionCookieMaxAge,
					HttpOnly: true,
					Secure:   a.secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := WithSessionID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetTokenCookie writes the access token cookie after a successful login.
func (a *Authenticator) SetTokenCookie(w http.ResponseWriter, token Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token.Value,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie expires the access token cookie on logout.
func (a *Authenticator) ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the bearer token or the access token cookie.
func (a *Authenticator) TokenFromRequest(r *http.Request) (string, bool) {
	return a.extractToken(r)
}

func (a *Authenticator) verify(tokenStr string) (*Identity, error) {
	if a == nil || a.verifier == nil {
		return nil, errors.New("auth: verifier not configured")
	}
	if a.revocations != nil && a.revocations.IsRevoked(tokenStr) {
		return nil, ErrTokenRevoked
	}
	return a.verifier.Verify(tokenStr)
}

func (a *Authenticator) extractToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return extractBearerToken(header)
	}
	if a == nil {
		return "", false
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	return value, value != ""
}

func (a *Authenticator) sessionFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(a.sessionCookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	return strings.TrimSpace(r.Header.Get(a.sessionHeader))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(w http.ResponseWriter, r *http.Request, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, http.StatusUnauthorized))
}

func respondVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, r, "token_expired", "access token expired")
	case errors.Is(err, ErrTokenRevoked):
		respondAuthError(w, r, "token_revoked", "access token revoked")
	default:
		respondAuthError(w, r, "invalid_token", "access token invalid")
	}
}
