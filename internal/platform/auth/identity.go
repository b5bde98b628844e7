package auth

import (
	"context"
	"strings"
	"time"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/requestctx"
)

// Identity captures the authenticated customer extracted from a store access token.
type Identity struct {
	CustomerID string
	Email      string
	Name       string
	// ExpiresAt is set when the identity was read from a verified token.
	ExpiresAt time.Time
}

type contextKey string

const (
	identityContextKey contextKey = "github.com/Bashir-Janbalat/store-app-be/internal/platform/auth/identity"
	sessionContextKey  contextKey = "github.com/Bashir-Janbalat/store-app-be/internal/platform/auth/session"
)

// WithIdentity stores the identity within the context for downstream handlers and records the
// customer on the request principal.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity != nil {
		requestctx.PrincipalFrom(ctx).SetCustomer(identity.CustomerID)
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// WithSessionID stores the guest session identifier on the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ctx
	}
	requestctx.PrincipalFrom(ctx).SetSession(sessionID)
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

// SessionIDFromContext returns the guest session identifier when the request carried one.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionContextKey).(string)
	if !ok || sessionID == "" {
		return "", false
	}
	return sessionID, true
}
