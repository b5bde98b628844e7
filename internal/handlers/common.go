package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// callerFromContext combines the optional customer identity with the guest session.
func callerFromContext(ctx context.Context) services.Caller {
	var caller services.Caller
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		caller.CustomerEmail = identity.Email
	}
	if sessionID, ok := auth.SessionIDFromContext(ctx); ok {
		caller.SessionID = sessionID
	}
	return caller
}

// requireIdentity writes 401 and returns false when the request is anonymous.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.CustomerID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func productIDParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productID"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("product id %q must be a positive integer", raw)
	}
	return id, nil
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}
