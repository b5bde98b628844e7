// Package requestctx carries request-scoped values shared by the middleware chain: the
// request logger, Cloud Trace metadata and the principal the request acts for.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	principalKey
)

var noopLogger = zap.NewNop()

// TraceInfo captures Cloud Trace metadata for log correlation.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger so callers can detect the fallback.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// Principal records who a request acts for. It is installed by the outermost middleware and
// filled in later by the auth middleware, so request logs written after the handler returns
// can name the customer or guest session.
type Principal struct {
	mu         sync.Mutex
	customerID string
	sessionID  string
}

// WithPrincipal installs an empty principal on the context.
func WithPrincipal(ctx context.Context) (context.Context, *Principal) {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &Principal{}
	return context.WithValue(ctx, principalKey, p), p
}

// PrincipalFrom returns the installed principal or nil. All Principal methods accept nil.
func PrincipalFrom(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

func (p *Principal) SetCustomer(customerID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.customerID = customerID
	p.mu.Unlock()
}

func (p *Principal) SetSession(sessionID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.sessionID = sessionID
	p.mu.Unlock()
}

// Snapshot returns the recorded customer id and guest session id.
func (p *Principal) Snapshot() (customerID, sessionID string) {
	if p == nil {
		return "", ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.customerID, p.sessionID
}
