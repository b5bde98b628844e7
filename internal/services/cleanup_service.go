package services

import (
	"context"
	"errors"
	"time"
)

// DefaultGuestRetention is how long guest carts and wishlists are kept.
const DefaultGuestRetention = 10 * 24 * time.Hour

// CleanupServiceDeps wires the retention sweep.
type CleanupServiceDeps struct {
	Carts     CartService
	Wishlists WishlistService
	Retention time.Duration
	Clock     func() time.Time
	Logger    Logger
}

type cleanupService struct {
	carts     CartService
	wishlists WishlistService
	retention time.Duration
	now       func() time.Time
	logger    Logger
}

// NewCleanupService constructs the guest data retention sweep.
func NewCleanupService(deps CleanupServiceDeps) (CleanupService, error) {
	if deps.Carts == nil || deps.Wishlists == nil {
		return nil, errors.New("cleanup service: cart and wishlist services are required")
	}
	retention := deps.Retention
	if retention <= 0 {
		retention = DefaultGuestRetention
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &cleanupService{
		carts:     deps.Carts,
		wishlists: deps.Wishlists,
		retention: retention,
		now:       utcClock(deps.Clock),
		logger:    logger,
	}, nil
}

// SweepAnonymous deletes guest carts and wishlists created before now minus the retention.
// Wishlists are swept even when the cart sweep fails.
func (s *cleanupService) SweepAnonymous(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{Cutoff: s.now().Add(-s.retention)}

	carts, cartErr := s.carts.DeleteAnonymousCartsBefore(ctx, result.Cutoff)
	result.Carts = carts
	wishlists, wishlistErr := s.wishlists.DeleteAnonymousWishlistsBefore(ctx, result.Cutoff)
	result.Wishlists = wishlists

	fields := map[string]any{
		"cutoff":    result.Cutoff.Format(time.RFC3339),
		"carts":     result.Carts,
		"wishlists": result.Wishlists,
	}
	err := errors.Join(cartErr, wishlistErr)
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "cleanup.sweep.failed", fields)
		return result, err
	}
	s.logger(ctx, "cleanup.sweep.completed", fields)
	return result, nil
}
