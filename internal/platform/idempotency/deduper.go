package idempotency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInProgress is returned when another worker currently holds the key.
var ErrInProgress = errors.New("idempotency: key is being processed")

// Deduper runs a unit of work at most once per key, for example one Stripe event id.
type Deduper struct {
	store Store
	ttl   time.Duration
	clock func() time.Time
}

// NewDeduper constructs a Deduper on top of the given store.
func NewDeduper(store Store, ttl time.Duration, clock func() time.Time) *Deduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Deduper{store: store, ttl: ttl, clock: clock}
}

// Once runs fn unless the key already completed. It reports whether fn ran. When fn fails
// the reservation is released so a redelivery can try again.
func (d *Deduper) Once(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if d == nil || d.store == nil {
		return true, fn(ctx)
	}
	fingerprint := sha256Hex([]byte(key))

	reservation, err := d.store.Reserve(ctx, key, fingerprint, d.clock().UTC(), d.ttl)
	if err != nil {
		return false, fmt.Errorf("idempotency: reserve %s: %w", key, err)
	}
	switch reservation.State {
	case ReservationStateCompleted:
		return false, nil
	case ReservationStatePending:
		return false, ErrInProgress
	}

	if err := fn(ctx); err != nil {
		if releaseErr := d.store.Release(ctx, key, fingerprint); releaseErr != nil {
			return true, errors.Join(err, releaseErr)
		}
		return true, err
	}

	done := Response{Status: http.StatusOK}
	if err := d.store.SaveResponse(ctx, key, fingerprint, done, d.clock().UTC(), d.ttl); err != nil {
		return true, fmt.Errorf("idempotency: complete %s: %w", key, err)
	}
	return true, nil
}
