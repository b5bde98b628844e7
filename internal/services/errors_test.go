package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeRepoError struct {
	notFound, conflict, unavailable bool
}

func (e fakeRepoError) Error() string       { return "repo failure" }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

func TestSentinelsWrapKinds(t *testing.T) {
	cases := map[error]error{
		ErrCartNotFound:          ErrNotFound,
		ErrCartInvalidInput:      ErrInvalidArgument,
		ErrOrderPermissionDenied: ErrAccessDenied,
		ErrOrderInvalidState:     ErrInvalidState,
		ErrReviewDuplicate:       ErrAlreadyExists,
		ErrPaymentNotFound:       ErrNotFound,
	}
	for sentinel, kind := range cases {
		wrapped := fmt.Errorf("%w: extra context", sentinel)
		if !errors.Is(wrapped, kind) {
			t.Fatalf("%v should wrap %v", sentinel, kind)
		}
	}
}

func TestRepoErrorMappingTranslate(t *testing.T) {
	mapping := repoErrorMapping{notFound: ErrOrderNotFound, unavailable: ErrOrderUnavailable}

	if err := mapping.translate(fakeRepoError{notFound: true}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err := mapping.translate(fakeRepoError{unavailable: true})
	if !errors.Is(err, ErrOrderUnavailable) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	var repoErr fakeRepoError
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected cause to stay reachable")
	}
	if err := mapping.translate(ErrCartInvalidInput); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("service errors should pass through, got %v", err)
	}
	if err := mapping.translate(errors.New("boom")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("unknown errors should map to unavailable, got %v", err)
	}
	if err := mapping.translate(context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("context errors should pass through, got %v", err)
	}
}
