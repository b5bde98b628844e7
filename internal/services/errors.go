package services

import (
	"context"
	"errors"

	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

// Error kinds shared by every service. Domain sentinels wrap exactly one kind so callers can
// classify failures with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// repoErrorMapping chooses the service sentinel returned for each repository error class.
type repoErrorMapping struct {
	notFound    error
	conflict    error
	unavailable error
}

func (m repoErrorMapping) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && m.notFound != nil:
			return m.notFound
		case repoErr.IsConflict() && m.conflict != nil:
			return m.conflict
		}
		return wrapUnavailable(m.unavailable, err)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return wrapUnavailable(m.unavailable, err)
}

func wrapUnavailable(sentinel error, err error) error {
	if sentinel == nil {
		sentinel = ErrUnavailable
	}
	return &wrappedError{sentinel: sentinel, cause: err}
}

// wrappedError keeps the underlying cause reachable for logging while reporting the sentinel.
type wrappedError struct {
	sentinel error
	cause    error
}

func (e *wrappedError) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }

func (e *wrappedError) Unwrap() []error { return []error{e.sentinel, e.cause} }

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
