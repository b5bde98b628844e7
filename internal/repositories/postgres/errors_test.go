package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

func TestWrapErrorClassifiesGormErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "record not found", err: fmt.Errorf("scan: %w", gorm.ErrRecordNotFound), notFound: true},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, conflict: true},
		{name: "driver failure", err: errors.New("connection refused"), unavailable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError("catalog.test", tt.err)
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected repository error, got %T", err)
			}
			if repoErr.IsNotFound() != tt.notFound || repoErr.IsConflict() != tt.conflict || repoErr.IsUnavailable() != tt.unavailable {
				t.Fatalf("unexpected classification for %v", err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected wrapped error to unwrap to original")
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := wrapError("op", context.Canceled); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if wrapError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
