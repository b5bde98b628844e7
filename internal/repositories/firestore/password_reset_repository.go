package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	pfirestore "github.com/Bashir-Janbalat/store-app-be/internal/platform/firestore"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const passwordResetCollection = "passwordResetTokens"

// PasswordResetRepository stores issued reset tokens keyed by token digest.
type PasswordResetRepository struct {
	base *pfirestore.BaseRepository[passwordResetDocument]
}

// NewPasswordResetRepository constructs a Firestore-backed reset token repository.
func NewPasswordResetRepository(provider *pfirestore.Provider) (*PasswordResetRepository, error) {
	if provider == nil {
		return nil, errors.New("password reset repository requires firestore provider")
	}
	return &PasswordResetRepository{
		base: pfirestore.NewBaseRepository[passwordResetDocument](provider, passwordResetCollection),
	}, nil
}

func (r *PasswordResetRepository) Insert(ctx context.Context, token domain.PasswordResetToken) error {
	id := strings.TrimSpace(token.ID)
	if id == "" {
		return errors.New("password reset repository: token id is required")
	}
	now := time.Now().UTC()
	return r.base.Create(ctx, id, passwordResetDocument{
		CustomerID: strings.TrimSpace(token.CustomerID),
		Email:      strings.TrimSpace(token.Email),
		Used:       token.Used,
		ExpiresAt:  token.ExpiresAt.UTC(),
		CreatedAt:  utcOr(token.CreatedAt, now),
		UsedAt:     optionalTime(token.UsedAt),
	})
}

func (r *PasswordResetRepository) FindByID(ctx context.Context, tokenID string) (domain.PasswordResetToken, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(tokenID))
	if err != nil {
		return domain.PasswordResetToken{}, err
	}
	return domain.PasswordResetToken{
		ID:         doc.ID,
		CustomerID: doc.Data.CustomerID,
		Email:      doc.Data.Email,
		Used:       doc.Data.Used,
		ExpiresAt:  doc.Data.ExpiresAt.UTC(),
		CreatedAt:  doc.Data.CreatedAt.UTC(),
		UsedAt:     optionalTime(doc.Data.UsedAt),
	}, nil
}

// MarkUsed flags the token as consumed. A missing token reports not found.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	id := strings.TrimSpace(tokenID)
	if id == "" {
		return errors.New("password reset repository: token id is required")
	}
	return r.base.Update(ctx, id, []firestore.Update{
		{Path: "used", Value: true},
		{Path: "usedAt", Value: utcOr(usedAt, time.Now())},
	})
}

type passwordResetDocument struct {
	CustomerID string     `firestore:"customerId"`
	Email      string     `firestore:"email"`
	Used       bool       `firestore:"used"`
	ExpiresAt  time.Time  `firestore:"expiresAt"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UsedAt     *time.Time `firestore:"usedAt,omitempty"`
}

var _ repositories.PasswordResetRepository = (*PasswordResetRepository)(nil)
