package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	pfirestore "github.com/Bashir-Janbalat/store-app-be/internal/platform/firestore"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const paymentCollection = "payments"

// PaymentRepository stores payment attempts in Firestore.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{base: pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection)}, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return errors.New("payment repository: payment id is required")
	}
	return r.base.Create(ctx, id, newPaymentDocument(payment))
}

// Update overwrites the payment document. The document must already exist.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return errors.New("payment repository: payment id is required")
	}
	if _, err := r.base.Get(ctx, id); err != nil {
		return err
	}
	return r.base.Set(ctx, id, newPaymentDocument(payment))
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return domain.Payment{}, err
	}
	return domain.Payment{
		ID:              doc.ID,
		OrderID:         doc.Data.OrderID,
		Amount:          decodeMoney(doc.Data.Amount),
		Method:          doc.Data.Method,
		Status:          domain.PaymentStatus(doc.Data.Status),
		TransactionID:   optionalString(doc.Data.TransactionID),
		ResponseMessage: optionalString(doc.Data.ResponseMessage),
		CreatedAt:       doc.Data.CreatedAt.UTC(),
		UpdatedAt:       doc.Data.UpdatedAt.UTC(),
	}, nil
}

type paymentDocument struct {
	OrderID         string    `firestore:"orderId"`
	Amount          string    `firestore:"amount"`
	Method          string    `firestore:"method"`
	Status          string    `firestore:"status"`
	TransactionID   *string   `firestore:"transactionId,omitempty"`
	ResponseMessage *string   `firestore:"responseMessage,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	now := time.Now().UTC()
	return paymentDocument{
		OrderID:         strings.TrimSpace(payment.OrderID),
		Amount:          encodeMoney(payment.Amount),
		Method:          strings.TrimSpace(payment.Method),
		Status:          string(payment.Status),
		TransactionID:   optionalString(payment.TransactionID),
		ResponseMessage: optionalString(payment.ResponseMessage),
		CreatedAt:       utcOr(payment.CreatedAt, now),
		UpdatedAt:       utcOr(payment.UpdatedAt, now),
	}
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
