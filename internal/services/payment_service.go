package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates malformed payment input.
	ErrPaymentInvalidInput = newKindError(ErrInvalidArgument, "payment service: invalid input")
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = newKindError(ErrNotFound, "payment service: payment not found")
	// ErrPaymentUnavailable indicates backend failures.
	ErrPaymentUnavailable = newKindError(ErrUnavailable, "payment service: unavailable")
)

// PaymentServiceDeps wires the payment repository.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type paymentService struct {
	payments repositories.PaymentRepository
	now      func() time.Time
	newID    func() string
	logger   Logger
	errs     repoErrorMapping
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &paymentService{
		payments: deps.Payments,
		now:      utcClock(deps.Clock),
		newID:    idGen,
		logger:   logger,
		errs:     repoErrorMapping{notFound: ErrPaymentNotFound, unavailable: ErrPaymentUnavailable},
	}, nil
}

func (s *paymentService) CreatePendingPayment(ctx context.Context, order Order, amount decimal.Decimal, method string) (Payment, error) {
	if strings.TrimSpace(order.ID) == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return Payment{}, fmt.Errorf("%w: payment method is required", ErrPaymentInvalidInput)
	}
	now := s.now()
	payment := Payment{
		ID:        s.newID(),
		OrderID:   order.ID,
		Amount:    amount,
		Method:    method,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return Payment{}, s.errs.translate(err)
	}
	s.logger(ctx, "payment.created", map[string]any{
		"paymentId": payment.ID,
		"orderId":   order.ID,
		"amount":    amount.StringFixed(2),
	})
	return payment, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, ErrPaymentNotFound
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.errs.translate(err)
	}
	return payment, nil
}

// UpdatePaymentStatus overwrites status, transaction id and response message. Any status may
// follow any other.
func (s *paymentService) UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus, transactionID *string, responseMessage *string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, ErrPaymentNotFound
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.errs.translate(err)
	}
	payment.Status = status
	payment.TransactionID = transactionID
	payment.ResponseMessage = responseMessage
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.errs.translate(err)
	}
	s.logger(ctx, "payment.status_updated", map[string]any{
		"paymentId": paymentID,
		"status":    string(status),
	})
	return payment, nil
}
