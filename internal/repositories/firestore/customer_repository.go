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

const customerCollection = "customers"

// CustomerRepository persists store accounts in Firestore.
type CustomerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[customerDocument](provider, customerCollection),
	}, nil
}

// Insert creates the customer, reporting a conflict when the email is already registered.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return errors.New("customer repository: customer id is required")
	}
	email := normalizeEmail(customer.Email)
	if email == "" {
		return errors.New("customer repository: email is required")
	}

	now := time.Now().UTC()
	doc := customerDocument{
		Email:        strings.TrimSpace(customer.Email),
		EmailLower:   email,
		Name:         strings.TrimSpace(customer.Name),
		PasswordHash: customer.PasswordHash,
		CreatedAt:    utcOr(customer.CreatedAt, now),
		UpdatedAt:    utcOr(customer.UpdatedAt, now),
	}

	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := r.base.Query(ctx, byEmail(email))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return pfirestore.Conflict("customers.insert", errors.New("email already registered"))
		}
		return r.base.Create(ctx, id, doc)
	})
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return domain.Customer{}, pfirestore.NotFound("customers.find_by_email")
	}
	doc, err := r.base.First(ctx, byEmail(normalized))
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdatePassword replaces the stored hash. A missing customer reports not found.
func (r *CustomerRepository) UpdatePassword(ctx context.Context, customerID string, passwordHash string, updatedAt time.Time) error {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return errors.New("customer repository: customer id is required")
	}
	if passwordHash == "" {
		return errors.New("customer repository: password hash is required")
	}
	return r.base.Update(ctx, id, []firestore.Update{
		{Path: "passwordHash", Value: passwordHash},
		{Path: "updatedAt", Value: utcOr(updatedAt, time.Now())},
	})
}

func byEmail(email string) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		return q.Where("emailLower", "==", email).Limit(1)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type customerDocument struct {
	Email        string    `firestore:"email"`
	EmailLower   string    `firestore:"emailLower"`
	Name         string    `firestore:"name"`
	PasswordHash string    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:           id,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)
