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

const addressCollection = "addresses"

// AddressRepository persists customer addresses in Firestore.
type AddressRepository struct {
	base *pfirestore.BaseRepository[addressDocument]
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{base: pfirestore.NewBaseRepository[addressDocument](provider, addressCollection)}, nil
}

// Save upserts the address document.
func (r *AddressRepository) Save(ctx context.Context, address domain.Address) error {
	id := strings.TrimSpace(address.ID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	now := time.Now().UTC()
	return r.base.Set(ctx, id, addressDocument{
		CustomerID: strings.TrimSpace(address.CustomerID),
		Type:       string(address.Type),
		Line:       strings.TrimSpace(address.Line),
		City:       strings.TrimSpace(address.City),
		State:      strings.TrimSpace(address.State),
		PostalCode: strings.TrimSpace(address.PostalCode),
		Country:    strings.TrimSpace(address.Country),
		Default:    address.Default,
		Deleted:    address.Deleted,
		CreatedAt:  utcOr(address.CreatedAt, now),
		UpdatedAt:  utcOr(address.UpdatedAt, now),
	})
}

// FindByID returns the address, deleted ones included.
func (r *AddressRepository) FindByID(ctx context.Context, addressID string) (domain.Address, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(addressID))
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *AddressRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Address, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", strings.TrimSpace(customerID)).
			Where("deleted", "==", false).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	addresses := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		addresses = append(addresses, doc.Data.toDomain(doc.ID))
	}
	return addresses, nil
}

func (r *AddressRepository) FindDefault(ctx context.Context, customerID string, addressType domain.AddressType) (domain.Address, error) {
	doc, err := r.base.First(ctx, defaultsOf(customerID, addressType))
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ClearDefault reads every matching default before writing so it can run inside a transaction.
func (r *AddressRepository) ClearDefault(ctx context.Context, customerID string, addressType domain.AddressType, exceptID string) error {
	docs, err := r.base.Query(ctx, defaultsOf(customerID, addressType))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, doc := range docs {
		if doc.ID == exceptID {
			continue
		}
		if err := r.base.Update(ctx, doc.ID, []firestore.Update{
			{Path: "default", Value: false},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
	}
	return nil
}

func defaultsOf(customerID string, addressType domain.AddressType) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", strings.TrimSpace(customerID)).
			Where("type", "==", string(addressType)).
			Where("default", "==", true).
			Where("deleted", "==", false)
	}
}

type addressDocument struct {
	CustomerID string    `firestore:"customerId"`
	Type       string    `firestore:"type"`
	Line       string    `firestore:"line"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state,omitempty"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	Default    bool      `firestore:"default"`
	Deleted    bool      `firestore:"deleted"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		CustomerID: d.CustomerID,
		Type:       domain.AddressType(d.Type),
		Line:       d.Line,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Default:    d.Default,
		Deleted:    d.Deleted,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
