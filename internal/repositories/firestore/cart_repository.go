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

const cartCollection = "carts"

// CartRepository persists carts and their line items as a single Firestore document.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// FindByID loads a cart by identifier regardless of its status.
func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(cartID))
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// FindActive returns the ACTIVE cart of the owner.
func (r *CartRepository) FindActive(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	if owner.IsZero() {
		return domain.Cart{}, errors.New("cart repository: owner is required")
	}
	doc, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerKey", "==", owner.Key()).
			Where("status", "==", string(domain.CartStatusActive))
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// Save replaces the cart document, items included.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	if cart.Owner.IsZero() {
		return errors.New("cart repository: owner is required")
	}
	return r.base.Set(ctx, id, newCartDocument(cart))
}

// Delete removes the cart document.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(cartID))
}

// UpdateStatus changes only the status field of the cart.
func (r *CartRepository) UpdateStatus(ctx context.Context, cartID string, status domain.CartStatus, updatedAt time.Time) error {
	return r.base.Update(ctx, strings.TrimSpace(cartID), []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

// DeleteGuestBefore removes up to limit guest carts created before cutoff.
func (r *CartRepository) DeleteGuestBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	docs, err := r.base.Query(ctx, guestBefore(cutoff, limit))
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, doc := range docs {
		if err := r.base.Delete(ctx, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func guestBefore(cutoff time.Time, limit int) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		q = q.Where("ownerKind", "==", string(domain.OwnerGuest)).
			Where("createdAt", "<", cutoff.UTC()).
			OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}
}

type cartDocument struct {
	OwnerKey  string             `firestore:"ownerKey"`
	OwnerKind string             `firestore:"ownerKind"`
	SessionID string             `firestore:"sessionId,omitempty"`
	Status    string             `firestore:"status"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID int64      `firestore:"productId"`
	Quantity  int        `firestore:"quantity"`
	UnitPrice string     `firestore:"unitPrice"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	doc := cartDocument{
		OwnerKey:  cart.Owner.Key(),
		OwnerKind: string(cart.Owner.Kind()),
		SessionID: strings.TrimSpace(cart.SessionID),
		Status:    string(cart.Status),
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt: utcOr(cart.CreatedAt, now),
		UpdatedAt: utcOr(cart.UpdatedAt, now),
	}
	if doc.Status == "" {
		doc.Status = string(domain.CartStatusActive)
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: encodeMoney(item.UnitPrice),
			AddedAt:   utcOr(item.AddedAt, now),
			UpdatedAt: optionalTime(item.UpdatedAt),
		})
	}
	return doc
}

func (d cartDocument) toDomain(id string) (domain.Cart, error) {
	owner, err := domain.ParseOwnerKey(d.OwnerKey)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := domain.Cart{
		ID:        id,
		Owner:     owner,
		SessionID: d.SessionID,
		Status:    domain.CartStatus(d.Status),
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: decodeMoney(item.UnitPrice),
			AddedAt:   item.AddedAt.UTC(),
			UpdatedAt: optionalTime(item.UpdatedAt),
		})
	}
	return cart, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
