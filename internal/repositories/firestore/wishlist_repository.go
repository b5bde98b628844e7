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

const wishlistCollection = "wishlists"

// WishlistRepository persists wishlists in Firestore.
type WishlistRepository struct {
	base *pfirestore.BaseRepository[wishlistDocument]
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{base: pfirestore.NewBaseRepository[wishlistDocument](provider, wishlistCollection)}, nil
}

func (r *WishlistRepository) FindActive(ctx context.Context, owner domain.Owner) (domain.Wishlist, error) {
	if owner.IsZero() {
		return domain.Wishlist{}, errors.New("wishlist repository: owner is required")
	}
	doc, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerKey", "==", owner.Key()).
			Where("status", "==", string(domain.WishlistStatusActive))
	})
	if err != nil {
		return domain.Wishlist{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

func (r *WishlistRepository) Save(ctx context.Context, wishlist domain.Wishlist) error {
	id := strings.TrimSpace(wishlist.ID)
	if id == "" {
		return errors.New("wishlist repository: wishlist id is required")
	}
	if wishlist.Owner.IsZero() {
		return errors.New("wishlist repository: owner is required")
	}

	now := time.Now().UTC()
	doc := wishlistDocument{
		OwnerKey:  wishlist.Owner.Key(),
		OwnerKind: string(wishlist.Owner.Kind()),
		SessionID: strings.TrimSpace(wishlist.SessionID),
		Status:    string(wishlist.Status),
		Items:     make([]wishlistItemDocument, 0, len(wishlist.Items)),
		CreatedAt: utcOr(wishlist.CreatedAt, now),
		UpdatedAt: utcOr(wishlist.UpdatedAt, now),
	}
	if doc.Status == "" {
		doc.Status = string(domain.WishlistStatusActive)
	}
	for _, item := range wishlist.Items {
		doc.Items = append(doc.Items, wishlistItemDocument{ProductID: item.ProductID, AddedAt: utcOr(item.AddedAt, now)})
	}
	return r.base.Set(ctx, id, doc)
}

func (r *WishlistRepository) Delete(ctx context.Context, wishlistID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(wishlistID))
}

func (r *WishlistRepository) DeleteGuestBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
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

type wishlistDocument struct {
	OwnerKey  string                 `firestore:"ownerKey"`
	OwnerKind string                 `firestore:"ownerKind"`
	SessionID string                 `firestore:"sessionId,omitempty"`
	Status    string                 `firestore:"status"`
	Items     []wishlistItemDocument `firestore:"items"`
	CreatedAt time.Time              `firestore:"createdAt"`
	UpdatedAt time.Time              `firestore:"updatedAt"`
}

type wishlistItemDocument struct {
	ProductID int64     `firestore:"productId"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func (d wishlistDocument) toDomain(id string) (domain.Wishlist, error) {
	owner, err := domain.ParseOwnerKey(d.OwnerKey)
	if err != nil {
		return domain.Wishlist{}, err
	}
	wishlist := domain.Wishlist{
		ID:        id,
		Owner:     owner,
		SessionID: d.SessionID,
		Status:    domain.WishlistStatus(d.Status),
		Items:     make([]domain.WishlistItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		wishlist.Items = append(wishlist.Items, domain.WishlistItem{ProductID: item.ProductID, AddedAt: item.AddedAt.UTC()})
	}
	return wishlist, nil
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
