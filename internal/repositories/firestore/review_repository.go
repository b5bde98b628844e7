package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	pfirestore "github.com/Bashir-Janbalat/store-app-be/internal/platform/firestore"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const reviewCollection = "reviews"

// ReviewRepository stores product reviews keyed by (product, customer) so that a second
// review of the same product is rejected by Firestore itself.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{base: pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection)}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	customerID := strings.TrimSpace(review.CustomerID)
	if review.ProductID <= 0 || customerID == "" {
		return errors.New("review repository: product and customer are required")
	}
	now := time.Now().UTC()
	return r.base.Create(ctx, reviewKey(review.ProductID, customerID), reviewDocument{
		ReviewID:   strings.TrimSpace(review.ID),
		ProductID:  review.ProductID,
		CustomerID: customerID,
		Rating:     review.Rating,
		Body:       review.Body,
		CreatedAt:  utcOr(review.CreatedAt, now),
	})
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID int64) ([]domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		id := doc.Data.ReviewID
		if id == "" {
			id = doc.ID
		}
		reviews = append(reviews, domain.Review{
			ID:         id,
			ProductID:  doc.Data.ProductID,
			CustomerID: doc.Data.CustomerID,
			Rating:     doc.Data.Rating,
			Body:       doc.Data.Body,
			CreatedAt:  doc.Data.CreatedAt.UTC(),
		})
	}
	return reviews, nil
}

func reviewKey(productID int64, customerID string) string {
	return fmt.Sprintf("%d_%s", productID, customerID)
}

type reviewDocument struct {
	ReviewID   string    `firestore:"reviewId"`
	ProductID  int64     `firestore:"productId"`
	CustomerID string    `firestore:"customerId"`
	Rating     float64   `firestore:"rating"`
	Body       string    `firestore:"body"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
