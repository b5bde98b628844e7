package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/cache"
	"github.com/Bashir-Janbalat/store-app-be/internal/repositories"
)

const (
	minReviewRating  = 0.5
	maxReviewRating  = 5.0
	maxReviewBodyLen = 2000
)

var (
	// ErrReviewInvalidInput indicates a malformed rating or body.
	ErrReviewInvalidInput = newKindError(ErrInvalidArgument, "review service: invalid input")
	// ErrReviewProductNotFound indicates the product is not in the catalog.
	ErrReviewProductNotFound = newKindError(ErrNotFound, "review service: product not found")
	// ErrReviewCustomerNotFound indicates the customer does not exist.
	ErrReviewCustomerNotFound = newKindError(ErrNotFound, "review service: customer not found")
	// ErrReviewNotPurchased indicates the customer has no delivered order with the product.
	ErrReviewNotPurchased = newKindError(ErrInvalidState, "review service: customer must purchase the product before reviewing")
	// ErrReviewDuplicate indicates the customer already reviewed the product.
	ErrReviewDuplicate = newKindError(ErrAlreadyExists, "review service: customer already reviewed this product")
	// ErrReviewUnavailable indicates backend failures.
	ErrReviewUnavailable = newKindError(ErrUnavailable, "review service: unavailable")
)

// ReviewServiceDeps wires the review collaborators.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Customers   repositories.CustomerRepository
	Inventory   InventoryService
	Orders      OrderService
	Cache       *cache.Cache[[]Review]
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type reviewService struct {
	reviews   repositories.ReviewRepository
	customers repositories.CustomerRepository
	inventory InventoryService
	orders    OrderService
	cache     *cache.Cache[[]Review]
	policy    *bluemonday.Policy
	now       func() time.Time
	newID     func() string
	logger    Logger
	errs      repoErrorMapping
}

// NewReviewService constructs a ReviewService.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("review service: customer repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("review service: inventory service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order service is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &reviewService{
		reviews:   deps.Reviews,
		customers: deps.Customers,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		cache:     deps.Cache,
		policy:    bluemonday.StrictPolicy(),
		now:       utcClock(deps.Clock),
		newID:     idGen,
		logger:    logger,
		errs: repoErrorMapping{
			conflict:    ErrReviewDuplicate,
			unavailable: ErrReviewUnavailable,
		},
	}, nil
}

func (s *reviewService) AddReview(ctx context.Context, customerID string, productID int64, rating float64, body string) (Review, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Review{}, fmt.Errorf("%w: customer id is required", ErrReviewInvalidInput)
	}
	if rating < minReviewRating || rating > maxReviewRating {
		return Review{}, fmt.Errorf("%w: rating must be between %.1f and %.1f", ErrReviewInvalidInput, minReviewRating, maxReviewRating)
	}
	body = strings.TrimSpace(s.policy.Sanitize(body))
	if utf8.RuneCountInString(body) > maxReviewBodyLen {
		return Review{}, fmt.Errorf("%w: review must be at most %d characters", ErrReviewInvalidInput, maxReviewBodyLen)
	}

	exists, err := s.inventory.ProductExists(ctx, productID)
	if err != nil {
		return Review{}, err
	}
	if !exists {
		return Review{}, fmt.Errorf("%w: %d", ErrReviewProductNotFound, productID)
	}

	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		if isRepoNotFound(err) {
			return Review{}, ErrReviewCustomerNotFound
		}
		return Review{}, s.errs.translate(err)
	}

	purchased, err := s.orders.HasPurchased(ctx, customerID, productID, domain.OrderStatusDelivered)
	if err != nil {
		return Review{}, err
	}
	if !purchased {
		return Review{}, ErrReviewNotPurchased
	}

	review := Review{
		ID:         s.newID(),
		ProductID:  productID,
		CustomerID: customerID,
		Rating:     rating,
		Body:       body,
		CreatedAt:  s.now(),
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		return Review{}, s.errs.translate(err)
	}
	s.cache.Invalidate(reviewCacheKey(productID))
	s.logger(ctx, "review.created", map[string]any{
		"reviewId":   review.ID,
		"productId":  productID,
		"customerId": customerID,
	})
	return review, nil
}

func (s *reviewService) ListReviews(ctx context.Context, productID int64) ([]Review, error) {
	if productID <= 0 {
		return nil, fmt.Errorf("%w: product id must be positive", ErrReviewInvalidInput)
	}
	key := reviewCacheKey(productID)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, s.errs.translate(err)
	}
	if reviews == nil {
		reviews = []Review{}
	}
	s.cache.Set(key, reviews)
	return reviews, nil
}

func reviewCacheKey(productID int64) string {
	return strconv.FormatInt(productID, 10)
}
