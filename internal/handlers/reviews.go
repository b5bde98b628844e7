package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// ReviewHandlers serves product reviews. Listing is public; posting requires a customer.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{authn: authn, reviews: reviews}
}

// Routes is mounted on /products.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}/reviews", h.listReviews)
	post := r
	if h.authn != nil {
		post = r.With(h.authn.RequireCustomer())
	}
	post.Post("/{productID}/reviews", h.addReview)
}

type reviewRequest struct {
	Rating float64 `json:"rating" validate:"required,gte=0.5,lte=5"`
	Body   string  `json:"body" validate:"max=4000"`
}

type reviewPayload struct {
	ID         string  `json:"id"`
	ProductID  int64   `json:"productId"`
	CustomerID string  `json:"customerId"`
	Rating     float64 `json:"rating"`
	Body       string  `json:"body"`
	CreatedAt  string  `json:"createdAt"`
}

type reviewListResponse struct {
	Items []reviewPayload `json:"items"`
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	reviews, err := h.reviews.ListReviews(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := reviewListResponse{Items: make([]reviewPayload, 0, len(reviews))}
	for _, review := range reviews {
		resp.Items = append(resp.Items, buildReviewPayload(review))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ReviewHandlers) addReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	review, err := h.reviews.AddReview(ctx, identity.CustomerID, productID, req.Rating, req.Body)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildReviewPayload(review))
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:         review.ID,
		ProductID:  review.ProductID,
		CustomerID: review.CustomerID,
		Rating:     review.Rating,
		Body:       review.Body,
		CreatedAt:  formatTime(review.CreatedAt),
	}
}
