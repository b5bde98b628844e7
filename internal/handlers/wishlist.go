package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// WishlistHandlers exposes the wishlist of the signed-in customer or the guest session.
type WishlistHandlers struct {
	authn     *auth.Authenticator
	wishlists services.WishlistService
}

func NewWishlistHandlers(authn *auth.Authenticator, wishlists services.WishlistService) *WishlistHandlers {
	return &WishlistHandlers{authn: authn, wishlists: wishlists}
}

func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalCustomer(), h.authn.GuestSession())
	}
	r.Get("/", h.getWishlist)
	r.Delete("/", h.clearWishlist)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productID}", h.removeItem)
}

type addWishlistItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
}

type wishlistLinePayload struct {
	ProductID   int64  `json:"productId"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Price       string `json:"price"`
	AddedAt     string `json:"addedAt,omitempty"`
}

type wishlistPayload struct {
	ID    string                `json:"id,omitempty"`
	Items []wishlistLinePayload `json:"items"`
}

func (h *WishlistHandlers) getWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		writeUnavailable(ctx, w, "wishlist")
		return
	}
	view, err := h.wishlists.GetWishlist(ctx, callerFromContext(ctx))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildWishlistPayload(view))
}

func (h *WishlistHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		writeUnavailable(ctx, w, "wishlist")
		return
	}
	var req addWishlistItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	caller := callerFromContext(ctx)
	if err := h.wishlists.AddToWishlist(ctx, caller, req.ProductID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	view, err := h.wishlists.GetWishlist(ctx, caller)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildWishlistPayload(view))
}

func (h *WishlistHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		writeUnavailable(ctx, w, "wishlist")
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if err := h.wishlists.RemoveFromWishlist(ctx, callerFromContext(ctx), productID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WishlistHandlers) clearWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlists == nil {
		writeUnavailable(ctx, w, "wishlist")
		return
	}
	if err := h.wishlists.ClearWishlist(ctx, callerFromContext(ctx)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildWishlistPayload(view services.WishlistView) wishlistPayload {
	payload := wishlistPayload{ID: view.WishlistID, Items: make([]wishlistLinePayload, 0, len(view.Items))}
	for _, line := range view.Items {
		payload.Items = append(payload.Items, wishlistLinePayload{
			ProductID:   line.ProductID,
			Name:        line.Name,
			Description: line.Description,
			ImageURL:    line.ImageURL,
			Price:       formatMoney(line.Price),
			AddedAt:     formatTime(line.AddedAt),
		})
	}
	return payload
}
