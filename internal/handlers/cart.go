package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// CartHandlers exposes the cart of the signed-in customer or the guest session.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalCustomer(), h.authn.GuestSession())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID int64            `json:"productId" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type cartLinePayload struct {
	ProductID   int64  `json:"productId"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

type cartPayload struct {
	ID         string            `json:"id,omitempty"`
	Status     string            `json:"status,omitempty"`
	ItemsCount int               `json:"itemsCount"`
	Items      []cartLinePayload `json:"items"`
	Total      string            `json:"total"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	view, err := h.carts.GetCart(ctx, callerFromContext(ctx))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	var req addCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	// A missing price is sent as zero; the service rejects it when client prices are trusted.
	price := decimal.Zero
	if req.UnitPrice != nil {
		price = *req.UnitPrice
	}
	if err := h.carts.AddToCart(ctx, callerFromContext(ctx), req.ProductID, price, req.Quantity); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondWithCart(w, r, http.StatusCreated)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var req updateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if err := h.carts.UpdateCartItemQuantity(ctx, callerFromContext(ctx), productID, *req.Quantity); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondWithCart(w, r, http.StatusOK)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	productID, err := productIDParam(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if err := h.carts.RemoveFromCart(ctx, callerFromContext(ctx), productID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	if err := h.carts.ClearCart(ctx, callerFromContext(ctx)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) respondWithCart(w http.ResponseWriter, r *http.Request, status int) {
	ctx := r.Context()
	view, err := h.carts.GetCart(ctx, callerFromContext(ctx))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteJSON(w, status, buildCartPayload(view))
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		ID:         view.CartID,
		Status:     string(view.Status),
		ItemsCount: view.ItemCount,
		Items:      make([]cartLinePayload, 0, len(view.Items)),
		Total:      formatMoney(view.Total),
	}
	for _, line := range view.Items {
		payload.Items = append(payload.Items, cartLinePayload{
			ProductID:   line.ProductID,
			Name:        line.Name,
			Description: line.Description,
			ImageURL:    line.ImageURL,
			Quantity:    line.Quantity,
			UnitPrice:   formatMoney(line.UnitPrice),
			LineTotal:   formatMoney(line.LineTotal),
		})
	}
	return payload
}
