package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// OrderHandlers exposes order placement and history for authenticated customers.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// NewOrderHandlers constructs order handlers. idempotency guards order creation and may be nil.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, idempotency func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, idempotency: idempotency}
}

func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireCustomer())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type orderCreatedPayload struct {
	OrderID     string `json:"orderId"`
	TotalAmount string `json:"totalAmount"`
}

type orderLinePayload struct {
	ProductID  int64  `json:"productId"`
	Name       string `json:"name,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	TotalPrice string `json:"totalPrice"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Currency    string             `json:"currency,omitempty"`
	TotalAmount string             `json:"totalAmount"`
	Items       []orderLinePayload `json:"items,omitempty"`
	CreatedAt   string             `json:"createdAt,omitempty"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var billing *string
	if id := strings.TrimSpace(r.URL.Query().Get("billingAddressId")); id != "" {
		billing = &id
	}
	created, err := h.orders.CreateOrder(ctx, identity.CustomerID, billing)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+created.OrderID)
	httpx.WriteJSON(w, http.StatusCreated, orderCreatedPayload{
		OrderID:     created.OrderID,
		TotalAmount: formatMoney(created.TotalAmount),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status", http.StatusBadRequest))
		return
	}
	views, err := h.orders.ListOrders(ctx, identity.CustomerID, status)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := orderListResponse{Items: make([]orderPayload, 0, len(views))}
	for _, view := range views {
		resp.Items = append(resp.Items, buildOrderPayload(view))
	}
	noStore(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.CancelOrder(ctx, chi.URLParam(r, "orderID"), identity.CustomerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload{
		ID:          order.ID,
		Status:      string(order.Status),
		Currency:    order.Currency,
		TotalAmount: formatMoney(order.TotalAmount),
		CreatedAt:   formatTime(order.CreatedAt),
	})
}

func buildOrderPayload(view services.OrderView) orderPayload {
	payload := orderPayload{
		ID:          view.ID,
		Status:      string(view.Status),
		Currency:    view.Currency,
		TotalAmount: formatMoney(view.TotalAmount),
		Items:       make([]orderLinePayload, 0, len(view.Lines)),
		CreatedAt:   formatTime(view.CreatedAt),
	}
	for _, line := range view.Lines {
		payload.Items = append(payload.Items, orderLinePayload{
			ProductID:  line.ProductID,
			Name:       line.Name,
			ImageURL:   line.ImageURL,
			Quantity:   line.Quantity,
			UnitPrice:  formatMoney(line.UnitPrice),
			TotalPrice: formatMoney(line.TotalPrice),
		})
	}
	return payload
}
