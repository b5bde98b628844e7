package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/auth"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// AddressHandlers manages the address book under /me/addresses.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{authn: authn, addresses: addresses}
}

// Routes is mounted on /me.
func (h *AddressHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireCustomer())
	}
	r.Get("/addresses", h.listAddresses)
	r.Post("/addresses", h.createAddress)
	r.Put("/addresses/{addressID}", h.updateAddress)
	r.Delete("/addresses/{addressID}", h.deleteAddress)
}

type addressRequest struct {
	Type       string `json:"type" validate:"omitempty,oneof=SHIPPING BILLING shipping billing"`
	Line       string `json:"line" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode,omitempty" validate:"max=20"`
	Country    string `json:"country" validate:"required,max=56"`
	Default    *bool  `json:"default,omitempty"`
}

func (req addressRequest) toInput() services.AddressInput {
	return services.AddressInput{
		Type:       services.AddressType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Line:       req.Line,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Default:    req.Default,
	}
}

type addressPayload struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Line       string `json:"line"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
	Default    bool   `json:"default"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

type addressListResponse struct {
	Items []addressPayload `json:"items"`
}

func (h *AddressHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	addresses, err := h.addresses.ListAddresses(ctx, identity.CustomerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := addressListResponse{Items: make([]addressPayload, 0, len(addresses))}
	for _, addr := range addresses {
		resp.Items = append(resp.Items, buildAddressPayload(addr))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AddressHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	addr, err := h.addresses.CreateAddress(ctx, identity.CustomerID, req.toInput())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildAddressPayload(addr))
}

func (h *AddressHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	addr, err := h.addresses.UpdateAddress(ctx, identity.CustomerID, chi.URLParam(r, "addressID"), req.toInput())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildAddressPayload(addr))
}

func (h *AddressHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		writeUnavailable(ctx, w, "address")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.addresses.DeleteAddress(ctx, identity.CustomerID, chi.URLParam(r, "addressID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:         addr.ID,
		Type:       string(addr.Type),
		Line:       addr.Line,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Default:    addr.Default,
		UpdatedAt:  formatTime(addr.UpdatedAt),
	}
}
