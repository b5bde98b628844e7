package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
	"github.com/Bashir-Janbalat/store-app-be/internal/services"
)

// MaintenanceHandlers exposes jobs triggered by Cloud Scheduler. The router guards the
// group with OIDC.
type MaintenanceHandlers struct {
	cleanup services.CleanupService
}

func NewMaintenanceHandlers(cleanup services.CleanupService) *MaintenanceHandlers {
	return &MaintenanceHandlers{cleanup: cleanup}
}

func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/anonymous-cleanup", h.anonymousCleanup)
}

type cleanupResponse struct {
	Cutoff           string `json:"cutoff"`
	DeletedCarts     int    `json:"deletedCarts"`
	DeletedWishlists int    `json:"deletedWishlists"`
}

func (h *MaintenanceHandlers) anonymousCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cleanup == nil {
		writeUnavailable(ctx, w, "cleanup")
		return
	}
	result, err := h.cleanup.SweepAnonymous(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cleanupResponse{
		Cutoff:           formatTime(result.Cutoff),
		DeletedCarts:     result.Carts,
		DeletedWishlists: result.Wishlists,
	})
}
