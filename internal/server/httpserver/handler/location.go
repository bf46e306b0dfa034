package handler

import (
	"net/http"

	"github.com/yndnr/peerscout-go/internal/core/service"
)

// handleListLocations handles GET /api/locations/?kind=static|dynamic.
func (h *Handler) handleListLocations(w http.ResponseWriter, r *http.Request) {
	if h.locations == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "location registry is disabled", nil)
		return
	}

	kind := service.KindAll
	switch r.URL.Query().Get("kind") {
	case "":
	case "static":
		kind = service.KindStatic
	case "dynamic":
		kind = service.KindDynamic
	default:
		h.writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "kind must be static or dynamic", nil)
		return
	}

	locs, err := h.locations.List(r.Context(), kind)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp := ListLocationsResponse{Locations: make([]LocationResponse, 0, len(locs)), Total: len(locs)}
	for _, loc := range locs {
		resp.Locations = append(resp.Locations, LocationResponse{
			Location: loc,
			Status:   h.locations.Status(loc).String(),
		})
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleAvailability handles GET /api/locations/{id}/availability. It may
// probe the location when no recent outcome is on record.
func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if h.locations == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "location registry is disabled", nil)
		return
	}
	id := r.PathValue("id")
	ok, err := h.locations.Available(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, AvailabilityResponse{ID: id, Available: ok})
}
