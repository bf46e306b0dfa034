package handler

import (
	"net/http"
	"time"
)

// HealthStatus is the body of /health and /ready.
type HealthStatus struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id,omitempty"`
	Uptime     string `json:"uptime"`
}

func (h *Handler) healthStatus(status string) HealthStatus {
	return HealthStatus{
		Status:     status,
		InstanceID: h.info.InstanceID,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
}

// handleHealth answers as long as the process serves HTTP.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.healthStatus("healthy"))
}

// handleReady answers 503 until Config.Ready stops failing, which for a
// server with discovery means it holds its announced id.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "not ready", err.Error())
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, h.healthStatus("ready"))
}
