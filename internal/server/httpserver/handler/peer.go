package handler

import (
	"net/http"
	"strconv"
)

// handleInfo handles GET /api/public/info/.
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	h.writeRaw(w, r, h.info)
}

// handleChannels handles GET /api/content/channel/. Every configured
// channel is available, so ?available=true does not narrow the list.
func (h *Handler) handleChannels(w http.ResponseWriter, r *http.Request) {
	h.writeRaw(w, r, h.channels)
}

// handleListPeers handles GET /api/peers/?exclude_local=true.
func (h *Handler) handleListPeers(w http.ResponseWriter, r *http.Request) {
	if h.peers == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "discovery is disabled", nil)
		return
	}
	excludeLocal, _ := strconv.ParseBool(r.URL.Query().Get("exclude_local"))

	peers, err := h.peers.Peers(r.Context(), !excludeLocal)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ListPeersResponse{Peers: peers, Total: len(peers)})
}

// handleGetPeer handles GET /api/peers/{id}.
func (h *Handler) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	if h.peers == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "discovery is disabled", nil)
		return
	}
	peer, err := h.peers.Peer(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, peer)
}
