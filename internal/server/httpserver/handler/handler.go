package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/core/service"
	"github.com/yndnr/peerscout-go/internal/discovery"
	"github.com/yndnr/peerscout-go/internal/telemetry/logger"
)

// PeerSource serves the discovery snapshot.
type PeerSource interface {
	Peers(ctx context.Context, includeLocal bool) ([]discovery.PeerSnapshot, error)
	Peer(ctx context.Context, id string) (discovery.PeerSnapshot, error)
}

// LocationSource serves the location registry.
type LocationSource interface {
	List(ctx context.Context, kind service.Kind) ([]*domain.Location, error)
	Available(ctx context.Context, id string) (bool, error)
	Status(loc *domain.Location) domain.Availability
}

// Config configures a Handler.
type Config struct {
	// Info is what this instance reports to peers.
	Info domain.DeviceInfo

	// Channels are the content channels this instance offers.
	Channels []domain.Channel

	// Peers and Locations are optional. Their routes answer 503 when nil.
	Peers     PeerSource
	Locations LocationSource

	// Ready reports whether the instance accepts traffic. Nil means always.
	Ready func() error

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	info      domain.DeviceInfo
	channels  []domain.Channel
	peers     PeerSource
	locations LocationSource
	ready     func() error
	logger    *slog.Logger
	mux       *http.ServeMux
	started   time.Time
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	channels := cfg.Channels
	if channels == nil {
		channels = []domain.Channel{}
	}
	h := &Handler{
		info:      cfg.Info,
		channels:  channels,
		peers:     cfg.Peers,
		locations: cfg.Locations,
		ready:     cfg.Ready,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
		started:   time.Now(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Probed by peers.
	h.mux.HandleFunc("GET /api/public/info/", h.handleInfo)
	h.mux.HandleFunc("GET /api/content/channel/", h.handleChannels)

	h.mux.HandleFunc("GET /api/peers/", h.handleListPeers)
	h.mux.HandleFunc("GET /api/peers/{id}", h.handleGetPeer)

	h.mux.HandleFunc("GET /api/locations/", h.handleListLocations)
	h.mux.HandleFunc("GET /api/locations/{id}/availability", h.handleAvailability)
}

// writeRaw writes v as bare JSON, for endpoints peers decode directly.
func (h *Handler) writeRaw(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err, "path", r.URL.Path)
	}
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID prefers the id the RequestID middleware put in the context.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, discovery.ErrPeerNotFound):
		h.writeError(w, r, http.StatusNotFound, CodePeerNotFound, err.Error(), nil)
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "request cancelled", nil)
		return
	}

	var de *domain.DomainError
	if errors.As(err, &de) && de.Area() != "SYS" {
		h.writeError(w, r, de.Status(), de.Code, de.Error(), nil)
		return
	}

	h.logger.Error("internal error", "error", err, "path", r.URL.Path)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, "internal server error", nil)
}
