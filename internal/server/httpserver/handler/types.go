package handler

import (
	"time"

	"github.com/yndnr/peerscout-go/internal/core/domain"
	"github.com/yndnr/peerscout-go/internal/discovery"
)

// Error codes produced by the handlers themselves.
const (
	CodeInvalidArgument = "PS-ARG-4000"
	CodePeerNotFound    = "PS-PEER-4040"
	CodeUnavailable     = "PS-SYS-5030"
)

// Response is the standard API response envelope.
// Peer-facing endpoints and /metrics do not use it.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ListPeersResponse is the response body for GET /api/peers/.
type ListPeersResponse struct {
	Peers []discovery.PeerSnapshot `json:"peers"`
	Total int                      `json:"total"`
}

// LocationResponse is one location with its cached availability.
type LocationResponse struct {
	*domain.Location
	Status string `json:"status"`
}

// ListLocationsResponse is the response body for GET /api/locations/.
type ListLocationsResponse struct {
	Locations []LocationResponse `json:"locations"`
	Total     int                `json:"total"`
}

// AvailabilityResponse is the response body for GET /api/locations/{id}/availability.
type AvailabilityResponse struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
}
