// Package handler provides the HTTP handlers a PeerScout instance serves.
//
// Peers probe two endpoints and decode them without an envelope:
//
//   - GET /api/public/info/: this instance's DeviceInfo
//   - GET /api/content/channel/: the channels it offers
//
// Everything else answers in the standard Response envelope:
//
//   - GET /health, GET /ready
//   - GET /api/peers/, GET /api/peers/{id}: the discovery snapshot
//   - GET /api/locations/, GET /api/locations/{id}/availability
package handler
