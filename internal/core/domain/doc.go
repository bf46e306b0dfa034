// Package domain defines the core domain models for PeerScout.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Location: a remembered peer address (static or dynamic)
//   - DeviceInfo: identity fields a peer reports about itself
//   - Channel: an entry of a peer's available content listing
//   - Errors: Domain-specific error definitions
//
// Availability of a Location is derived from its last probe
// timestamps; it is never stored explicitly.
package domain
