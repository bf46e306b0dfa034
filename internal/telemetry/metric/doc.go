// Package metric provides Prometheus metrics for PeerScout.
//
// Metrics include:
//
//   - Probe outcomes and latency
//   - Announcement events and the size of the live peer table
//   - Snapshot cache hits and misses
//   - Registration attempts and purged locations
//   - HTTP request counts and latency
//
// A nil *Registry is valid and records nothing, so components can be
// built without metrics in tests. Metrics are exposed at /metrics.
package metric
